// Package cascade implements the stimulation driver: the component
// that owns a single cascade from a root signal through to completion.
// Its dispatching state — pump counters, the pending and scheduled
// task accounting, SCC active counts, and the failed-task list — is
// confined to a single loop goroutine. The per-neuron gate registry
// and the context store are the exceptions: task goroutines acquire
// gates and handlers write their context slots directly, so both
// guard themselves with their own mutex. Every other goroutine (handler
// invocations, async onResponse waits, an externally-triggered abort)
// communicates with it only by posting a closure onto Driver.cmds,
// the same "single worker task + channel" shape the teacher's worker
// loop uses (pkg/concurrency/brain_worker.go) and the one spec.md's
// design notes call out explicitly as the serialization strategy for
// preemptive runtimes.
package cascade

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/gate"
	"github.com/abaikov/cnstra-sub003/pkg/graph"
	"github.com/abaikov/cnstra-sub003/pkg/pump"
	"github.com/abaikov/cnstra-sub003/pkg/topology"
)

// Options configures one stimulation. Zero value is a usable default:
// unbounded concurrency, no hop cap, fresh empty context, no tracing.
type Options struct {
	Ctx                 *core.ContextStore
	ContextValues        map[core.NeuronName]any
	StimulationID        core.StimulationID
	Concurrency          int
	MaxNeuronHops        int
	AbortSignal          *AbortHandle
	OnResponse           core.OnResponse
	AutoCleanupContexts  bool
}

// Driver runs one stimulation to completion.
type Driver struct {
	idx         *topology.Index
	analyzer    *graph.Analyzer
	gates       *gate.Registry
	facade      core.FacadeRef
	autoCleanup bool

	stimID     core.StimulationID
	ctxStore   *core.ContextStore
	abort      *AbortHandle
	onResponse core.OnResponse
	maxHops    int

	pump *pump.Pump

	// Everything below is touched only by the loop goroutine.
	visits          map[core.NeuronName]int
	activeSccCounts map[int]int
	scheduledCount  int
	failedTasks     []core.FailedTask
	allTasks        []core.ActivationTask
	onResponseErr   error
	aborted         bool
	completed       bool

	cmds     chan func()
	doneCh   chan struct{}
	resultErr error

	// loopMu serializes the handoff between the loop goroutine exiting
	// (on completion) and any command()/query() call racing that exit:
	// whichever side takes loopMu first either lands its closure in
	// cmds before the drain, or sees loopDone and runs it inline.
	loopMu   sync.Mutex
	loopDone bool
}

// New constructs and starts a driver for the given root signal(s).
// idx, analyzer (nil if auto-cleanup is disabled), gates and facade
// are shared across every stimulation from the same facade; opts is
// per-call.
func New(idx *topology.Index, analyzer *graph.Analyzer, gates *gate.Registry, facade core.FacadeRef, roots []core.Signal, opts Options) *Driver {
	d := newDriver(idx, analyzer, gates, facade, opts)

	go d.loop()

	if d.abort != nil {
		go func() {
			<-d.abort.Done()
			d.command(func() { d.handleAbort() })
		}()
	}

	d.command(func() { d.seedRoot(roots) })

	return d
}

func newDriver(idx *topology.Index, analyzer *graph.Analyzer, gates *gate.Registry, facade core.FacadeRef, opts Options) *Driver {
	ctxStore := opts.Ctx
	if ctxStore == nil {
		if len(opts.ContextValues) > 0 {
			ctxStore = core.NewContextStoreFrom(opts.ContextValues)
		} else {
			ctxStore = core.NewContextStore()
		}
	}

	stimID := opts.StimulationID
	if stimID == "" {
		stimID = core.NewStimulationID()
	}

	return &Driver{
		idx:             idx,
		analyzer:        analyzer,
		gates:           gates,
		facade:          facade,
		autoCleanup:     opts.AutoCleanupContexts,
		stimID:          stimID,
		ctxStore:        ctxStore,
		abort:           opts.AbortSignal,
		onResponse:      opts.OnResponse,
		maxHops:         opts.MaxNeuronHops,
		pump:            pump.New(opts.Concurrency),
		visits:          make(map[core.NeuronName]int),
		activeSccCounts: make(map[int]int),
		cmds:            make(chan func(), 256),
		doneCh:          make(chan struct{}),
	}
}

// NewFromTasks starts a driver from an already-constructed task list
// instead of a root signal, the replay entry point: the tasks are
// pushed atomically in the same command that would otherwise run
// seedRoot, so a stimulation with a non-empty replay list can never
// observe zero outstanding work before its tasks are queued.
func NewFromTasks(idx *topology.Index, analyzer *graph.Analyzer, gates *gate.Registry, facade core.FacadeRef, tasks []core.ActivationTask, opts Options) *Driver {
	d := newDriver(idx, analyzer, gates, facade, opts)

	go d.loop()
	if d.abort != nil {
		go func() {
			<-d.abort.Done()
			d.command(func() { d.handleAbort() })
		}()
	}

	d.command(func() {
		for _, t := range tasks {
			d.allTasks = append(d.allTasks, t)
			d.pump.Push(t)
		}
		d.drain()
	})

	return d
}

// command posts fn to run on the loop goroutine. Safe to call from any
// goroutine, including the loop goroutine itself. Once the loop has
// exited (the stimulation completed), fn runs inline instead, still
// serialized against every other post-completion command/query by
// loopMu — nothing else can be mutating driver state at that point.
func (d *Driver) command(fn func()) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if d.loopDone {
		fn()
		return
	}
	d.cmds <- fn
}

// query runs fn on the loop goroutine and blocks until it finishes,
// for synchronous external reads of loop-owned state. Falls back to
// running fn inline under loopMu once the loop has exited, same as
// command.
func (d *Driver) query(fn func()) {
	d.loopMu.Lock()
	if d.loopDone {
		defer d.loopMu.Unlock()
		fn()
		return
	}
	done := make(chan struct{})
	d.cmds <- func() {
		fn()
		close(done)
	}
	d.loopMu.Unlock()
	<-done
}

// loop is the single goroutine that owns all dispatching state. It
// exits once a command leaves the stimulation completed, so a driver
// never outlives its stimulation — matching the teacher's
// ctx.Done()-driven worker exit (pkg/concurrency/brain_worker.go) and
// pkg/daemon/workers.go's Stop(): cancel, then let the loop goroutine
// return on its own.
func (d *Driver) loop() {
	for fn := range d.cmds {
		fn()
		if d.completed {
			d.shutdownLoop()
			return
		}
	}
}

// shutdownLoop marks the loop as no longer reading from cmds and
// synchronously runs whatever commands are already buffered, so a
// command()/query() call that raced the completing command still
// gets executed instead of silently discarded.
func (d *Driver) shutdownLoop() {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	d.loopDone = true
	for {
		select {
		case fn := <-d.cmds:
			fn()
		default:
			return
		}
	}
}

func (d *Driver) abortSignal() core.AbortSignal {
	if d.abort == nil {
		return noopAbortSignal{}
	}
	return d.abort
}

// seedRoot treats each root signal as the output of an unknown
// upstream neuron. Its subscribers are marked active as processResponse
// constructs them, so there is nothing left to bracket here.
func (d *Driver) seedRoot(signals []core.Signal) {
	for i := range signals {
		sig := signals[i]
		d.processResponse(core.ActivationTask{StimulationID: d.stimID}, &sig, nil)
	}
	d.drain()
}

// drain starts as many queued tasks as the pump allows (skipped once
// aborted, so no new work is dispatched past that point) and checks
// for completion.
func (d *Driver) drain() {
	if !d.aborted {
		for _, t := range d.pump.Start() {
			task := t.(core.ActivationTask)
			go d.runTask(task)
		}
	}
	d.maybeComplete()
}

func (d *Driver) maybeComplete() {
	if d.completed {
		return
	}
	outstanding := d.scheduledCount + d.pump.QueueLength() + d.pump.Active()
	if outstanding != 0 {
		return
	}
	d.completed = true
	// Nothing is outstanding, so every SCC count is back to zero: clear
	// any context slot the per-output owner check did not reach (e.g.
	// the other members of a cycle that stopped on the hop cap).
	for name := range d.ctxStore.GetAll() {
		d.cleanupCtxIfNeeded(name)
	}
	if d.onResponseErr != nil {
		d.resultErr = d.onResponseErr
	} else if len(d.failedTasks) > 0 {
		d.resultErr = fmt.Errorf("%w (%d task(s))", core.ErrStimulationFailed, len(d.failedTasks))
	}
	close(d.doneCh)
}

// handleAbort fails out every task still sitting in the pump's queue
// (never dispatched) and lets in-flight handlers run to completion on
// their own.
func (d *Driver) handleAbort() {
	if d.aborted {
		return
	}
	d.aborted = true
	for _, t := range d.pump.Drain() {
		task := t.(core.ActivationTask)
		if d.autoCleanup {
			d.markInactive(task.NeuronName)
		}
		d.failedTasks = append(d.failedTasks, core.FailedTask{Task: task, Err: core.ErrAborted, Aborted: true})
	}
	d.maybeComplete()
}

func (d *Driver) markActive(name core.NeuronName) {
	if d.analyzer == nil {
		return
	}
	scc, ok := d.analyzer.SCCIndexByNeuronName(name)
	if !ok {
		return
	}
	d.activeSccCounts[scc]++
}

func (d *Driver) markInactive(name core.NeuronName) {
	if d.analyzer == nil {
		return
	}
	scc, ok := d.analyzer.SCCIndexByNeuronName(name)
	if !ok {
		return
	}
	if d.activeSccCounts[scc] <= 0 {
		log.Printf("cascade: scc %d active count underflow for neuron %s", scc, name)
		return
	}
	d.activeSccCounts[scc]--
}

func (d *Driver) cleanupCtxIfNeeded(name core.NeuronName) {
	if !d.autoCleanup || d.analyzer == nil {
		return
	}
	if d.analyzer.CanNeuronBeGuaranteedDone(name, d.activeSccCounts) {
		d.ctxStore.Delete(name)
	}
}

// asyncOutcome is the unwrapped result of one dendrite invocation,
// whether it returned synchronously or via a future.
type asyncOutcome struct {
	rr  core.ReactionReturn
	err error
}

// runTask invokes one dendrite's handler off the loop goroutine:
// acquires the per-neuron gate, races the handler (and any future it
// returns) against the neuron's maxDuration, then reports the
// unwrapped outcome back to the loop via a command.
func (d *Driver) runTask(task core.ActivationTask) {
	sub, ok := d.idx.SubscriberFor(task.NeuronName, task.DendriteCollateralName)
	if !ok {
		d.command(func() {
			if d.autoCleanup {
				d.markInactive(task.NeuronName)
			}
			d.pump.Finish()
			d.processResponseOrResponses(task, core.Nothing(), core.ErrSubscriberMissing)
			d.drain()
		})
		return
	}

	release, ready := d.gates.Acquire(task.NeuronName, sub.Neuron.Concurrency)
	<-ready
	defer release()

	var payload any
	if task.InputSignal != nil {
		payload = task.InputSignal.Payload
	}

	ctx := &localCtx{neuron: task.NeuronName, ctx: d.ctxStore, abort: d.abortSignal(), facade: d.facade, stimID: d.stimID}

	settled := make(chan asyncOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				settled <- asyncOutcome{err: fmt.Errorf("neuron %s panicked: %v", task.NeuronName, r)}
			}
		}()
		rr := sub.Dendrite.Response(payload, sub.Neuron.Axon, ctx)
		if rr.Kind == core.KindAsync {
			ar, ok := <-rr.Async
			if !ok {
				settled <- asyncOutcome{err: fmt.Errorf("neuron %s: async reaction channel closed without a result", task.NeuronName)}
				return
			}
			if ar.Err != nil {
				settled <- asyncOutcome{err: ar.Err}
				return
			}
			settled <- asyncOutcome{rr: ar.Return}
			return
		}
		settled <- asyncOutcome{rr: rr}
	}()

	var timeoutCh <-chan time.Time
	if sub.Neuron.MaxDuration > 0 {
		timer := time.NewTimer(sub.Neuron.MaxDuration)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var out asyncOutcome
	select {
	case out = <-settled:
	case <-timeoutCh:
		out = asyncOutcome{err: fmt.Errorf("%w: neuron %s exceeded %s", core.ErrHandlerTimeout, task.NeuronName, sub.Neuron.MaxDuration)}
	}

	d.command(func() {
		if d.autoCleanup {
			d.markInactive(task.NeuronName)
		}
		d.pump.Finish()
		d.processResponseOrResponses(task, out.rr, out.err)
		d.drain()
	})
}

// processResponseOrResponses normalizes a settled reaction into zero,
// one, or many calls to processResponse, so an empty sequence still
// produces exactly one trace with a nil output signal. Each emitted
// signal is checked against the owning neuron's declared axon first;
// a neuron emitting on a collateral it never declared is a failed
// task rather than a silent fan-out.
func (d *Driver) processResponseOrResponses(task core.ActivationTask, rr core.ReactionReturn, err error) {
	if err != nil {
		d.failedTasks = append(d.failedTasks, core.FailedTask{Task: task, Err: err, Aborted: d.aborted})
		d.processResponse(task, nil, err)
		return
	}

	switch rr.Kind {
	case core.KindOne:
		sig := rr.Signal
		if verr := d.validateEmission(task.NeuronName, sig); verr != nil {
			d.failedTasks = append(d.failedTasks, core.FailedTask{Task: task, Err: verr, Aborted: d.aborted})
			d.processResponse(task, nil, verr)
			return
		}
		d.processResponse(task, &sig, nil)
	case core.KindMany:
		if len(rr.Signals) == 0 {
			d.processResponse(task, nil, nil)
			return
		}
		for i := range rr.Signals {
			sig := rr.Signals[i]
			if verr := d.validateEmission(task.NeuronName, sig); verr != nil {
				d.failedTasks = append(d.failedTasks, core.FailedTask{Task: task, Err: verr, Aborted: d.aborted})
				d.processResponse(task, nil, verr)
				continue
			}
			d.processResponse(task, &sig, nil)
		}
	default:
		d.processResponse(task, nil, nil)
	}
}

// validateEmission reports whether sig's collateral is declared in
// neuronName's axon. A task with no owning neuron (the synthetic root
// seed task) and a neuron the index no longer recognizes are both
// left unchecked; only a real, resolved neuron can misemit.
func (d *Driver) validateEmission(neuronName core.NeuronName, sig core.Signal) error {
	if neuronName == "" {
		return nil
	}
	n, ok := d.idx.NeuronByName(neuronName)
	if !ok {
		return nil
	}
	for _, c := range n.Axon {
		if c.Name == sig.CollateralName {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidEmission, neuronName, sig.CollateralName)
}

// processResponse is the per-output trace + fan-out step: it
// constructs child activation tasks for every subscriber of the
// output collateral (enforcing the hop cap per child), fires the
// trace callback with scheduledCount already reflecting those
// children, then enqueues them — immediately if onResponse is
// synchronous, otherwise once its returned future settles.
func (d *Driver) processResponse(task core.ActivationTask, outputSignal *core.Signal, err error) {
	var children []core.ActivationTask

	if outputSignal != nil && err == nil {
		nextHop := task.Hop + 1
		for _, sub := range d.idx.Subscribers(outputSignal.CollateralName) {
			if d.maxHops > 0 && d.visits[sub.Neuron.Name] >= d.maxHops {
				d.failedTasks = append(d.failedTasks, core.FailedTask{
					Task: core.ActivationTask{
						StimulationID:          d.stimID,
						NeuronName:             sub.Neuron.Name,
						DendriteCollateralName: outputSignal.CollateralName,
						InputSignal:            outputSignal,
						Hop:                    nextHop,
					},
					Err: fmt.Errorf("%w: %s", core.ErrHopCapExceeded, sub.Neuron.Name),
				})
				continue
			}
			if d.maxHops > 0 {
				d.visits[sub.Neuron.Name]++
			}
			if d.autoCleanup {
				d.markActive(sub.Neuron.Name)
			}
			children = append(children, core.ActivationTask{
				StimulationID:          d.stimID,
				NeuronName:             sub.Neuron.Name,
				DendriteCollateralName: outputSignal.CollateralName,
				InputSignal:            outputSignal,
				Hop:                    nextHop,
			})
		}

		// Children just marked active above, so if this output's owner
		// shares an SCC with one of them, the count already reflects it:
		// cleanup cannot mistake "about to hand off within the cycle" for
		// "nothing left in this SCC".
		if owner, ok := d.idx.OwnerOf(outputSignal.CollateralName); ok {
			d.cleanupCtxIfNeeded(owner)
		}
	}

	d.scheduledCount += len(children)

	record := core.ResponseRecord{
		InputSignal:     task.InputSignal,
		OutputSignal:    outputSignal,
		ContextSnapshot: d.ctxStore.GetAll(),
		QueueLength:     d.pump.QueueLength() + d.scheduledCount,
		StimulationID:   d.stimID,
		Hops:            task.Hop,
		Err:             err,
	}

	enqueue := func() {
		d.scheduledCount -= len(children)
		if d.aborted {
			for _, c := range children {
				if d.autoCleanup {
					d.markInactive(c.NeuronName)
				}
				d.failedTasks = append(d.failedTasks, core.FailedTask{Task: c, Err: core.ErrAborted, Aborted: true})
			}
		} else {
			for _, c := range children {
				d.allTasks = append(d.allTasks, c)
				d.pump.Push(c)
			}
		}
		d.drain()
	}

	if d.onResponse == nil {
		enqueue()
		return
	}

	ch := d.onResponse(record)
	if ch == nil {
		enqueue()
		return
	}

	go func() {
		respErr := <-ch
		d.command(func() {
			if respErr != nil && d.onResponseErr == nil {
				d.onResponseErr = respErr
			}
			enqueue()
		})
	}()
}
