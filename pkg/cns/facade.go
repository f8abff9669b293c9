// Package cns implements the CNS facade: the entry point that
// validates a topology once, holds the shared per-neuron gate
// registry and global response listeners, and starts a new
// pkg/cascade.Driver for every Stimulate call. Grounded on the
// teacher's pkg/api/server.go, which plays the same role — a long-lived
// struct built once from a config/topology and handed out to callers
// that drive many independent requests against the shared state it
// owns.
package cns

import (
	"fmt"
	"sync"

	"github.com/abaikov/cnstra-sub003/pkg/cascade"
	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/gate"
	"github.com/abaikov/cnstra-sub003/pkg/graph"
	"github.com/abaikov/cnstra-sub003/pkg/topology"
)

// FacadeOptions configures construction.
type FacadeOptions struct {
	// AutoCleanupContexts enables SCC-based early context deletion.
	// When true the facade also builds the graph analyzer up front.
	AutoCleanupContexts bool
}

// Facade is the validated, constructed topology plus the shared
// runtime state every stimulation from it draws on.
type Facade struct {
	idx      *topology.Index
	analyzer *graph.Analyzer
	gates    *gate.Registry

	autoCleanup bool

	mu        sync.Mutex
	listeners []core.OnResponse
}

// New validates neurons and builds the facade. It returns an
// aggregated error (via topology.Build) listing every offending
// neuron/collateral name on failure.
func New(neurons []*core.Neuron, opts FacadeOptions) (*Facade, error) {
	idx, err := topology.Build(neurons)
	if err != nil {
		return nil, fmt.Errorf("cns: invalid topology: %w", err)
	}

	var analyzer *graph.Analyzer
	if opts.AutoCleanupContexts {
		analyzer = graph.Build(idx)
	}

	return &Facade{
		idx:         idx,
		analyzer:    analyzer,
		gates:       gate.NewRegistry(),
		autoCleanup: opts.AutoCleanupContexts,
	}, nil
}

// AddResponseListener registers a global observer invoked for every
// response in every stimulation started from this facade. The
// returned unsubscribe function removes it; calling it more than once
// is a no-op.
func (f *Facade) AddResponseListener(fn core.OnResponse) (unsubscribe func()) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	f.mu.Unlock()

	removed := false
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if removed || idx >= len(f.listeners) || f.listeners[idx] == nil {
			return
		}
		removed = true
		f.listeners[idx] = nil
	}
}

// wrapOnResponse composes a local-to-one-stimulation trace callback
// with every global listener: local fires first; globals always fire
// afterward, even if local panics; a panicking global must not break
// the chain for its siblings, so each is isolated and its error
// swallowed after a best-effort invocation.
func (f *Facade) wrapOnResponse(local core.OnResponse) core.OnResponse {
	return func(r core.ResponseRecord) <-chan error {
		var localErr error
		if local != nil {
			localErr = callLocal(local, r)
		}

		f.mu.Lock()
		snapshot := make([]core.OnResponse, len(f.listeners))
		copy(snapshot, f.listeners)
		f.mu.Unlock()

		for _, g := range snapshot {
			if g == nil {
				continue
			}
			func() {
				defer func() { _ = recover() }()
				if ch := g(r); ch != nil {
					<-ch
				}
			}()
		}

		if localErr == nil {
			return nil
		}
		out := make(chan error, 1)
		out <- localErr
		return out
	}
}

// callLocal invokes the local trace callback, converting a panic into
// a returned error and waiting out any future it returns.
func callLocal(local core.OnResponse, r core.ResponseRecord) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("onResponse listener panicked: %v", rec)
		}
	}()
	ch := local(r)
	if ch == nil {
		return nil
	}
	return <-ch
}

// Stimulate injects one or more signals and returns a handle to the
// resulting stimulation.
func (f *Facade) Stimulate(signals []core.Signal, opts cascade.Options) *cascade.Handle {
	opts.AutoCleanupContexts = f.autoCleanup
	opts.OnResponse = f.wrapOnResponse(opts.OnResponse)
	d := cascade.New(f.idx, f.analyzer, f.gates, f, signals, opts)
	return cascade.NewHandle(d)
}

// StimulateOne is a convenience wrapper over Stimulate for the common
// case of a single root signal.
func (f *Facade) StimulateOne(signal core.Signal, opts cascade.Options) *cascade.Handle {
	return f.Stimulate([]core.Signal{signal}, opts)
}

// StimulateFromTasks replays a previously captured task list (see
// pkg/replay) against a fresh stimulation instead of fanning out from
// a root signal.
func (f *Facade) StimulateFromTasks(tasks []core.ActivationTask, opts cascade.Options) *cascade.Handle {
	opts.AutoCleanupContexts = f.autoCleanup
	opts.OnResponse = f.wrapOnResponse(opts.OnResponse)
	d := cascade.NewFromTasks(f.idx, f.analyzer, f.gates, f, tasks, opts)
	return cascade.NewHandle(d)
}

// GetNeuronByName implements core.FacadeRef.
func (f *Facade) GetNeuronByName(name core.NeuronName) (*core.Neuron, bool) {
	return f.idx.NeuronByName(name)
}

// GetCollateralByName implements core.FacadeRef.
func (f *Facade) GetCollateralByName(name core.CollateralName) (*core.Collateral, bool) {
	return f.idx.CollateralByName(name)
}

// GetNeurons returns every neuron in declaration order.
func (f *Facade) GetNeurons() []*core.Neuron { return f.idx.Neurons() }

// GetCollaterals returns every known collateral.
func (f *Facade) GetCollaterals() []*core.Collateral { return f.idx.Collaterals() }

// GetDendrites returns every dendrite across every neuron.
func (f *Facade) GetDendrites() []*core.Dendrite { return f.idx.Dendrites() }

// GetSubscribers returns the ordered subscriber list for a collateral.
func (f *Facade) GetSubscribers(name core.CollateralName) []core.Subscriber {
	return f.idx.Subscribers(name)
}

// GetParentNeuronByCollateralName returns the neuron that owns a collateral.
func (f *Facade) GetParentNeuronByCollateralName(name core.CollateralName) (core.NeuronName, bool) {
	return f.idx.OwnerOf(name)
}

// StronglyConnectedComponents returns every SCC as a neuron-name set,
// or nil when auto-cleanup (and therefore the analyzer) is disabled.
func (f *Facade) StronglyConnectedComponents() [][]core.NeuronName {
	if f.analyzer == nil {
		return nil
	}
	return f.analyzer.StronglyConnectedComponents()
}

// GetSccIndexByNeuronName returns the SCC id a neuron belongs to.
func (f *Facade) GetSccIndexByNeuronName(name core.NeuronName) (int, bool) {
	if f.analyzer == nil {
		return 0, false
	}
	return f.analyzer.SCCIndexByNeuronName(name)
}

// CanNeuronBeGuaranteedDone reports whether a neuron's context slot
// could be safely deleted given the supplied active-SCC accounting.
func (f *Facade) CanNeuronBeGuaranteedDone(name core.NeuronName, activeSccCounts map[int]int) bool {
	if f.analyzer == nil {
		return true
	}
	return f.analyzer.CanNeuronBeGuaranteedDone(name, activeSccCounts)
}
