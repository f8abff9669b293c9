package cascade

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/gate"
	"github.com/abaikov/cnstra-sub003/pkg/graph"
	"github.com/abaikov/cnstra-sub003/pkg/topology"
)

func echo(out *core.Collateral) core.ResponseHandler {
	return func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
		return core.One(out.CreateSignal(payload))
	}
}

func buildIdx(t *testing.T, neurons []*core.Neuron) *topology.Index {
	t.Helper()
	idx, err := topology.Build(neurons)
	if err != nil {
		t.Fatalf("build topology: %v", err)
	}
	return idx
}

func TestLinearChainTracesSeedAndHandlerOutput(t *testing.T) {
	x := core.NewCollateral("x")
	y := core.NewCollateral("y")

	a := &core.Neuron{Name: "A", Axon: core.Axon{"x": x}}
	b := &core.Neuron{
		Name: "B",
		Axon: core.Axon{"y": y},
		Dendrites: []*core.Dendrite{
			{Collateral: x, Response: echo(y)},
		},
	}

	idx := buildIdx(t, []*core.Neuron{a, b})
	gates := gate.NewRegistry()

	var traces []core.ResponseRecord
	var mu sync.Mutex
	onResponse := func(r core.ResponseRecord) <-chan error {
		mu.Lock()
		traces = append(traces, r)
		mu.Unlock()
		return nil
	}

	d := New(idx, nil, gates, nil, []core.Signal{x.CreateSignal(1)}, Options{OnResponse: onResponse})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(traces) != 2 {
		t.Fatalf("expected 2 traces (seed + B's handler), got %d", len(traces))
	}
	last := traces[len(traces)-1]
	if last.OutputSignal == nil || last.OutputSignal.CollateralName != "y" || last.OutputSignal.Payload != 1 {
		t.Fatalf("expected final trace to carry y=1, got %+v", last.OutputSignal)
	}
	if len(h.GetFailedTasks()) != 0 {
		t.Fatalf("expected no failed tasks")
	}
}

func TestFanOutDeclarationOrder(t *testing.T) {
	x := core.NewCollateral("x")
	var order []core.NeuronName
	var mu sync.Mutex

	record := func(name core.NeuronName) core.ResponseHandler {
		return func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return core.Nothing()
		}
	}

	b := &core.Neuron{Name: "B", Dendrites: []*core.Dendrite{{Collateral: x, Response: record("B")}}}
	c := &core.Neuron{Name: "C", Dendrites: []*core.Dendrite{{Collateral: x, Response: record("C")}}}
	e := &core.Neuron{Name: "D", Dendrites: []*core.Dendrite{{Collateral: x, Response: record("D")}}}

	idx := buildIdx(t, []*core.Neuron{b, c, e})
	gates := gate.NewRegistry()

	d := New(idx, nil, gates, nil, []core.Signal{x.CreateSignal(nil)}, Options{Concurrency: 1})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []core.NeuronName{"B", "C", "D"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected declaration order %v, got %v", want, order)
		}
	}
}

func TestCycleWithHopCapAndAutoCleanup(t *testing.T) {
	a := core.NewCollateral("a")
	b := core.NewCollateral("b")

	neuronB := &core.Neuron{Name: "B", Axon: core.Axon{"b": b}}
	neuronA := &core.Neuron{Name: "A", Axon: core.Axon{"a": a}}
	neuronB.Dendrites = []*core.Dendrite{{Collateral: a, Response: echo(b)}}
	neuronA.Dendrites = []*core.Dendrite{{Collateral: b, Response: echo(a)}}

	idx := buildIdx(t, []*core.Neuron{neuronA, neuronB})
	analyzer := graph.Build(idx)
	gates := gate.NewRegistry()

	d := New(idx, analyzer, gates, nil, []core.Signal{a.CreateSignal(1)}, Options{
		MaxNeuronHops:       3,
		AutoCleanupContexts: true,
	})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err == nil {
		t.Fatalf("expected completion to reject due to hop-cap failures")
	}

	failed := h.GetFailedTasks()
	if len(failed) == 0 {
		t.Fatalf("expected at least one hop-cap failed task")
	}
	for _, f := range failed {
		if f.Err == nil {
			t.Fatalf("expected every failed task to carry an error")
		}
	}

	if h.GetContext().Len() != 0 {
		t.Fatalf("expected context store empty after cycle settles, got %d entries", h.GetContext().Len())
	}
}

func TestPerNeuronConcurrencyLimit(t *testing.T) {
	x := core.NewCollateral("x")
	var mu sync.Mutex
	inFlight, maxSeen := 0, 0

	w := &core.Neuron{
		Name:        "W",
		Concurrency: 2,
		Dendrites: []*core.Dendrite{{
			Collateral: x,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				mu.Lock()
				inFlight++
				if inFlight > maxSeen {
					maxSeen = inFlight
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inFlight--
				mu.Unlock()
				return core.Nothing()
			},
		}},
	}

	idx := buildIdx(t, []*core.Neuron{w})
	gates := gate.NewRegistry()

	sigs := make([]core.Signal, 5)
	for i := range sigs {
		sigs[i] = x.CreateSignal(i)
	}

	d := New(idx, nil, gates, nil, sigs, Options{})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent W invocations, saw %d", maxSeen)
	}
}

func TestMaxDurationTimeoutRecordsFailedTask(t *testing.T) {
	s := core.NewCollateral("s")
	neuron := &core.Neuron{
		Name:        "S",
		MaxDuration: 20 * time.Millisecond,
		Dendrites: []*core.Dendrite{{
			Collateral: s,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				ch := make(chan core.AsyncResult)
				return core.Future(ch)
			},
		}},
	}

	idx := buildIdx(t, []*core.Neuron{neuron})
	gates := gate.NewRegistry()

	d := New(idx, nil, gates, nil, []core.Signal{s.CreateSignal(nil)}, Options{})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err == nil {
		t.Fatalf("expected completion to reject after timeout")
	}

	failed := h.GetFailedTasks()
	if len(failed) != 1 {
		t.Fatalf("expected exactly 1 failed task, got %d", len(failed))
	}
	if failed[0].Task.NeuronName != "S" {
		t.Fatalf("expected failure attributed to S, got %s", failed[0].Task.NeuronName)
	}
}

func TestAbortMidCascadeFailsRemainingQueue(t *testing.T) {
	tc := core.NewCollateral("t")
	var started int32

	subs := make([]*core.Neuron, 0, 100)
	for i := 0; i < 100; i++ {
		subs = append(subs, &core.Neuron{
			Name: core.NeuronName(neuronNameFor(i)),
			Dendrites: []*core.Dendrite{{
				Collateral: tc,
				Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
					atomic.AddInt32(&started, 1)
					time.Sleep(30 * time.Millisecond)
					return core.Nothing()
				},
			}},
		})
	}

	idx := buildIdx(t, subs)
	gates := gate.NewRegistry()
	abort := NewAbortHandle()

	d := New(idx, nil, gates, nil, []core.Signal{tc.CreateSignal(nil)}, Options{
		Concurrency: 4,
		AbortSignal: abort,
	})
	h := NewHandle(d)

	time.Sleep(10 * time.Millisecond)
	abort.Abort()

	if err := h.WaitUntilComplete(); err == nil {
		t.Fatalf("expected completion to reject on abort")
	}

	failed := h.GetFailedTasks()
	abortedCount := 0
	for _, f := range failed {
		if f.Aborted {
			abortedCount++
		}
	}
	if abortedCount == 0 {
		t.Fatalf("expected at least one task marked aborted")
	}
}

func neuronNameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "N" + string(letters[i%26]) + string(rune('0'+(i/26)%10))
}

func TestEmissionOutsideAxonFailsTask(t *testing.T) {
	x := core.NewCollateral("x")
	y := core.NewCollateral("y")
	rogue := core.NewCollateral("rogue")

	a := &core.Neuron{Name: "A", Axon: core.Axon{"x": x}}
	b := &core.Neuron{
		Name: "B",
		Axon: core.Axon{"y": y},
		Dendrites: []*core.Dendrite{
			{Collateral: x, Response: echo(rogue)},
		},
	}

	idx := buildIdx(t, []*core.Neuron{a, b})
	gates := gate.NewRegistry()

	d := New(idx, nil, gates, nil, []core.Signal{x.CreateSignal(1)}, Options{})
	h := NewHandle(d)
	if err := h.WaitUntilComplete(); err == nil {
		t.Fatalf("expected completion to reject an emission outside B's axon")
	}

	failed := h.GetFailedTasks()
	if len(failed) != 1 {
		t.Fatalf("expected exactly 1 failed task, got %d", len(failed))
	}
	if !errors.Is(failed[0].Err, core.ErrInvalidEmission) {
		t.Fatalf("expected ErrInvalidEmission, got %v", failed[0].Err)
	}
}
