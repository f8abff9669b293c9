package cns

import (
	"sync"
	"testing"

	"github.com/abaikov/cnstra-sub003/pkg/cascade"
	"github.com/abaikov/cnstra-sub003/pkg/core"
)

func TestNewRejectsDuplicateNeuronNames(t *testing.T) {
	a1 := &core.Neuron{Name: "A"}
	a2 := &core.Neuron{Name: "A"}
	if _, err := New([]*core.Neuron{a1, a2}, FacadeOptions{}); err == nil {
		t.Fatalf("expected duplicate neuron name to fail construction")
	}
}

func TestGlobalListenerFiresForEveryStimulation(t *testing.T) {
	x := core.NewCollateral("x")
	b := &core.Neuron{Name: "B", Dendrites: []*core.Dendrite{{
		Collateral: x,
		Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
			return core.Nothing()
		},
	}}}

	f, err := New([]*core.Neuron{b}, FacadeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	var globalCount int
	unsubscribe := f.AddResponseListener(func(core.ResponseRecord) <-chan error {
		mu.Lock()
		globalCount++
		mu.Unlock()
		return nil
	})
	defer unsubscribe()

	h := f.StimulateOne(x.CreateSignal(1), cascade.Options{})
	if err := h.WaitUntilComplete(); err != nil {
		t.Fatalf("unexpected stimulation error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// One trace for the root signal's fan-out, one for B's handler.
	if globalCount != 2 {
		t.Fatalf("expected exactly 2 global traces (seed + B's handler), got %d", globalCount)
	}
}

func TestLocalListenerFiresBeforeGlobalAndPanicDoesNotBreakChain(t *testing.T) {
	x := core.NewCollateral("x")
	b := &core.Neuron{Name: "B", Dendrites: []*core.Dendrite{{
		Collateral: x,
		Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
			return core.Nothing()
		},
	}}}

	f, err := New([]*core.Neuron{b}, FacadeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	var order []string
	unsubscribe := f.AddResponseListener(func(core.ResponseRecord) <-chan error {
		mu.Lock()
		order = append(order, "global")
		mu.Unlock()
		return nil
	})
	defer unsubscribe()

	local := func(core.ResponseRecord) <-chan error {
		mu.Lock()
		order = append(order, "local")
		mu.Unlock()
		panic("boom")
	}

	h := f.StimulateOne(x.CreateSignal(1), cascade.Options{OnResponse: local})
	if err := h.WaitUntilComplete(); err == nil {
		t.Fatalf("expected local listener panic to surface as a completion error")
	}

	mu.Lock()
	defer mu.Unlock()
	// Two traces (seed + B's handler), each local-then-global.
	if len(order) != 4 || order[0] != "local" || order[1] != "global" || order[2] != "local" || order[3] != "global" {
		t.Fatalf("expected local-then-global order for each of 2 traces, got %v", order)
	}
}

func TestUnsubscribeStopsFutureDelivery(t *testing.T) {
	x := core.NewCollateral("x")
	b := &core.Neuron{Name: "B", Dendrites: []*core.Dendrite{{
		Collateral: x,
		Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
			return core.Nothing()
		},
	}}}

	f, err := New([]*core.Neuron{b}, FacadeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	count := 0
	unsubscribe := f.AddResponseListener(func(core.ResponseRecord) <-chan error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	unsubscribe()

	h := f.StimulateOne(x.CreateSignal(1), cascade.Options{})
	if err := h.WaitUntilComplete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", count)
	}
}
