package topology

import (
	"errors"
	"testing"

	"github.com/abaikov/cnstra-sub003/pkg/core"
)

func simpleNeuron(name core.NeuronName, axonKey string, axonColl *core.Collateral, dendrites ...*core.Dendrite) *core.Neuron {
	n := &core.Neuron{Name: name, Dendrites: dendrites}
	if axonColl != nil {
		n.Axon = core.Axon{axonKey: axonColl}
	}
	return n
}

func TestBuildRejectsDuplicateNeuronName(t *testing.T) {
	a := simpleNeuron("A", "", nil)
	b := simpleNeuron("A", "", nil)
	_, err := Build([]*core.Neuron{a, b})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, core.ErrDuplicateNeuronName) {
		t.Fatalf("expected ErrDuplicateNeuronName, got %v", err)
	}
}

func TestBuildRejectsEmptyName(t *testing.T) {
	_, err := Build([]*core.Neuron{simpleNeuron("", "", nil)})
	if !errors.Is(err, core.ErrEmptyNeuronName) {
		t.Fatalf("expected ErrEmptyNeuronName, got %v", err)
	}
}

func TestBuildRejectsDuplicateCollateralOwner(t *testing.T) {
	x := core.NewCollateral("x")
	a := simpleNeuron("A", "x", x)
	b := simpleNeuron("B", "x", x)
	_, err := Build([]*core.Neuron{a, b})
	if !errors.Is(err, core.ErrDuplicateCollateral) {
		t.Fatalf("expected ErrDuplicateCollateral, got %v", err)
	}
}

func TestBuildOrdersSubscribersByDeclaration(t *testing.T) {
	x := core.NewCollateral("x")
	y := core.NewCollateral("y")
	owner := simpleNeuron("Owner", "x", x)
	dendriteOn := func(c *core.Collateral) *core.Dendrite {
		return &core.Dendrite{Collateral: c, Response: func(any, core.Axon, core.LocalCtx) core.ReactionReturn { return core.Nothing() }}
	}
	b := simpleNeuron("B", "y", y, dendriteOn(x))
	c := simpleNeuron("C", "", nil, dendriteOn(x))
	d := simpleNeuron("D", "", nil, dendriteOn(x))

	idx, err := Build([]*core.Neuron{owner, b, c, d})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	subs := idx.Subscribers("x")
	if len(subs) != 3 {
		t.Fatalf("expected 3 subscribers, got %d", len(subs))
	}
	wantOrder := []core.NeuronName{"B", "C", "D"}
	for i, want := range wantOrder {
		if subs[i].Neuron.Name != want {
			t.Fatalf("subscriber %d: want %s got %s", i, want, subs[i].Neuron.Name)
		}
	}
	owner2, ok := idx.OwnerOf("x")
	if !ok || owner2 != "Owner" {
		t.Fatalf("expected Owner to own x, got %v %v", owner2, ok)
	}
}
