package e2e

import (
	"reflect"
	"testing"

	"github.com/abaikov/cnstra-sub003/pkg/cascade"
	"github.com/abaikov/cnstra-sub003/pkg/cns"
	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/replay"
)

// A replayed task list must drive the same topology to the same
// terminal context snapshot as the original fresh stimulation did,
// once encoded, decoded, and fed back in through StimulateFromTasks.
func TestReplayRoundTripReachesSameTerminalState(t *testing.T) {
	x := core.NewCollateral("x")
	y := core.NewCollateral("y")

	newTopology := func() []*core.Neuron {
		a := &core.Neuron{Name: "A", Axon: core.Axon{"x": x}}
		b := &core.Neuron{
			Name: "B",
			Axon: core.Axon{"y": y},
			Dendrites: []*core.Dendrite{{
				Collateral: x,
				Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
					ctx.Set(payload)
					return core.One(y.CreateSignal(payload))
				},
			}},
		}
		c := &core.Neuron{
			Name: "C",
			Dendrites: []*core.Dendrite{{
				Collateral: y,
				Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
					ctx.Set(payload)
					return core.Nothing()
				},
			}},
		}
		return []*core.Neuron{a, b, c}
	}

	f1, err := cns.New(newTopology(), cns.FacadeOptions{})
	if err != nil {
		t.Fatalf("facade: %v", err)
	}

	h1 := f1.StimulateOne(x.CreateSignal(42), cascade.Options{})
	if err := h1.WaitUntilComplete(); err != nil {
		t.Fatalf("original stimulation failed: %v", err)
	}
	wantCtx := h1.GetContext().GetAll()
	tasks := h1.GetAllActivationTasks()

	capture := replay.Capture{
		StimulationID: h1.StimulationID(),
		RootSignals:   []core.Signal{x.CreateSignal(42)},
		Tasks:         tasks,
	}
	data, err := replay.Encode(capture)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := replay.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	f2, err := cns.New(newTopology(), cns.FacadeOptions{})
	if err != nil {
		t.Fatalf("facade: %v", err)
	}

	h2 := f2.StimulateFromTasks(got.Tasks, cascade.Options{})
	if err := h2.WaitUntilComplete(); err != nil {
		t.Fatalf("replayed stimulation failed: %v", err)
	}

	if !reflect.DeepEqual(wantCtx, h2.GetContext().GetAll()) {
		t.Fatalf("expected replayed context %+v to match original %+v", h2.GetContext().GetAll(), wantCtx)
	}
}
