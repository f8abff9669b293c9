package cascade

import (
	"fmt"

	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/topology"
)

// BFSOptions configures the lightweight dedup fan-out mode: no
// completion future, no failed-task list, no gate/pump composition —
// just a dedup'd breadth-first spread used when a caller wants
// fire-and-forget fan-out without stimulation bookkeeping.
type BFSOptions struct {
	StimulationID core.StimulationID
	MaxHops       int
	AllowType     func(core.CollateralName) bool
	OnSignal      func(core.NeuronName, core.Signal, int)
}

type bfsKey struct {
	neuron     core.NeuronName
	collateral core.CollateralName
	spikeID    core.StimulationID
	hops       int
}

type bfsItem struct {
	collateral core.CollateralName
	payload    any
	hops       int
}

// Spread drives a single dedup'd BFS fan-out from one root signal.
// Each distinct (neuronName, collateralName, spikeId, hops) tuple is
// visited at most once. Subscribers whose reaction returns an async
// future are waited on before Spread returns, so the caller observes
// completion once every reachable subscriber (sync or async) has
// settled.
func Spread(idx *topology.Index, root core.Signal, opts BFSOptions) error {
	spikeID := opts.StimulationID
	if spikeID == "" {
		spikeID = core.NewStimulationID()
	}

	visited := make(map[bfsKey]struct{})
	queue := []bfsItem{{collateral: root.CollateralName, payload: root.Payload, hops: 0}}

	var pending []<-chan core.AsyncResult
	var firstErr error

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if opts.AllowType != nil && !opts.AllowType(item.collateral) {
			continue
		}
		if opts.MaxHops > 0 && item.hops > opts.MaxHops {
			continue
		}

		for _, sub := range idx.Subscribers(item.collateral) {
			key := bfsKey{neuron: sub.Neuron.Name, collateral: item.collateral, spikeID: spikeID, hops: item.hops}
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}

			sig := core.Signal{CollateralName: item.collateral, Payload: item.payload}
			ctx := &localCtx{neuron: sub.Neuron.Name, ctx: core.NewContextStore(), abort: noopAbortSignal{}, stimID: spikeID}
			rr := sub.Dendrite.Response(item.payload, sub.Neuron.Axon, ctx)

			if opts.OnSignal != nil {
				opts.OnSignal(sub.Neuron.Name, sig, item.hops)
			}

			switch rr.Kind {
			case core.KindOne:
				queue = append(queue, bfsItem{collateral: rr.Signal.CollateralName, payload: rr.Signal.Payload, hops: item.hops + 1})
			case core.KindMany:
				for _, s := range rr.Signals {
					queue = append(queue, bfsItem{collateral: s.CollateralName, payload: s.Payload, hops: item.hops + 1})
				}
			case core.KindAsync:
				pending = append(pending, rr.Async)
			}
		}
	}

	// Late-arriving signals from async subscribers are not re-spread;
	// Spread only waits for them to settle so the caller can observe
	// completion. A caller needing the full transitive closure of async
	// fan-out should use the stimulation driver (Driver), which composes
	// the pump so deferred output keeps fanning out.
	for _, ch := range pending {
		ar := <-ch
		if ar.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("async subscriber failed: %w", ar.Err)
		}
	}

	return firstErr
}
