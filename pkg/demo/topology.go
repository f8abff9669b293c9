// Package demo builds the small sample topology cnsdemo and cnsrepl
// both run: a linear relay (ingest -> normalize -> publish), a
// declaration-ordered fan-out of loggers, and a two-neuron cycle
// (ping/pong) bounded by maxNeuronHops. It exists purely to give the
// command-line tools something concrete to stimulate.
package demo

import (
	"fmt"
	"strings"

	"github.com/abaikov/cnstra-sub003/pkg/core"
)

// Collateral names the demo topology emits on, exported so callers can
// name a root signal to stimulate without re-declaring every collateral.
const (
	CollateralIngest    = core.CollateralName("ingest")
	CollateralNormalized = core.CollateralName("normalized")
	CollateralPublished = core.CollateralName("published")
	CollateralPing      = core.CollateralName("ping")
	CollateralPong      = core.CollateralName("pong")
)

// Build constructs the demo neuron set.
func Build() []*core.Neuron {
	ingest := core.NewCollateral(CollateralIngest)
	normalized := core.NewCollateral(CollateralNormalized)
	published := core.NewCollateral(CollateralPublished)
	ping := core.NewCollateral(CollateralPing)
	pong := core.NewCollateral(CollateralPong)

	normalizer := &core.Neuron{
		Name: "Normalizer",
		Axon: core.Axon{"normalized": normalized},
		Dendrites: []*core.Dendrite{{
			Collateral: ingest,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				s, _ := payload.(string)
				return core.One(normalized.CreateSignal(strings.ToLower(strings.TrimSpace(s))))
			},
		}},
	}

	publisher := &core.Neuron{
		Name:        "Publisher",
		Axon:        core.Axon{"published": published},
		Concurrency: 2,
		Dendrites: []*core.Dendrite{{
			Collateral: normalized,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				ctx.Set(payload)
				return core.One(published.CreateSignal(payload))
			},
		}},
	}

	loggerA := newLogger("LoggerA", published)
	loggerB := newLogger("LoggerB", published)
	loggerC := newLogger("LoggerC", published)

	pingNeuron := &core.Neuron{
		Name: "Ping",
		Axon: core.Axon{"ping": ping},
		Dendrites: []*core.Dendrite{{
			Collateral: pong,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				n, _ := payload.(int)
				ctx.Set(n)
				return core.One(ping.CreateSignal(n + 1))
			},
		}},
	}
	pongNeuron := &core.Neuron{
		Name: "Pong",
		Axon: core.Axon{"pong": pong},
		Dendrites: []*core.Dendrite{{
			Collateral: ping,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				n, _ := payload.(int)
				ctx.Set(n)
				return core.One(pong.CreateSignal(n + 1))
			},
		}},
	}

	return []*core.Neuron{normalizer, publisher, loggerA, loggerB, loggerC, pingNeuron, pongNeuron}
}

func newLogger(name core.NeuronName, in *core.Collateral) *core.Neuron {
	return &core.Neuron{
		Name: name,
		Dendrites: []*core.Dendrite{{
			Collateral: in,
			Response: func(payload any, axon core.Axon, ctx core.LocalCtx) core.ReactionReturn {
				ctx.Set(fmt.Sprintf("%s saw %v", name, payload))
				return core.Nothing()
			},
		}},
	}
}
