package cascade

import "github.com/abaikov/cnstra-sub003/pkg/core"

// localCtx is the core.LocalCtx a dendrite handler receives, scoped to
// its owning neuron for the lifetime of one stimulation.
type localCtx struct {
	neuron core.NeuronName
	ctx    *core.ContextStore
	abort  core.AbortSignal
	facade core.FacadeRef
	stimID core.StimulationID
}

func (l *localCtx) Get() (any, bool)           { return l.ctx.Get(l.neuron) }
func (l *localCtx) Set(value any)              { l.ctx.Set(l.neuron, value) }
func (l *localCtx) Delete()                    { l.ctx.Delete(l.neuron) }
func (l *localCtx) AbortSignal() core.AbortSignal { return l.abort }
func (l *localCtx) CNS() core.FacadeRef        { return l.facade }
func (l *localCtx) StimulationID() core.StimulationID { return l.stimID }

// noopAbortSignal is used when a stimulation has no caller-supplied
// abort handle, so LocalCtx.AbortSignal() never returns nil.
type noopAbortSignal struct{}

func (noopAbortSignal) Aborted() bool        { return false }
func (noopAbortSignal) Done() <-chan struct{} { return nil }
