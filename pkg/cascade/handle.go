package cascade

import "github.com/abaikov/cnstra-sub003/pkg/core"

// Handle is the external view of a running (or finished) stimulation,
// returned by pkg/cns's Facade.Stimulate.
type Handle struct {
	d *Driver
}

// NewHandle wraps a driver in its external handle surface.
func NewHandle(d *Driver) *Handle {
	return &Handle{d: d}
}

// WaitUntilComplete blocks until the stimulation resolves, returning
// nil on success or the single representative completion error.
func (h *Handle) WaitUntilComplete() error {
	<-h.d.doneCh
	return h.d.resultErr
}

// Done returns a channel closed exactly once, when the stimulation resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.d.doneCh
}

// GetAllActivationTasks returns every activation task pushed onto this
// stimulation's queue, in push order. Tasks rejected by the hop cap, or
// discarded on abort before they were queued, are not included.
func (h *Handle) GetAllActivationTasks() []core.ActivationTask {
	var out []core.ActivationTask
	h.d.query(func() {
		out = make([]core.ActivationTask, len(h.d.allTasks))
		copy(out, h.d.allTasks)
	})
	return out
}

// GetFailedTasks returns every task that did not complete successfully.
func (h *Handle) GetFailedTasks() []core.FailedTask {
	var out []core.FailedTask
	h.d.query(func() {
		out = make([]core.FailedTask, len(h.d.failedTasks))
		copy(out, h.d.failedTasks)
	})
	return out
}

// GetContext returns the stimulation's context store.
func (h *Handle) GetContext() *core.ContextStore {
	return h.d.ctxStore
}

// StimulationID returns the stimulation's identifier.
func (h *Handle) StimulationID() core.StimulationID {
	return h.d.stimID
}

// EnqueueTasks injects caller-provided activation tasks directly onto
// the pump queue, bypassing fan-out. Tasks enqueued after the
// stimulation has completed (for instance one started with no root
// signals) still run, but WaitUntilComplete does not wait for them;
// replaying a captured task list goes through NewFromTasks
// (Facade.StimulateFromTasks) instead, which queues the tasks before
// completion can be observed.
func (h *Handle) EnqueueTasks(tasks []core.ActivationTask) {
	h.d.command(func() {
		for _, t := range tasks {
			h.d.allTasks = append(h.d.allTasks, t)
			h.d.pump.Push(t)
		}
		h.d.drain()
	})
}
