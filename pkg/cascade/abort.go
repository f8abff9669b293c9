package cascade

import "sync"

// AbortHandle is the cooperative cancellation handle a caller passes
// to a stimulation via Options.AbortSignal and later triggers with
// Abort(). It satisfies core.AbortSignal.
type AbortHandle struct {
	mu      sync.Mutex
	done    chan struct{}
	aborted bool
}

// NewAbortHandle creates an un-triggered abort handle.
func NewAbortHandle() *AbortHandle {
	return &AbortHandle{done: make(chan struct{})}
}

// Abort triggers the handle. Safe to call more than once or from
// multiple goroutines; only the first call has an effect.
func (a *AbortHandle) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aborted {
		return
	}
	a.aborted = true
	close(a.done)
}

// Aborted reports whether Abort has been called.
func (a *AbortHandle) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}

// Done returns a channel closed exactly once, when Abort is called.
func (a *AbortHandle) Done() <-chan struct{} {
	return a.done
}
