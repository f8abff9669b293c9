// Package watchdog implements an opt-in per-stimulation staleness
// monitor: if no response is traced within an idle threshold, it
// triggers a stimulation's abort handle. Disabled by default (spec.md
// has no watchdog concept at all — this is ambient supplementary
// tooling), and grounded on the teacher's pkg/lifecycle.Manager, which
// tracks per-resource activity against idle/sleep/dormant thresholds
// and fires callbacks on transition; here there is exactly one
// threshold and exactly one transition (idle -> abort).
package watchdog

import (
	"sync"
	"time"
)

// Trigger is invoked once, from the watchdog's own goroutine, when the
// idle threshold elapses without a Kick.
type Trigger func()

// Watchdog aborts cooperatively-cancellable work that goes quiet for
// longer than its idle threshold.
type Watchdog struct {
	idleTimeout time.Duration
	trigger     Trigger

	mu       sync.Mutex
	lastKick time.Time
	stopped  bool
	stopCh   chan struct{}
}

// Start creates and starts a watchdog. A non-positive idleTimeout
// disables it: Start still returns a usable, inert Watchdog whose
// Stop is a no-op, so callers do not need to branch on configuration.
func Start(idleTimeout time.Duration, trigger Trigger) *Watchdog {
	w := &Watchdog{
		idleTimeout: idleTimeout,
		trigger:     trigger,
		lastKick:    time.Now(),
		stopCh:      make(chan struct{}),
	}
	if idleTimeout <= 0 {
		w.stopped = true
		return w
	}
	go w.run()
	return w
}

// Kick records activity, resetting the idle clock.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastKick = time.Now()
}

// Stop permanently disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
}

func (w *Watchdog) run() {
	ticker := time.NewTicker(w.idleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			idleFor := time.Since(w.lastKick)
			stopped := w.stopped
			w.mu.Unlock()
			if stopped {
				return
			}
			if idleFor >= w.idleTimeout {
				w.Stop()
				if w.trigger != nil {
					w.trigger()
				}
				return
			}
		}
	}
}
