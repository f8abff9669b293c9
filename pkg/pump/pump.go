// Package pump implements the bounded-concurrency activation pump.
//
// A Pump is intentionally NOT its own concurrent actor: spec.md's
// concurrency model requires that "all task state mutation — pump
// counters, gate counters, pending/scheduled sets... — is confined to
// the dispatching thread." Here the dispatching thread is the
// stimulation driver's own loop goroutine (pkg/cascade); Pump is a
// plain, synchronous scheduler that loop calls into directly. Worker
// goroutines the driver spawns to actually run a task (sync or async
// handlers alike) report completion back on a channel only the
// driver's loop reads, the same shape as the teacher's worker loop
// (pkg/concurrency/brain_worker.go's run/processOp reading an ops
// channel) — just with the scheduling bookkeeping factored out here.
//
// The source's "pumping"/"needsPump" reentrancy-guard booleans exist
// to collapse recursive pump requests arriving while a pump pass is
// already running. Driving Pump synchronously from one owning
// goroutine makes that collapse automatic: Start is a plain function
// call with no way to re-enter itself, and the driver simply calls
// Start again each time it loops back around after consuming an
// event — there is never more than one "pump pass" active at a time
// by construction.
package pump

import "github.com/abaikov/cnstra-sub003/pkg/deque"

// Pump is a bounded-concurrency task queue. It is not safe for
// concurrent use — all of its methods must be called from the single
// goroutine that owns the stimulation.
type Pump struct {
	limit  int
	active int
	tasks  *deque.Deque[any]
}

// New creates a pump bounded by limit (<=0 means unbounded).
func New(limit int) *Pump {
	return &Pump{limit: limit, tasks: deque.New[any]()}
}

// Push appends a task to the back of the queue.
func (p *Pump) Push(task any) {
	p.tasks.PushBack(task)
}

// Start pops and returns as many queued tasks as the concurrency
// limit currently allows, incrementing Active for each one returned.
// The caller runs each started task (typically on its own goroutine)
// and calls Finish exactly once per task once it settles.
func (p *Pump) Start() []any {
	var started []any
	for (p.limit <= 0 || p.active < p.limit) && p.tasks.Len() > 0 {
		t, _ := p.tasks.PopFront()
		p.active++
		started = append(started, t)
	}
	return started
}

// Drain removes and returns every currently queued (not in-flight)
// task without affecting Active, head first. Used by an owner that
// aborts and wants to fail out work that never got a chance to start.
func (p *Pump) Drain() []any {
	var out []any
	for p.tasks.Len() > 0 {
		t, _ := p.tasks.PopFront()
		out = append(out, t)
	}
	return out
}

// Finish records that one previously started task has settled.
func (p *Pump) Finish() {
	p.active--
}

// Active reports the current in-flight operation count.
func (p *Pump) Active() int {
	return p.active
}

// QueueLength reports the current queue depth (not including in-flight tasks).
func (p *Pump) QueueLength() int {
	return p.tasks.Len()
}

// Snapshot returns the currently queued (not in-flight) tasks, head first.
func (p *Pump) Snapshot() []any {
	return p.tasks.Snapshot()
}
