// Package gate implements per-neuron concurrency gating with FIFO
// waiters. A Registry is shared across stimulations within one facade
// (the teacher's pkg/concurrency/pool.go held one such registry per
// worker pool); the registry itself just serializes access to each
// neuron's active/limit pair via the registry's own mutex, since the gate
// counters are the one piece of cross-stimulation shared mutable state
// spec.md calls out in its concurrency model.
package gate

import "sync"

import "github.com/abaikov/cnstra-sub003/pkg/core"

type neuronGate struct {
	limit   int
	active  int
	waiters []chan struct{}
}

// Registry holds one gate per neuron name, shared by every stimulation
// started from the same facade.
type Registry struct {
	mu      sync.Mutex
	neurons map[core.NeuronName]*neuronGate
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{neurons: make(map[core.NeuronName]*neuronGate)}
}

// Acquire reserves a concurrency slot for neuron name, bounded by
// limit (<=0 means unbounded). It returns immediately with a ready
// channel that receives exactly once when the slot is granted — for
// an unbounded or immediately-available gate that happens before
// Acquire returns, for a contended bounded gate it happens once an
// earlier holder releases, in FIFO order. release must be called
// exactly once, regardless of how the guarded work concluded.
func (r *Registry) Acquire(name core.NeuronName, limit int) (release func(), ready <-chan struct{}) {
	ch := make(chan struct{}, 1)

	if limit <= 0 {
		ch <- struct{}{}
		return func() {}, ch
	}

	r.mu.Lock()
	ng, ok := r.neurons[name]
	if !ok {
		ng = &neuronGate{limit: limit}
		r.neurons[name] = ng
	}
	if ng.active < ng.limit {
		ng.active++
		ch <- struct{}{}
	} else {
		ng.waiters = append(ng.waiters, ch)
	}
	r.mu.Unlock()

	released := false
	release = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if released {
			return
		}
		released = true
		if len(ng.waiters) > 0 {
			next := ng.waiters[0]
			ng.waiters = ng.waiters[1:]
			next <- struct{}{}
			return
		}
		ng.active--
	}
	return release, ch
}

// Active reports the current in-flight count for a neuron (0 if never acquired).
func (r *Registry) Active(name core.NeuronName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ng, ok := r.neurons[name]
	if !ok {
		return 0
	}
	return ng.active
}

// Waiting reports the current FIFO waiter count for a neuron.
func (r *Registry) Waiting(name core.NeuronName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ng, ok := r.neurons[name]
	if !ok {
		return 0
	}
	return len(ng.waiters)
}
