// Package topology builds and holds the static indexes a CNS facade is
// constructed from: neuron-by-name, collateral-by-name, the ordered
// collateral-to-subscribers fan-out list, and the single-valued
// collateral-to-owner-neuron map. The index is immutable after Build
// returns.
package topology

import (
	"errors"
	"fmt"

	"github.com/abaikov/cnstra-sub003/pkg/core"
)

// Index is the immutable result of validating and indexing a topology.
type Index struct {
	neuronOrder   []core.NeuronName
	neuronByName  map[core.NeuronName]*core.Neuron
	collByName    map[core.CollateralName]*core.Collateral
	subscribers   map[core.CollateralName][]core.Subscriber
	ownerByColl   map[core.CollateralName]core.NeuronName
}

// Build validates neurons for uniqueness and builds every index in two
// passes: neurons and their axons first, then subscribers (only when
// the first pass found no errors). On failure it returns an aggregated error (via
// errors.Join) enumerating every offending name; errors.Is still
// matches the underlying sentinel for each one.
func Build(neurons []*core.Neuron) (*Index, error) {
	idx := &Index{
		neuronByName: make(map[core.NeuronName]*core.Neuron, len(neurons)),
		collByName:   make(map[core.CollateralName]*core.Collateral),
		subscribers:  make(map[core.CollateralName][]core.Subscriber),
		ownerByColl:  make(map[core.CollateralName]core.NeuronName),
	}

	var errs []error

	for _, n := range neurons {
		if n.Name == "" {
			errs = append(errs, fmt.Errorf("%w", core.ErrEmptyNeuronName))
			continue
		}
		if _, dup := idx.neuronByName[n.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", core.ErrDuplicateNeuronName, n.Name))
			continue
		}
		idx.neuronByName[n.Name] = n
		idx.neuronOrder = append(idx.neuronOrder, n.Name)

		for _, c := range n.Axon {
			if owner, claimed := idx.ownerByColl[c.Name]; claimed && owner != n.Name {
				errs = append(errs, fmt.Errorf("%w: %s claimed by %s and %s", core.ErrDuplicateCollateral, c.Name, owner, n.Name))
				continue
			}
			idx.collByName[c.Name] = c
			idx.ownerByColl[c.Name] = n.Name
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Second pass: subscribers, in declaration order (neuron order, then
	// dendrite order within a neuron), once every axon has been indexed
	// so a dendrite may legally reference a collateral declared on a
	// neuron later in the slice.
	for _, name := range idx.neuronOrder {
		n := idx.neuronByName[name]
		for _, d := range n.Dendrites {
			if d.Collateral == nil {
				errs = append(errs, fmt.Errorf("%w: %s", core.ErrMissingDendriteInput, n.Name))
				continue
			}
			if _, ok := idx.collByName[d.Collateral.Name]; !ok {
				idx.collByName[d.Collateral.Name] = d.Collateral
			}
			idx.subscribers[d.Collateral.Name] = append(idx.subscribers[d.Collateral.Name], core.Subscriber{Neuron: n, Dendrite: d})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return idx, nil
}

// NeuronByName looks up a neuron.
func (idx *Index) NeuronByName(name core.NeuronName) (*core.Neuron, bool) {
	n, ok := idx.neuronByName[name]
	return n, ok
}

// CollateralByName looks up a collateral.
func (idx *Index) CollateralByName(name core.CollateralName) (*core.Collateral, bool) {
	c, ok := idx.collByName[name]
	return c, ok
}

// Subscribers returns the ordered subscriber list for a collateral.
func (idx *Index) Subscribers(name core.CollateralName) []core.Subscriber {
	return idx.subscribers[name]
}

// OwnerOf returns the neuron that owns the given collateral.
func (idx *Index) OwnerOf(name core.CollateralName) (core.NeuronName, bool) {
	owner, ok := idx.ownerByColl[name]
	return owner, ok
}

// Neurons returns every neuron in declaration order.
func (idx *Index) Neurons() []*core.Neuron {
	out := make([]*core.Neuron, 0, len(idx.neuronOrder))
	for _, name := range idx.neuronOrder {
		out = append(out, idx.neuronByName[name])
	}
	return out
}

// Collaterals returns every known collateral, order not significant.
func (idx *Index) Collaterals() []*core.Collateral {
	out := make([]*core.Collateral, 0, len(idx.collByName))
	for _, c := range idx.collByName {
		out = append(out, c)
	}
	return out
}

// SubscriberFor resolves an (neuronName, collateralName) pair back to
// the specific (neuron, dendrite) pair, the lookup the cascade driver
// needs to turn an ActivationTask back into a handler invocation.
func (idx *Index) SubscriberFor(name core.NeuronName, collateral core.CollateralName) (core.Subscriber, bool) {
	for _, s := range idx.subscribers[collateral] {
		if s.Neuron.Name == name {
			return s, true
		}
	}
	return core.Subscriber{}, false
}

// Dendrites returns every dendrite across every neuron, in declaration order.
func (idx *Index) Dendrites() []*core.Dendrite {
	var out []*core.Dendrite
	for _, name := range idx.neuronOrder {
		out = append(out, idx.neuronByName[name].Dendrites...)
	}
	return out
}
