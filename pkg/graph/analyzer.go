// Package graph analyzes the directed neuron graph derived from a
// topology: an edge u -> v exists iff some collateral in u's axon is
// the input collateral of some dendrite on v. The analyzer decomposes
// this graph into strongly connected components, builds the
// condensation DAG, and computes each SCC's ancestor closure — the
// exact safety condition for early deletion of a neuron's context slot
// during a running cascade (see pkg/cascade).
package graph

import (
	"sort"

	"github.com/abaikov/cnstra-sub003/pkg/core"
	"github.com/abaikov/cnstra-sub003/pkg/topology"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Analyzer holds the static SCC/ancestor tables for one topology. It is
// immutable after Build and safe for concurrent read access across
// stimulations.
type Analyzer struct {
	sccOfNeuron map[core.NeuronName]int
	sccMembers  [][]core.NeuronName
	// ancestors[scc] is the set of SCC ids (including scc itself) that
	// can reach scc in the condensation DAG.
	ancestors []map[int]struct{}
}

// Build analyzes idx's neuron graph.
func Build(idx *topology.Index) *Analyzer {
	neurons := idx.Neurons()
	names := make([]core.NeuronName, len(neurons))
	for i, n := range neurons {
		names[i] = n.Name
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	idOf := make(map[core.NeuronName]int64, len(names))
	idToName := make([]core.NeuronName, len(names))
	g := simple.NewDirectedGraph()
	for i, name := range names {
		idOf[name] = int64(i)
		idToName[i] = name
		g.AddNode(simple.Node(int64(i)))
	}

	for _, name := range names {
		n, _ := idx.NeuronByName(name)
		u := idOf[name]
		for _, c := range n.Axon {
			for _, sub := range idx.Subscribers(c.Name) {
				v := idOf[sub.Neuron.Name]
				if u != v && !g.HasEdgeFromTo(u, v) {
					g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
				}
			}
		}
	}

	// TarjanSCC performs its own iterative traversal internally, so no
	// recursive call stack is used here regardless of graph depth.
	sccs := topo.TarjanSCC(g)

	sccOfNeuron := make(map[core.NeuronName]int, len(names))
	sccMembers := make([][]core.NeuronName, len(sccs))
	for sccID, comp := range sccs {
		members := make([]core.NeuronName, len(comp))
		for i, node := range comp {
			name := idToName[node.ID()]
			sccOfNeuron[name] = sccID
			members[i] = name
		}
		sccMembers[sccID] = members
	}

	cg := simple.NewDirectedGraph()
	for i := range sccs {
		cg.AddNode(simple.Node(int64(i)))
	}
	seen := make(map[[2]int]struct{})
	for _, name := range names {
		n, _ := idx.NeuronByName(name)
		uSCC := sccOfNeuron[name]
		for _, c := range n.Axon {
			for _, sub := range idx.Subscribers(c.Name) {
				vSCC := sccOfNeuron[sub.Neuron.Name]
				if uSCC == vSCC {
					continue
				}
				key := [2]int{uSCC, vSCC}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				cg.SetEdge(simple.Edge{F: simple.Node(int64(uSCC)), T: simple.Node(int64(vSCC))})
			}
		}
	}

	return &Analyzer{
		sccOfNeuron: sccOfNeuron,
		sccMembers:  sccMembers,
		ancestors:   kahnAncestors(cg, len(sccs)),
	}
}

// kahnAncestors computes, for every SCC id in a condensation DAG with n
// nodes, the set of SCC ids (including itself) that can reach it. It
// sweeps the DAG in Kahn topological order: a node is only dequeued
// once every predecessor has already contributed its ancestor set, so
// propagating ancestors[u] into ancestors[v] along edge u->v at
// dequeue-time of u is always complete.
func kahnAncestors(cg *simple.DirectedGraph, n int) []map[int]struct{} {
	ancestors := make([]map[int]struct{}, n)
	for i := 0; i < n; i++ {
		ancestors[i] = map[int]struct{}{i: {}}
	}
	if n == 0 {
		return ancestors
	}

	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		it := cg.To(int64(i))
		for it.Next() {
			indegree[i]++
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		it := cg.From(int64(u))
		for it.Next() {
			v := int(it.Node().ID())
			for a := range ancestors[u] {
				ancestors[v][a] = struct{}{}
			}
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	return ancestors
}

// SCCIndexByNeuronName returns the SCC id a neuron belongs to.
func (a *Analyzer) SCCIndexByNeuronName(name core.NeuronName) (int, bool) {
	idx, ok := a.sccOfNeuron[name]
	return idx, ok
}

// StronglyConnectedComponents returns every SCC as a list of neuron
// name sets, in the order Tarjan produced them.
func (a *Analyzer) StronglyConnectedComponents() [][]core.NeuronName {
	out := make([][]core.NeuronName, len(a.sccMembers))
	for i, members := range a.sccMembers {
		cp := make([]core.NeuronName, len(members))
		copy(cp, members)
		out[i] = cp
	}
	return out
}

// CanNeuronBeGuaranteedDone reports whether a neuron's context slot is
// safe to delete right now: its own SCC has zero active neurons, and no
// SCC in its ancestor closure has any active neuron either. activeSccCounts
// is owned by the caller (one per stimulation) and keyed by SCC id.
func (a *Analyzer) CanNeuronBeGuaranteedDone(name core.NeuronName, activeSccCounts map[int]int) bool {
	scc, ok := a.sccOfNeuron[name]
	if !ok {
		return true
	}
	for ancestorSCC := range a.ancestors[scc] {
		if activeSccCounts[ancestorSCC] > 0 {
			return false
		}
	}
	return true
}
