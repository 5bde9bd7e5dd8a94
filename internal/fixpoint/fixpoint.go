// Package fixpoint implements a monotonic fixpoint iterator over an
// arbitrary directed graph, driven by the graph's weak topological order:
// plain vertices are analyzed once, each strongly connected component's
// head is re-analyzed — joining on its first few passes, widening
// thereafter — until its entry abstract state stops growing.
package fixpoint

import "dexopt/internal/wto"

// Domain is the lattice interface an abstract state must implement to be
// iterated. Join and Widen both return an upper bound of the receiver and
// other; Widen additionally guarantees termination over infinite-height
// lattices by extrapolating instead of computing the exact least upper
// bound.
type Domain[D any] interface {
	Join(other D) D
	Widen(other D) D
	Leq(other D) bool
}

// Graph is the directed graph a dataflow analysis runs over: a root to
// seed from and, for every vertex, its successors and predecessors. The
// direction of analysis (forward or backward) is a property of which CFG
// relation the caller wires as Successors/Predecessors, not of this
// package.
type Graph[T comparable] interface {
	Root() T
	Successors(v T) []T
	Predecessors(v T) []T
}

// Analyzer computes a vertex's exit abstract state from its entry state.
type Analyzer[T comparable, D Domain[D]] interface {
	Transfer(v T, entry D) D
}

// Iterator runs a monotonic fixpoint computation over a Graph, recording
// every vertex's entry and exit abstract state.
type Iterator[T comparable, D Domain[D]] struct {
	graph      Graph[T]
	analyzer   Analyzer[T, D]
	bottom     D
	widenAfter int

	seed  map[T]D
	entry map[T]D
	exit  map[T]D
}

// New builds an iterator. widenAfter is the number of join iterations an
// SCC head is given before the iterator switches to widening it; values
// less than 1 are treated as 1 (widen from the second iteration on).
func New[T comparable, D Domain[D]](g Graph[T], a Analyzer[T, D], bottom D, widenAfter int) *Iterator[T, D] {
	if widenAfter < 1 {
		widenAfter = 1
	}
	return &Iterator[T, D]{
		graph: g, analyzer: a, bottom: bottom, widenAfter: widenAfter,
		seed: make(map[T]D), entry: make(map[T]D), exit: make(map[T]D),
	}
}

// Run seeds the graph's root with initial and iterates to a fixpoint.
func (it *Iterator[T, D]) Run(initial D) {
	it.seed[it.graph.Root()] = initial
	order := wto.Build[T](it.graph)
	it.runComponents(order)
}

// EntryState returns a vertex's computed entry abstract state, or the
// bottom element if the vertex was never reached.
func (it *Iterator[T, D]) EntryState(v T) D {
	if s, ok := it.entry[v]; ok {
		return s
	}
	return it.bottom
}

// ExitState returns a vertex's computed exit abstract state, or bottom.
func (it *Iterator[T, D]) ExitState(v T) D {
	if s, ok := it.exit[v]; ok {
		return s
	}
	return it.bottom
}

func (it *Iterator[T, D]) runComponents(cs wto.Order[T]) {
	for _, c := range cs {
		it.runComponent(c)
	}
}

func (it *Iterator[T, D]) runComponent(c wto.Component[T]) {
	if c.Kind == wto.Vertex {
		it.step(c.Head, 0)
		return
	}
	iteration := 0
	for {
		it.step(c.Head, iteration)
		it.runComponents(c.Body)
		iteration++
		stableEntry := it.inState(c.Head).Leq(it.EntryState(c.Head))
		if stableEntry {
			return
		}
	}
}

// step recomputes v's entry state from its predecessors' exit states (and
// its seed, for the root), extrapolates against the previous entry state
// per the join/widen policy, and re-runs the transfer function.
func (it *Iterator[T, D]) step(v T, iteration int) {
	computed := it.inState(v)
	prev, had := it.entry[v]

	var in D
	switch {
	case !had:
		in = computed
	case iteration >= it.widenAfter:
		in = prev.Widen(computed)
	default:
		in = prev.Join(computed)
	}

	it.entry[v] = in
	it.exit[v] = it.analyzer.Transfer(v, in)
}

func (it *Iterator[T, D]) inState(v T) D {
	result := it.bottom
	has := false
	if s, ok := it.seed[v]; ok {
		result = s
		has = true
	}
	for _, p := range it.graph.Predecessors(v) {
		ex, ok := it.exit[p]
		if !ok {
			continue
		}
		if !has {
			result = ex
			has = true
		} else {
			result = result.Join(ex)
		}
	}
	return result
}
