// Package callgraph builds a per-method call graph from unambiguous
// invokes: static and direct invokes always resolve to one target; virtual
// and interface invokes resolve only when override resolution yields
// exactly one candidate. The graph doubles as a
// fixpoint.Graph so the whole-program constant propagation iterator can
// walk it directly.
package callgraph

import (
	"sort"

	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// MethodID names a method the way the rest of the pipeline does: its
// declaring class plus its signature.
type MethodID = ir.MethodRef

// Edge is one caller-to-callee call site.
type Edge struct {
	Caller MethodID
	Callee MethodID
	Insn   *item.Item // the invoke instruction that produced this edge
}

// Node is one method in the graph: its own id, its CFG (nil for methods
// outside the scope the graph was built over, e.g. external library
// callees), and its in/out edges.
type Node struct {
	ID    MethodID
	Graph *cfg.Graph // nil if the method body wasn't provided to Build

	callers []*Edge
	callees []*Edge
}

func (n *Node) Callers() []*Edge { return append([]*Edge(nil), n.callers...) }
func (n *Node) Callees() []*Edge { return append([]*Edge(nil), n.callees...) }

// CallGraph is the whole-program graph of method nodes. A distinguished
// Entry node has a callee edge to every root (every method with no known
// caller within the graph), so a single traversal from Entry reaches
// everything reachable from the program's entry points.
//
// MethodRef carries a Params slice, so it is not comparable; nodes are
// keyed internally by its descriptor string (MethodRef.String()) while
// Node.ID still holds the full struct.
type CallGraph struct {
	Entry *Node
	nodes map[string]*Node
}

// Resolver answers the virtual/interface override question: given a
// callee signature as declared at the call site, return every concrete
// method it might dispatch to at runtime. Static and direct invokes never
// consult it. A Resolver is supplied by whatever owns the class hierarchy
// (out of scope for this package); Build treats a virtual/interface
// invoke as unambiguous only when Resolve returns exactly one id.
type Resolver interface {
	Resolve(callsite ir.MethodRef, op ir.Opcode) []MethodID
}

// Method is one unit of input to Build: an id and its method body (CFG),
// if known.
type Method struct {
	ID    MethodID
	Graph *cfg.Graph
}

// Build constructs the call graph over methods, whose bodies (when
// present) are scanned for invoke instructions. resolver may be nil, in
// which case only static and direct invokes contribute edges.
func Build(methods []Method, resolver Resolver) *CallGraph {
	g := &CallGraph{nodes: make(map[string]*Node, len(methods)+1)}
	for _, m := range methods {
		g.getOrCreate(m.ID).Graph = m.Graph
	}

	for _, m := range methods {
		if m.Graph == nil {
			continue
		}
		for _, b := range m.Graph.BlocksSorted() {
			b.Items.Walk(func(it *item.Item) bool {
				if it.Kind != item.KindOpcode || !it.Insn.Op.IsInvoke() {
					return true
				}
				if it.Insn.Payload.Kind != ir.PayloadMethod {
					return true
				}
				callsite := it.Insn.Payload.Method
				for _, callee := range resolveTargets(callsite, it.Insn.Op, resolver) {
					g.addEdge(m.ID, callee, it)
				}
				return true
			})
		}
	}

	g.Entry = g.getOrCreate(MethodID{Class: "<call-graph-entry>", Name: "<entry>"})
	for _, n := range g.nodes {
		if n == g.Entry {
			continue
		}
		if len(n.callers) == 0 {
			g.addEdge(g.Entry.ID, n.ID, nil)
		}
	}
	return g
}

func resolveTargets(callsite ir.MethodRef, op ir.Opcode, resolver Resolver) []MethodID {
	switch op {
	case ir.INVOKE_STATIC, ir.INVOKE_DIRECT:
		return []MethodID{callsite}
	case ir.INVOKE_VIRTUAL, ir.INVOKE_SUPER, ir.INVOKE_INTERFACE:
		if resolver == nil {
			return nil
		}
		targets := resolver.Resolve(callsite, op)
		if len(targets) != 1 {
			return nil
		}
		return targets
	default:
		return nil
	}
}

func (g *CallGraph) getOrCreate(id MethodID) *Node {
	key := id.String()
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &Node{ID: id}
	g.nodes[key] = n
	return n
}

func (g *CallGraph) addEdge(caller, callee MethodID, insn *item.Item) {
	cn := g.getOrCreate(caller)
	kn := g.getOrCreate(callee)
	e := &Edge{Caller: caller, Callee: callee, Insn: insn}
	cn.callees = append(cn.callees, e)
	kn.callers = append(kn.callers, e)
}

// Node looks up a method's node, returning (nil, false) if it was never
// seen as a method body, a resolved callee, or a caller.
func (g *CallGraph) Node(id MethodID) (*Node, bool) {
	n, ok := g.nodes[id.String()]
	return n, ok
}

// Nodes returns every node in the graph, sorted by id for deterministic
// iteration (mirroring cfg.Graph.BlocksSorted's stability guarantee).
func (g *CallGraph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return methodLess(out[i].ID, out[j].ID) })
	return out
}

func methodLess(a, b MethodID) bool {
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Return < b.Return
}

// Root implements fixpoint.Graph[*Node].
func (g *CallGraph) Root() *Node { return g.Entry }

// Successors implements fixpoint.Graph[*Node]: every distinct callee of v.
func (g *CallGraph) Successors(v *Node) []*Node {
	seen := make(map[string]bool)
	var out []*Node
	for _, e := range v.callees {
		key := e.Callee.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if n, ok := g.nodes[key]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Predecessors implements fixpoint.Graph[*Node]: every distinct caller of v.
func (g *CallGraph) Predecessors(v *Node) []*Node {
	seen := make(map[string]bool)
	var out []*Node
	for _, e := range v.callers {
		key := e.Caller.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if n, ok := g.nodes[key]; ok {
			out = append(out, n)
		}
	}
	return out
}
