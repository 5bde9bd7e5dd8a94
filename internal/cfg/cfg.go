// Package cfg implements the editable control-flow graph over the method
// item stream: block structure, typed edges, try/catch lowering on build
// and re-lowering on linearization, and block reordering by WTO of chains.
package cfg

import (
	"fmt"
	"strings"

	cerrors "dexopt/internal/errors"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// Graph holds a map from block id to block, the entry block, an optional
// computed exit block, the set of all edges, and the method's register
// count.
type Graph struct {
	Method string

	blocks   map[int]*Block
	Entry    *Block
	Exit     *Block
	edges    map[*Edge]struct{}
	RegCount int

	nextBlockID int
}

func New(method string) *Graph {
	return &Graph{Method: method, blocks: make(map[int]*Block), edges: make(map[*Edge]struct{})}
}

func (g *Graph) CreateBlock() *Block {
	b := newBlock(g.nextBlockID)
	g.nextBlockID++
	g.blocks[b.ID] = b
	return b
}

func (g *Graph) Blocks() map[int]*Block { return g.blocks }

// BlocksSorted returns every block ordered by id, for deterministic
// iteration (construction and simplify are id-order sensitive).
func (g *Graph) BlocksSorted() []*Block {
	out := make([]*Block, 0, len(g.blocks))
	for _, b := range g.blocks {
		out = append(out, b)
	}
	sortBlocksByID(out)
	return out
}

func sortBlocksByID(bs []*Block) {
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j-1].ID > bs[j].ID; j-- {
			bs[j-1], bs[j] = bs[j], bs[j-1]
		}
	}
}

// AddEdge links src -> tgt with the given kind, maintaining both
// directions' adjacency lists per the "every edge appears in exactly one
// predecessor's succ list and one successor's pred list" invariant.
func (g *Graph) AddEdge(src, tgt *Block, kind EdgeKind) *Edge {
	e := &Edge{Kind: kind, Src: src, Tgt: tgt}
	g.addEdge(e)
	return e
}

func (g *Graph) AddBranchEdge(src, tgt *Block, caseKey *int32) *Edge {
	e := &Edge{Kind: Branch, Src: src, Tgt: tgt, CaseKey: caseKey}
	g.addEdge(e)
	return e
}

func (g *Graph) AddThrowEdge(src, tgt *Block, catchType ir.TypeRef, index int) *Edge {
	e := &Edge{Kind: Throw, Src: src, Tgt: tgt, CatchType: catchType, Index: index}
	g.addEdge(e)
	return e
}

func (g *Graph) addEdge(e *Edge) {
	e.Src.succs = append(e.Src.succs, e)
	e.Tgt.preds = append(e.Tgt.preds, e)
	g.edges[e] = struct{}{}
}

// RemoveEdge deletes e from both adjacency lists and the edge set.
func (g *Graph) RemoveEdge(e *Edge) {
	e.Src.succs = removeEdge(e.Src.succs, e)
	e.Tgt.preds = removeEdge(e.Tgt.preds, e)
	delete(g.edges, e)
}

func removeEdge(list []*Edge, e *Edge) []*Edge {
	out := list[:0]
	for _, x := range list {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

// RemoveBlock deletes a block together with all its outgoing and incoming
// edges and all its items.
func (g *Graph) RemoveBlock(b *Block) {
	for _, e := range append([]*Edge(nil), b.succs...) {
		g.RemoveEdge(e)
	}
	for _, e := range append([]*Edge(nil), b.preds...) {
		g.RemoveEdge(e)
	}
	delete(g.blocks, b.ID)
}

// RetargetEdge changes the target of edge e to tgt, keeping adjacency
// lists consistent.
func (g *Graph) RetargetEdge(e *Edge, tgt *Block) {
	e.Tgt.preds = removeEdge(e.Tgt.preds, e)
	e.Tgt = tgt
	tgt.preds = append(tgt.preds, e)
}

// RedirectSource changes the source of edge e to src.
func (g *Graph) RedirectSource(e *Edge, src *Block) {
	e.Src.succs = removeEdge(e.Src.succs, e)
	e.Src = src
	src.succs = append(src.succs, e)
}

// CheckInvariants validates the structural invariants that must hold
// outside a transformation critical section. It returns the first
// violation found, wrapped as a Malformed CoreError with a text dump of
// the graph, or nil.
func (g *Graph) CheckInvariants() error {
	for e := range g.edges {
		if !containsEdge(e.Src.succs, e) {
			return g.malformed(e.Src.ID, "edge not in source's succ list")
		}
		if !containsEdge(e.Tgt.preds, e) {
			return g.malformed(e.Tgt.ID, "edge not in target's pred list")
		}
	}
	for _, b := range g.blocks {
		gotoCount := 0
		catchallSeen := false
		for i, e := range b.succs {
			if e.Kind == Goto {
				gotoCount++
			}
			if e.Kind == Throw {
				if e.IsCatchAll() {
					catchallSeen = true
					if i != len(b.succs)-1 {
						// not fatal on its own (other succ kinds may follow in
						// storage order); the real check is against other throw
						// edges, done below.
					}
				}
			}
		}
		if gotoCount > 1 {
			return g.malformed(b.ID, "more than one goto successor")
		}
		throws := b.ThrowSuccs()
		catchallIdx := -1
		for i, e := range throws {
			if e.IsCatchAll() {
				if catchallIdx != -1 {
					return g.malformed(b.ID, "more than one catchall throw edge")
				}
				catchallIdx = i
			}
		}
		if catchallIdx != -1 && catchallIdx != len(throws)-1 {
			return g.malformed(b.ID, "catchall throw edge is not last")
		}
		_ = catchallSeen
	}
	return nil
}

func containsEdge(list []*Edge, e *Edge) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

func (g *Graph) malformed(blockNum int, msg string) error {
	return cerrors.Malformedf(cerrors.Locator{Method: g.Method, Block: blockNum}, "%s", msg).
		WithDump(g.Dump())
}

// Dump renders a small text diagram of the graph, for inclusion in
// Malformed error diagnostics.
func (g *Graph) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cfg %s (entry=%v exit=%v regs=%d)\n", g.Method, blockID(g.Entry), blockID(g.Exit), g.RegCount)
	for _, blk := range g.BlocksSorted() {
		fmt.Fprintf(&b, "B%d:\n", blk.ID)
		blk.Items.Walk(func(it *item.Item) bool {
			fmt.Fprintf(&b, "  %s\n", describeItem(it))
			return true
		})
		for _, e := range blk.succs {
			fmt.Fprintf(&b, "  -> B%d (%s)\n", e.Tgt.ID, e.Kind)
		}
	}
	return b.String()
}

func blockID(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("B%d", b.ID)
}

func describeItem(it *item.Item) string {
	switch it.Kind {
	case item.KindOpcode:
		return it.Insn.String()
	case item.KindTarget:
		return fmt.Sprintf("target(case=%v)", it.CaseKey)
	case item.KindTryStart:
		return "try-start"
	case item.KindTryEnd:
		return "try-end"
	case item.KindCatch:
		return fmt.Sprintf("catch %v", it.CatchEntry.Type)
	case item.KindPosition:
		return fmt.Sprintf("position %s:%d", it.Pos.File, it.Pos.Line)
	case item.KindDebug:
		return "debug " + it.DebugOp
	default:
		return "fallthrough"
	}
}
