package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/fixpoint"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// backwardGraph adapts a cfg.Graph into a fixpoint.Graph rooted at the
// exit block, with Successors/Predecessors swapped against the real CFG
// so the iterator computes a backward (liveness) analysis: its "entry"
// state at a block is the real live-out set, its "exit" state the real
// live-in set.
type backwardGraph struct{ g *cfg.Graph }

func (bg backwardGraph) Root() *cfg.Block { return bg.g.Exit }

func (bg backwardGraph) Successors(b *cfg.Block) []*cfg.Block {
	var out []*cfg.Block
	for _, e := range b.Preds() {
		out = append(out, e.Src)
	}
	return out
}

func (bg backwardGraph) Predecessors(b *cfg.Block) []*cfg.Block {
	var out []*cfg.Block
	for _, e := range b.Succs() {
		out = append(out, e.Tgt)
	}
	return out
}

type livenessAnalyzer struct{}

func (livenessAnalyzer) Transfer(b *cfg.Block, liveOut domain.Liveness) domain.Liveness {
	state := liveOut
	for it := b.Items.Back(); it != nil; it = it.Prev() {
		if it.Kind != item.KindOpcode {
			continue
		}
		state = stepLiveness(it.Insn, state)
	}
	return state
}

func stepLiveness(insn *ir.Instruction, state domain.Liveness) domain.Liveness {
	if insn.HasDest() {
		state = state.Remove(insn.Dest())
		if insn.Op.IsWide() {
			state = state.Remove(insn.Dest() + 1)
		}
	}
	for s := 0; s < insn.SrcsSize(); s++ {
		state = state.Add(insn.Src(s))
	}
	return state
}

// Build constructs the interference graph for g: register type/width/
// max-vreg constraints from every instruction, edges between
// simultaneously live registers (with the move src/dest suppression that
// keeps later coalescing possible), the check-cast live-range widening
// against the whole block's live-in set, and the range-instruction
// liveness snapshots range allocation needs.
func Build(g *cfg.Graph, initialRegs int, rangeSet *RangeSet) *Graph {
	graph := newGraph()

	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode {
				updateNodeConstraints(it.Insn, rangeSet, graph)
			}
			return true
		})
	}

	g.CalculateExitBlock()
	it := fixpoint.New[*cfg.Block, domain.Liveness](backwardGraph{g}, livenessAnalyzer{}, domain.LivenessBottom(), 1)
	it.Run(domain.LivenessBottom())

	for _, b := range g.BlocksSorted() {
		blockLiveIn := it.ExitState(b)
		liveOut := it.EntryState(b)
		for e := b.Items.Back(); e != nil; e = e.Prev() {
			if e.Kind != item.KindOpcode {
				continue
			}
			insn := e.Insn

			// check-cast has both a dest and a src in this IR but only one
			// operand in the wire format, so lowering may need a move
			// inserted before it; that move must not clobber anything live
			// across the block's entry edge (including the exception
			// edge), so the dest interferes with everything live at block
			// start, not just at the instruction.
			if insn.Op == ir.CHECK_CAST && insn.HasDest() {
				for _, reg := range blockLiveIn.Elements() {
					graph.AddEdge(insn.Dest(), reg)
				}
			}

			if rangeSet != nil && rangeSet.Contains(insn) {
				graph.rangeLiveness[insn] = liveOut
			}

			if insn.HasDest() {
				for _, reg := range liveOut.Elements() {
					if insn.Op.IsMove() && !insn.Op.IsWide() && reg == insn.Src(0) {
						// a simple move's own src/dest shouldn't be forced
						// to interfere, or they could never be coalesced.
						continue
					}
					graph.AddEdge(insn.Dest(), reg)
				}
			}

			liveOut = stepLiveness(insn, liveOut)
		}
	}

	for r, n := range graph.nodes {
		if int(r) >= initialRegs {
			n.props |= propSpill
		}
	}
	return graph
}

func updateNodeConstraints(insn *ir.Instruction, rangeSet *RangeSet, graph *Graph) {
	if insn.HasDest() {
		node := graph.node(insn.Dest())
		if insn.Op.IsLoadParam() {
			node.props |= propParam
		}
		node.typeKind = node.typeKind.Meet(insn.Op.DestType().Kind())
	}
	for i := 0; i < insn.SrcsSize(); i++ {
		src := insn.Src(i)
		node := graph.node(src)
		typ := insn.SrcRegType(i)
		node.typeKind = node.typeKind.Meet(typ.Kind())

		maxVreg := uint32(maxVregCap)
		switch {
		case rangeSet != nil && rangeSet.Contains(insn):
			node.props |= propRange
		case insn.Op.IsInvoke() && insn.SrcsSize() == 1:
			// invoke {v0} is always rewritable to its range form, so a
			// lone operand is never forced into the non-range bit-width
			// cap the way a multi-operand invoke's would be.
		case insn.Op.IsInvoke() && typ == ir.RegWide:
			// a wide argument passed to a non-range invoke needs its
			// denormalized high half addressable too.
			maxVreg--
		}
		node.maxVreg = minU32(node.maxVreg, maxVreg)
	}
}
