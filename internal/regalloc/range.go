package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// allocateRanges assigns each range invoke's operands a contiguous run of
// vregs starting right after the method's ordinary register file — the
// wire format's range encoding requires consecutive operands. Whenever an
// operand's slot from ordinary coloring doesn't already sit there, this
// counts it as a range spill and reassigns it unconditionally; a fully
// precise accounting would only charge the spill when the operand has
// other, incompatible uses elsewhere, which needs a def-use interval this
// core doesn't track (see DESIGN.md) — so every contiguity violation is
// conservatively counted and repaired.
func allocateRanges(g *cfg.Graph, ig *Graph, rangeSet *RangeSet, coloring *Coloring, stats *Stats) {
	if rangeSet == nil {
		return
	}
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind != item.KindOpcode || !rangeSet.Contains(it.Insn) {
				return true
			}
			insn := it.Insn
			cursor := coloring.RegCount()
			for s := 0; s < insn.SrcsSize(); s++ {
				orig := insn.Src(s)
				width := uint32(1)
				if n, ok := ig.GetNode(orig); ok {
					width = uint32(n.Width())
				}
				want := ir.Reg(cursor)
				if prev, ok := coloring.ColorOf(orig); !ok || prev != want {
					stats.RangeSpillMoves++
				}
				coloring.reassign(orig, want)
				cursor += width
			}
			return true
		})
	}
}
