package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// insertSpillMoves materializes every register Select couldn't color as a
// collection of narrow, single-use/single-def temporaries: one move
// around each def and one around each use, so the register's live range
// shrinks to a span the next iteration's interference graph can actually
// color.
func insertSpillMoves(g *cfg.Graph, nextReg *ir.Reg, kindOf map[ir.Reg]ir.Kind, spills []ir.Reg, stats *Stats) {
	if len(spills) == 0 {
		return
	}
	spillSet := make(map[ir.Reg]bool, len(spills))
	for _, r := range spills {
		spillSet[r] = true
	}

	for _, b := range g.BlocksSorted() {
		var items []*item.Item
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode {
				items = append(items, it)
			}
			return true
		})
		for _, it := range items {
			insn := it.Insn
			if insn.HasDest() && spillSet[insn.Dest()] {
				orig := insn.Dest()
				temp := *nextReg
				*nextReg++
				insn.SetDest(temp)
				move := spillMoveFor(kindOf[orig], orig, temp)
				b.Items.InsertAfter(item.NewOpcode(move), it)
				stats.GlobalSpillMoves++
			}
			for s := 0; s < insn.SrcsSize(); s++ {
				orig := insn.Src(s)
				if !spillSet[orig] {
					continue
				}
				temp := *nextReg
				*nextReg++
				insn.SetSrc(s, temp)
				move := spillMoveFor(kindOf[orig], temp, orig)
				b.Items.InsertBefore(item.NewOpcode(move), it)
				stats.GlobalSpillMoves++
			}
		}
	}
}
