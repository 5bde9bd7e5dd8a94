package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// spillMoveFor picks the dest-type-appropriate move opcode for a spill,
// coalesce, parameter-placement or split-induced copy.
func spillMoveFor(kind ir.Kind, dest, src ir.Reg) *ir.Instruction {
	op := ir.MOVE
	switch kind {
	case ir.KindWide:
		op = ir.MOVE_WIDE
	case ir.KindObject, ir.KindZero:
		op = ir.MOVE_OBJECT
	}
	insn := ir.New(op)
	insn.SetDest(dest)
	insn.SetSrcs([]ir.Reg{src})
	return insn
}

// rewriteRegExcept replaces every occurrence of old with new across every
// instruction in g (both dest and src positions), skipping except (nil
// means skip nothing) — used after coalescing and parameter splitting to
// retarget a register's remaining uses onto its replacement.
func rewriteRegExcept(g *cfg.Graph, old, new ir.Reg, except *item.Item) {
	rewriteRegExceptItems(g, old, new, except)
}

// rewriteRegExceptItems is rewriteRegExcept generalized to more than one
// item that must keep referring to old (e.g. both the original LOAD_PARAM
// def and the split-copy instruction reading from it).
func rewriteRegExceptItems(g *cfg.Graph, old, new ir.Reg, excepts ...*item.Item) {
	skip := make(map[*item.Item]bool, len(excepts))
	for _, it := range excepts {
		if it != nil {
			skip[it] = true
		}
	}
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if skip[it] || it.Kind != item.KindOpcode {
				return true
			}
			insn := it.Insn
			if insn.HasDest() && insn.Dest() == old {
				insn.SetDest(new)
			}
			for s := 0; s < insn.SrcsSize(); s++ {
				if insn.Src(s) == old {
					insn.SetSrc(s, new)
				}
			}
			return true
		})
	}
}
