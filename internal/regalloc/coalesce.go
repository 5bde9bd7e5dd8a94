package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// Coalesce merges the endpoints of every non-interfering, type-compatible
// move and deletes the move itself.
func Coalesce(g *cfg.Graph, ig *Graph, stats *Stats) {
	for _, b := range g.BlocksSorted() {
		var moves []*item.Item
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.Op.IsMove() && it.Insn.SrcsSize() == 1 {
				moves = append(moves, it)
			}
			return true
		})
		for _, it := range moves {
			insn := it.Insn
			dest, src := insn.Dest(), insn.Src(0)
			if dest == src {
				b.Items.Remove(it)
				continue
			}
			destNode, ok1 := ig.GetNode(dest)
			srcNode, ok2 := ig.GetNode(src)
			if !ok1 || !ok2 {
				continue
			}
			if ig.adjacent(dest, src) {
				continue
			}
			if destNode.typeKind.Meet(srcNode.typeKind) == ir.KindConflict {
				continue
			}
			ig.Combine(dest, src)
			rewriteRegExcept(g, src, dest, it)
			b.Items.Remove(it)
			stats.MovesCoalesced++
		}
	}
}
