package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// trySplit attempts step 10's live-range splitting for a
// register about to be spilled: if a and its costliest interfering
// neighbor b both live entirely within one block, a's range is split
// around b's instead of materializing a through the ordinary spill path.
// Splitting across block boundaries would need a proper live-interval
// representation this core's block-granular liveness domain doesn't
// carry, so this is confined to the single-block case (see DESIGN.md).
// Returns true if a split was made, meaning the caller should not also
// spill a.
func trySplit(g *cfg.Graph, ig *Graph, a ir.Reg, nextReg *ir.Reg, stats *Stats) bool {
	aNode, ok := ig.GetNode(a)
	if !ok {
		return false
	}
	b, ok := highestWeightNeighbor(ig, aNode)
	if !ok {
		return false
	}
	block := soleBlock(g, a)
	if block == nil || block != soleBlock(g, b) {
		return false
	}

	seq := sequenceItems(block)
	bDef := findDef(block, b)
	aDef := findDef(block, a)
	aUses := findUses(block, a)
	if bDef == nil || aDef == nil || len(aUses) == 0 {
		return false
	}
	if seq[aDef] >= seq[bDef] {
		return false
	}
	last := aUses[len(aUses)-1]
	if seq[last] <= seq[bDef] {
		return false
	}

	split := *nextReg
	*nextReg++
	kind := aNode.typeKind
	block.Items.InsertBefore(item.NewOpcode(spillMoveFor(kind, split, a)), bDef)
	block.Items.InsertAfter(item.NewOpcode(spillMoveFor(kind, a, split)), last)
	for _, u := range aUses {
		if seq[u] > seq[bDef] {
			replaceSrc(u, a, split)
		}
	}
	stats.SplitMoves++
	return true
}

func highestWeightNeighbor(ig *Graph, n *Node) (ir.Reg, bool) {
	var best ir.Reg
	var bestWeight uint32
	found := false
	for _, adj := range n.adjacent {
		an, ok := ig.GetNode(adj)
		if !ok {
			continue
		}
		if !found || an.weight > bestWeight {
			best, bestWeight, found = adj, an.weight, true
		}
	}
	return best, found
}

// soleBlock returns the one block every def and use of r sits in, or nil
// if r's live range spans more than one block.
func soleBlock(g *cfg.Graph, r ir.Reg) *cfg.Block {
	var found *cfg.Block
	for _, b := range g.BlocksSorted() {
		touches := false
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind != item.KindOpcode {
				return true
			}
			insn := it.Insn
			if insn.HasDest() && insn.Dest() == r {
				touches = true
			}
			for s := 0; s < insn.SrcsSize(); s++ {
				if insn.Src(s) == r {
					touches = true
				}
			}
			return true
		})
		if touches {
			if found != nil && found != b {
				return nil
			}
			found = b
		}
	}
	return found
}

func sequenceItems(b *cfg.Block) map[*item.Item]int {
	seq := make(map[*item.Item]int)
	i := 0
	b.Items.Walk(func(it *item.Item) bool {
		seq[it] = i
		i++
		return true
	})
	return seq
}

func findDef(b *cfg.Block, r ir.Reg) *item.Item {
	var out *item.Item
	b.Items.Walk(func(it *item.Item) bool {
		if it.Kind == item.KindOpcode && it.Insn.HasDest() && it.Insn.Dest() == r {
			out = it
			return false
		}
		return true
	})
	return out
}

func findUses(b *cfg.Block, r ir.Reg) []*item.Item {
	var out []*item.Item
	b.Items.Walk(func(it *item.Item) bool {
		if it.Kind != item.KindOpcode {
			return true
		}
		for s := 0; s < it.Insn.SrcsSize(); s++ {
			if it.Insn.Src(s) == r {
				out = append(out, it)
				break
			}
		}
		return true
	})
	return out
}

func replaceSrc(it *item.Item, old, new ir.Reg) {
	insn := it.Insn
	for s := 0; s < insn.SrcsSize(); s++ {
		if insn.Src(s) == old {
			insn.SetSrc(s, new)
		}
	}
}
