package cfg

import (
	"dexopt/internal/item"
)

// tryRegion is the [startID, endID] block range covered by one try marker
// pair, plus the head of its catch chain.
type tryRegion struct {
	startID, endID int
	catches        *item.Item
}

// Build scans list and constructs an editable CFG from it, following
// the construction algorithm: split into blocks, connect edges,
// lower try/catch, strip markers, recompute the register count, and run
// Simplify.
//
// list is expected to already be in normalized form: LOAD_PARAM* items at
// the front, may-throw-with-dest opcodes already split from their
// MOVE_RESULT_PSEUDO*, and invoke srcs in normalized (low-half-only) form.
// Build does not perform this normalization itself.
func Build(method string, regCount int, list *item.List, editable bool) *Graph {
	g := New(method)
	g.RegCount = regCount

	cur := g.CreateBlock()
	g.Entry = cur

	ensureFresh := func() *Block {
		if cur.Items.Len() > 0 {
			cur = g.CreateBlock()
		}
		return cur
	}

	// Identity indices built during the single forward scan.
	targetBlock := make(map[*item.Item]*Block)
	branchTargets := make(map[*item.Item][]*item.Item) // branch src item -> its Target items, in order
	catchBlock := make(map[*item.Item]*Block)
	var regions []tryRegion
	var openStart int
	var openCatches *item.Item
	inTry := false

	for it := list.Front(); it != nil; {
		next := it.Next()
		switch it.Kind {
		case item.KindTarget:
			b := ensureFresh()
			targetBlock[it] = b
			branchTargets[it.BranchSrc] = append(branchTargets[it.BranchSrc], it)
		case item.KindCatch:
			b := ensureFresh()
			catchBlock[it] = b
		case item.KindTryStart:
			b := ensureFresh()
			openStart = b.ID
			openCatches = it.Catches
			inTry = true
		case item.KindTryEnd:
			endBlock := cur
			regions = append(regions, tryRegion{startID: openStart, endID: endBlock.ID, catches: openCatches})
			inTry = false
			ensureFresh()
		case item.KindOpcode:
			cur.Items.PushBack(it)
			op := it.Insn.Op
			if op.IsReturn() || op.IsThrow() || op.IsBranch() || (inTry && op.MayThrow()) {
				cur = g.CreateBlock()
			}
		default: // Position, Debug, Fallthrough
			cur.Items.PushBack(it)
		}
		it = next
	}

	connectEdges(g, branchTargets, targetBlock)
	lowerCatches(g, regions, catchBlock)

	if editable {
		stripMarkersAndGotos(g)
		g.RecomputeRegCount()
		g.Simplify()
	}
	return g
}

// connectEdges implements step 1.
func connectEdges(g *Graph, branchTargets map[*item.Item][]*item.Item, targetBlock map[*item.Item]*Block) {
	ordered := g.BlocksSorted()
	for i, b := range ordered {
		last := b.LastInsn()
		var fallthroughBlock *Block
		if i+1 < len(ordered) {
			fallthroughBlock = ordered[i+1]
		}
		if last == nil {
			if fallthroughBlock != nil {
				g.AddEdge(b, fallthroughBlock, Goto)
			}
			continue
		}
		op := last.Insn.Op
		switch {
		case op.IsGoto():
			targets := branchTargets[last]
			if len(targets) == 1 {
				g.AddEdge(b, targetBlock[targets[0]], Goto)
			}
		case op.IsConditionalBranch():
			targets := branchTargets[last]
			if len(targets) == 1 {
				g.AddBranchEdge(b, targetBlock[targets[0]], nil)
			}
			if fallthroughBlock != nil {
				g.AddEdge(b, fallthroughBlock, Goto)
			}
		case op.IsSwitch():
			for _, t := range targets(branchTargets, last) {
				key := t.CaseKey
				g.AddBranchEdge(b, targetBlock[t], &key)
			}
			if fallthroughBlock != nil {
				g.AddEdge(b, fallthroughBlock, Goto)
			}
		case op.IsReturn() || op.IsThrow():
			// no fall-through edge.
		default:
			if fallthroughBlock != nil {
				g.AddEdge(b, fallthroughBlock, Goto)
			}
		}
	}
}

func targets(m map[*item.Item][]*item.Item, src *item.Item) []*item.Item { return m[src] }

// lowerCatches implements step 2.
func lowerCatches(g *Graph, regions []tryRegion, catchBlock map[*item.Item]*Block) {
	for _, r := range regions {
		index := 0
		for entry := r.catches; entry != nil; entry = entry.CatchEntry.Next {
			tgt := catchBlock[entry]
			if tgt == nil {
				continue
			}
			for id := r.startID; id <= r.endID; id++ {
				b, ok := g.blocks[id]
				if !ok {
					continue
				}
				last := b.LastInsn()
				if last == nil || !last.Insn.MayThrow() {
					continue
				}
				g.AddThrowEdge(b, tgt, entry.CatchEntry.Type, index)
			}
			index++
		}
	}
}

// stripMarkersAndGotos implements step 3: delete try/target
// markers (edges already encode the same information) and delete explicit
// GOTO opcodes (editable mode represents them purely as edges).
func stripMarkersAndGotos(g *Graph) {
	for _, b := range g.blocks {
		var keep []*item.Item
		b.Items.Walk(func(it *item.Item) bool {
			switch it.Kind {
			case item.KindTarget, item.KindTryStart, item.KindTryEnd, item.KindCatch:
				return true
			case item.KindOpcode:
				if it.Insn.Op.IsGoto() {
					return true
				}
			}
			keep = append(keep, it)
			return true
		})
		// PushBack rewrites an item's next pointer, so it must not run
		// inside Walk.
		out := item.NewList()
		for _, it := range keep {
			out.PushBack(it)
		}
		b.Items = out
	}
}

// RecomputeRegCount resets RegCount to one past the highest register
// index actually written as a dest, a safety measure against client code
// that lost track.
func (g *Graph) RecomputeRegCount() {
	max := -1
	for _, b := range g.blocks {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.HasDest() {
				r := int(it.Insn.Dest())
				if it.Insn.Op.IsWide() {
					r++
				}
				if r > max {
					max = r
				}
			}
			return true
		})
	}
	g.RegCount = max + 1
}
