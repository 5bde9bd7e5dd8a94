package cfg

import (
	"dexopt/internal/ir"
	"dexopt/internal/item"
	"dexopt/internal/wto"
)

// chain is a maximal run of blocks linked by an unshared GOTO edge: each
// non-last block's only non-ghost successor is a GOTO to the next block in
// the chain, and that next block has no other non-ghost predecessor.
// Chains are the unit linearization's WTO runs over, matching redex's
// "straight-line run" chain-building step.
type chain struct {
	blocks []*Block
}

// Linearize flattens the editable graph back into a single item.List:
// try/catch markers and branch targets are re-synthesized from the edge
// set, chains are ordered by weak topological order so loop bodies stay
// contiguous, and the result is swept for redundant consecutive position
// entries.
func (g *Graph) Linearize() *item.List {
	g.reinsertTriesAndCatches()

	blockToChain := g.buildChains()
	root := blockToChain[g.Entry.ID]
	order := wto.Build[*chain](chainGraph{root: root, blockToChain: blockToChain})

	var blockOrder []*Block
	for _, ch := range wto.Flatten(order) {
		for _, b := range ch.blocks {
			if b.Synthetic {
				continue
			}
			blockOrder = append(blockOrder, b)
		}
	}

	leadingTargets, trailingGoto := synthesizeControlTransfers(blockOrder)

	out := item.NewList()
	for _, b := range blockOrder {
		for _, t := range leadingTargets[b.ID] {
			out.PushBack(t)
		}
		for it := b.Items.Front(); it != nil; it = it.Next() {
			out.PushBack(it)
		}
		if gi, ok := trailingGoto[b.ID]; ok {
			out.PushBack(gi)
		}
	}

	dedupPositions(out)
	return out
}

// buildChains greedily groups blocks (in id order, for determinism) into
// chains, starting a new chain whenever the next block isn't an
// unambiguous fall-through continuation of the current one.
func (g *Graph) buildChains() map[int]*chain {
	owned := make(map[int]bool)
	blockToChain := make(map[int]*chain)

	next := func(b *Block) *Block {
		succs := b.NonGhostSuccs()
		if len(succs) != 1 || succs[0].Kind != Goto {
			return nil
		}
		c := succs[0].Tgt
		if c == g.Entry || owned[c.ID] {
			return nil
		}
		nonGhostPreds := 0
		for _, pe := range c.preds {
			if pe.Kind != Ghost {
				nonGhostPreds++
			}
		}
		if nonGhostPreds != 1 {
			return nil
		}
		return c
	}

	for _, b := range g.BlocksSorted() {
		if owned[b.ID] {
			continue
		}
		ch := &chain{}
		cur := b
		for cur != nil {
			ch.blocks = append(ch.blocks, cur)
			owned[cur.ID] = true
			blockToChain[cur.ID] = ch
			cur = next(cur)
		}
	}
	return blockToChain
}

type chainGraph struct {
	root         *chain
	blockToChain map[int]*chain
}

func (c chainGraph) Root() *chain { return c.root }

func (c chainGraph) Successors(ch *chain) []*chain {
	last := ch.blocks[len(ch.blocks)-1]
	seen := make(map[*chain]bool)
	var out []*chain
	for _, e := range last.succs {
		tc := c.blockToChain[e.Tgt.ID]
		if tc == nil || tc == ch || seen[tc] {
			continue
		}
		seen[tc] = true
		out = append(out, tc)
	}
	return out
}

// synthesizeControlTransfers decides, for every block in the chosen
// linear order, which branch targets must be materialized as Target
// items and which blocks need an explicit trailing GOTO opcode because
// their successor isn't the block immediately following them in that
// order. It runs as a pass separate from emission so that back edges
// (whose target was already emitted earlier in the order) still get
// their Target item registered before the emission pass reaches them.
func synthesizeControlTransfers(blockOrder []*Block) (map[int][]*item.Item, map[int]*item.Item) {
	leadingTargets := make(map[int][]*item.Item)
	trailingGoto := make(map[int]*item.Item)

	for i, b := range blockOrder {
		if last := b.LastInsn(); last != nil {
			switch op := last.Insn.Op; {
			case op.IsConditionalBranch():
				for _, e := range b.BranchSuccs() {
					t := item.NewTarget(last, item.TargetSimple, 0)
					leadingTargets[e.Tgt.ID] = append(leadingTargets[e.Tgt.ID], t)
				}
			case op.IsSwitch():
				for _, e := range b.BranchSuccs() {
					key := int32(0)
					if e.CaseKey != nil {
						key = *e.CaseKey
					}
					t := item.NewTarget(last, item.TargetCase, key)
					leadingTargets[e.Tgt.ID] = append(leadingTargets[e.Tgt.ID], t)
				}
			}
		}
		if ge := b.GotoSucc(); ge != nil {
			var wantNext *Block
			if i+1 < len(blockOrder) {
				wantNext = blockOrder[i+1]
			}
			if ge.Tgt != wantNext {
				gi := item.NewOpcode(ir.New(ir.GOTO))
				trailingGoto[b.ID] = gi
				t := item.NewTarget(gi, item.TargetSimple, 0)
				leadingTargets[ge.Tgt.ID] = append(leadingTargets[ge.Tgt.ID], t)
			}
		}
	}
	return leadingTargets, trailingGoto
}

// reinsertTriesAndCatches rebuilds try/catch markers from the edge set.
// Each may-throw block becomes its own singleton try region: its ordered
// throw successors form a fresh catch chain, one Catch item per target
// block, inserted right before that block's first real instruction (a
// block with multiple incoming catches simply collects one marker per
// source, the same multiplicity Target markers already allow for a
// shared branch destination).
func (g *Graph) reinsertTriesAndCatches() {
	for _, b := range g.BlocksSorted() {
		last := b.LastInsn()
		if last == nil || !last.Insn.MayThrow() {
			continue
		}
		throws := b.ThrowSuccs()
		if len(throws) == 0 {
			continue
		}
		sortThrowsByIndex(throws)

		var head, prev *item.Item
		for _, e := range throws {
			ci := item.NewCatch(item.CatchEntry{Type: e.CatchType})
			if head == nil {
				head = ci
			} else {
				prev.CatchEntry.Next = ci
			}
			prev = ci
			insertBeforeFirstOpcode(e.Tgt, ci)
		}

		insertBeforeFirstOpcode(b, item.NewTryStart(head))
		b.Items.PushBack(item.NewTryEnd(head))
	}
}

func sortThrowsByIndex(es []*Edge) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j-1].Index > es[j].Index; j-- {
			es[j-1], es[j] = es[j], es[j-1]
		}
	}
}

func insertBeforeFirstOpcode(b *Block, it *item.Item) {
	if first := b.FirstInsn(); first != nil {
		b.Items.InsertBefore(it, first)
	} else {
		b.Items.PushBack(it)
	}
}

// dedupPositions drops a KindPosition item that repeats the same
// file/line/method as the nearest preceding position entry, a redundancy
// block splitting and chain reordering commonly introduces.
func dedupPositions(l *item.List) {
	var lastPos *item.Item
	for it := l.Front(); it != nil; {
		next := it.Next()
		if it.Kind == item.KindPosition {
			if lastPos != nil &&
				lastPos.Pos.File == it.Pos.File &&
				lastPos.Pos.Line == it.Pos.Line &&
				lastPos.Pos.Method == it.Pos.Method {
				l.Remove(it)
			} else {
				lastPos = it
			}
		}
		it = next
	}
}
