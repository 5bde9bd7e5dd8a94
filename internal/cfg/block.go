package cfg

import "dexopt/internal/item"

// Block is a maximal sub-range of the item list with a single entry and
// single exit point at the CFG level.
type Block struct {
	ID    int
	Items *item.List

	// Synthetic marks a placeholder exit block CalculateExitBlock created
	// to unify more than one terminal component; it carries no real code
	// and Linearize drops it from the emitted stream.
	Synthetic bool

	preds []*Edge
	succs []*Edge
}

func newBlock(id int) *Block {
	return &Block{ID: id, Items: item.NewList()}
}

func (b *Block) Preds() []*Edge { return b.preds }
func (b *Block) Succs() []*Edge { return b.succs }

// GotoSucc returns the (at most one) GOTO successor edge, or nil.
func (b *Block) GotoSucc() *Edge {
	for _, e := range b.succs {
		if e.Kind == Goto {
			return e
		}
	}
	return nil
}

func (b *Block) ThrowSuccs() []*Edge {
	var out []*Edge
	for _, e := range b.succs {
		if e.Kind == Throw {
			out = append(out, e)
		}
	}
	return out
}

func (b *Block) BranchSuccs() []*Edge {
	var out []*Edge
	for _, e := range b.succs {
		if e.Kind == Branch {
			out = append(out, e)
		}
	}
	return out
}

// NonGhostSuccs returns every successor edge that is not a GHOST edge.
func (b *Block) NonGhostSuccs() []*Edge {
	var out []*Edge
	for _, e := range b.succs {
		if e.Kind != Ghost {
			out = append(out, e)
		}
	}
	return out
}

// LastInsn returns the last ir opcode item's instruction in the block, or
// nil if the block has no opcodes (e.g. a positions-only block).
func (b *Block) LastInsn() *item.Item {
	for it := b.Items.Back(); it != nil; it = it.Prev() {
		if it.Kind == item.KindOpcode {
			return it
		}
	}
	return nil
}

// FirstInsn returns the first opcode item in the block, or nil.
func (b *Block) FirstInsn() *item.Item {
	for it := b.Items.Front(); it != nil; it = it.Next() {
		if it.Kind == item.KindOpcode {
			return it
		}
	}
	return nil
}

// IsEmptyOfCode reports whether the block contains only position/debug
// items — the precondition simplify's empty-block removal checks.
func (b *Block) IsEmptyOfCode() bool {
	empty := true
	b.Items.Walk(func(it *item.Item) bool {
		switch it.Kind {
		case item.KindPosition, item.KindDebug:
			return true
		default:
			empty = false
			return false
		}
	})
	return empty
}
