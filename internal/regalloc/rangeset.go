package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// MaxNonRangeArgs is the most operands a non-range invoke's wire encoding
// can address.
const MaxNonRangeArgs = 5

// RangeSet is the set of invoke instructions that must use the wire
// format's range encoding, detected once before the interference graph is
// built so both the graph builder and the final range-allocation pass can
// treat their operands specially.
type RangeSet struct {
	insns map[*ir.Instruction]bool
}

// Contains reports whether insn must use range form.
func (rs *RangeSet) Contains(insn *ir.Instruction) bool {
	return rs != nil && rs.insns[insn]
}

// DetectRangeSet marks every invoke in g with more than MaxNonRangeArgs
// operands as requiring the range form. This core's registers aren't
// bounded by a fixed bit width ahead of allocation (that bound is a
// concrete-DEX-lowering detail this core doesn't model, see DESIGN.md), so
// argument count is the only range-form trigger modeled; an additional
// "operand register exceeds the non-range bit width" trigger naturally
// falls out of the generic 16-bit vreg cap every node already carries.
func DetectRangeSet(g *cfg.Graph) *RangeSet {
	rs := &RangeSet{insns: make(map[*ir.Instruction]bool)}
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.Op.IsInvoke() && it.Insn.SrcsSize() > MaxNonRangeArgs {
				rs.insns[it.Insn] = true
			}
			return true
		})
	}
	return rs
}
