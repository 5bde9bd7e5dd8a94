package constprop

import (
	"dexopt/internal/domain"
	"dexopt/internal/ir"
)

// heapEscape handles any operation that can let a reference outlive the
// local analysis's view of it: a field store, an invoke, or a
// filled-new-array. Array stores are left to the Local Array analyzer,
// whose APUT case escapes the stored reference itself. Every operand
// register that currently names a
// non-escaped heap pointer transitions to Top, sequenced after Local
// Array so a plain APUT/AGET on a still-local array is folded first.
func (a *Analyzer) heapEscape(insn *ir.Instruction, state State) (State, bool) {
	switch insn.Op {
	case ir.IPUT, ir.SPUT, ir.INVOKE_VIRTUAL, ir.INVOKE_SUPER, ir.INVOKE_DIRECT,
		ir.INVOKE_STATIC, ir.INVOKE_INTERFACE, ir.FILLED_NEW_ARRAY:
		next := state
		for s := 0; s < insn.SrcsSize(); s++ {
			next = escapeReg(next, insn.Src(s))
		}
		if insn.HasDest() {
			next = next.setReg(insn.Dest(), domain.SignedConstantTop())
			next = next.setObj(insn.Dest(), domain.NewObjectTop())
		}
		return next, true
	}
	return state, false
}

func escapeReg(state State, r ir.Reg) State {
	fact := state.Objs.Get(r)
	if fact.Kind() == domain.ObjectNone || fact.Ptr == nil {
		return state
	}
	next := state
	next.Arrays = next.Arrays.Set(fact.Ptr, domain.ArrayTop())
	next.Objs = next.Objs.Set(r, objFactOf(domain.NewObjectTop(), nil))
	return next
}
