package constprop

import (
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// Analyzer runs the sub-analyzer combiner across one method's blocks. The
// combiner dispatches by opcode group, letting each sub-analyzer
// short-circuit the rest by returning handled=true.
type Analyzer struct {
	// OwnerClass and IsClinit/IsCtor scope the Clinit/Init field
	// sub-analyzers to this-class statics and this-register instance
	// fields respectively.
	OwnerClass ir.TypeRef
	IsClinit   bool
	IsCtor     bool
	ThisReg    ir.Reg

	// WholeProgram, when non-nil, lets field reads and invoke results
	// fall back to precomputed cross-program summaries.
	WholeProgram *WholeProgramState
	Self         ir.MethodRef
}

// BlockTransfer is the per-block step function, exported so the transform
// pass's replay (which needs the per-instruction state, not just the
// block's exit state) can reuse the same stepping logic as the fixpoint
// iterator.
func (a *Analyzer) BlockTransfer(items *item.List, entry State) State {
	state := entry
	items.Walk(func(it *item.Item) bool {
		if it.Kind != item.KindOpcode {
			return true
		}
		state = a.step(it, state)
		return true
	})
	return state
}

// step applies one instruction's transfer function, running sub-analyzers
// in combiner order: Primitive, then Local Array, then Heap Escape (which
// must see the array/field write before Primitive's default top-out
// would otherwise apply), then Clinit/Init Field, then Whole-Program
// Aware, then the small hard-coded JDK patterns.
func (a *Analyzer) step(it *item.Item, state State) State {
	insn := it.Insn

	if next, handled := a.primitive(insn, state); handled {
		return next
	}
	if next, handled := a.localArray(insn, it, state); handled {
		return next
	}
	if next, handled := a.heapEscape(insn, state); handled {
		if insn.Op != ir.SPUT && insn.Op != ir.IPUT {
			return next
		}
		// field stores still reach the Clinit/Init Field analyzer below
		state = next
	}
	if next, handled := a.clinitInitField(insn, state); handled {
		return next
	}
	if next, handled := a.wholeProgramAware(insn, state); handled {
		return next
	}
	if next, handled := a.jdkPatterns(insn, state); handled {
		return next
	}

	if insn.HasDest() {
		state = state.setReg(insn.Dest(), domain.SignedConstantTop())
		state = state.setObj(insn.Dest(), domain.NewObjectTop())
		state = state.setStr(insn.Dest(), domain.ConstTop[ir.StringRef]())
		state = state.setClass(insn.Dest(), domain.ConstTop[ir.TypeRef]())
	}
	return state
}
