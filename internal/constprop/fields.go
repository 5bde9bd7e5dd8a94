package constprop

import (
	"dexopt/internal/ir"
)

// clinitInitField models SGET/SPUT of the current class's own static
// fields inside its class initializer, and IGET/IPUT of the current
// class's own instance fields on the `this` register inside a
// constructor: both cases can track the field's value flow-sensitively
// because nothing outside the running method has observed the
// not-yet-fully-constructed object or class (the Clinit Field
// / Init Field sub-analyzers).
func (a *Analyzer) clinitInitField(insn *ir.Instruction, state State) (State, bool) {
	switch insn.Op {
	case ir.SGET:
		if !a.IsClinit || insn.Payload.Field.Class != a.OwnerClass {
			return state, false
		}
		return state.setReg(insn.Dest(), state.Fields.Get(insn.Payload.Field)), true

	case ir.SPUT:
		if !a.IsClinit || insn.Payload.Field.Class != a.OwnerClass {
			return state, false
		}
		next := state
		next.Fields = next.Fields.Set(insn.Payload.Field, state.Reg(insn.Src(0)))
		return next, true

	case ir.IGET:
		if !a.IsCtor || insn.Src(0) != a.ThisReg || insn.Payload.Field.Class != a.OwnerClass {
			return state, false
		}
		return state.setReg(insn.Dest(), state.Fields.Get(insn.Payload.Field)), true

	case ir.IPUT:
		if !a.IsCtor || insn.Src(1) != a.ThisReg || insn.Payload.Field.Class != a.OwnerClass {
			return state, false
		}
		next := state
		next.Fields = next.Fields.Set(insn.Payload.Field, state.Reg(insn.Src(0)))
		return next, true
	}
	return state, false
}

// wholeProgramAware consults the precomputed cross-program field/return
// summaries when the flow-sensitive Clinit/Init analyzers didn't already
// answer the read.
func (a *Analyzer) wholeProgramAware(insn *ir.Instruction, state State) (State, bool) {
	if a.WholeProgram == nil {
		return state, false
	}
	switch insn.Op {
	case ir.SGET, ir.IGET:
		v, ok := a.WholeProgram.Field(insn.Payload.Field)
		if !ok {
			return state, false
		}
		return state.setReg(insn.Dest(), v), true
	}
	return state, false
}

// jdkPatterns is the combiner's slot for the Enum Field / Boxed Boolean /
// String sub-analyzer (JDK idioms such as Enum.equals, Boolean.valueOf and
// known string literals). It recognizes none of these idioms: every
// instruction is reported as unhandled and the state is returned
// unchanged, so they fall through to the default Top-out.
func (a *Analyzer) jdkPatterns(insn *ir.Instruction, state State) (State, bool) {
	if insn.Op != ir.INVOKE_STATIC || insn.Payload.Kind != ir.PayloadMethod {
		return state, false
	}
	return state, false
}
