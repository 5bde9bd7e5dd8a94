package constprop

import (
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// localArray models new-array, aget, aput, and fill-array-data on arrays
// that have not (yet) escaped: new-array binds its dest to an allocation
// fact naming this instruction as the abstract heap pointer, and the
// array's element values live in the Arrays heap partition keyed by that
// same pointer.
func (a *Analyzer) localArray(insn *ir.Instruction, it *item.Item, state State) (State, bool) {
	switch insn.Op {
	case ir.NEW_ARRAY:
		length := lengthDomain(state.Reg(insn.Src(0)))
		next := state.setObjPtr(insn.Dest(), domain.NewObjectArray(insn.Payload.Type, length), it)
		arr := domain.ArrayTop()
		if n, ok := length.Value(); ok {
			arr = domain.ArrayOfLength(n)
		}
		next.Arrays = next.Arrays.Set(it, arr)
		return next, true

	case ir.AGET:
		fact := state.Objs.Get(insn.Src(0))
		if fact.Kind() != domain.ObjectArray || fact.Ptr == nil {
			return state.setReg(insn.Dest(), domain.SignedConstantTop()), true
		}
		idx, ok := state.Reg(insn.Src(1)).AsExact()
		if !ok {
			return state.setReg(insn.Dest(), domain.SignedConstantTop()), true
		}
		arr := state.Arrays.Get(fact.Ptr)
		return state.setReg(insn.Dest(), arr.At(idx)), true

	case ir.APUT:
		state = escapeReg(state, insn.Src(0))
		fact := state.Objs.Get(insn.Src(1))
		if fact.Kind() != domain.ObjectArray || fact.Ptr == nil {
			return state, true
		}
		next := state
		idx, ok := state.Reg(insn.Src(2)).AsExact()
		if !ok {
			// Unknown index invalidates the whole array's known contents.
			next.Arrays = next.Arrays.Set(fact.Ptr, domain.ArrayTop())
			return next, true
		}
		val := state.Reg(insn.Src(0))
		next.Arrays = next.Arrays.Set(fact.Ptr, state.Arrays.Get(fact.Ptr).Set(idx, val))
		return next, true

	case ir.FILL_ARRAY_DATA:
		fact := state.Objs.Get(insn.Src(0))
		if fact.Kind() != domain.ObjectArray || fact.Ptr == nil {
			return state, true
		}
		next := state
		arr := domain.ArrayOfLength(int64(len(insn.Payload.ArrayData)))
		for i, v := range insn.Payload.ArrayData {
			arr = arr.Set(int64(i), domain.SignedConstantExact(v))
		}
		next.Arrays = next.Arrays.Set(fact.Ptr, arr)
		return next, true
	}

	return state, false
}

func lengthDomain(v domain.SignedConstant) domain.ConstantAbstractDomain[int64] {
	if n, ok := v.AsExact(); ok {
		return domain.ConstValue(n)
	}
	return domain.ConstTop[int64]()
}
