package constprop

import (
	"dexopt/internal/domain"
	"dexopt/internal/ir"
)

// primitive handles const, move, move-result(-pseudo), cmp, and
// binop-lit: the core arithmetic sub-analyzer every combiner entry goes
// through first. Unhandled dest-writing opcodes are left
// to the caller's default top-out.
func (a *Analyzer) primitive(insn *ir.Instruction, state State) (State, bool) {
	switch insn.Op {
	case ir.CONST, ir.CONST_WIDE:
		return state.setReg(insn.Dest(), domain.SignedConstantExact(insn.Payload.Literal)), true

	case ir.CONST_STRING:
		next := state.setReg(insn.Dest(), domain.SignedConstantTop())
		next = next.setStr(insn.Dest(), domain.ConstValue(insn.Payload.Str))
		next = next.setClass(insn.Dest(), domain.ConstTop[ir.TypeRef]())
		return next, true

	case ir.CONST_CLASS:
		next := state.setReg(insn.Dest(), domain.SignedConstantTop())
		next = next.setClass(insn.Dest(), domain.ConstValue(insn.Payload.Type))
		next = next.setStr(insn.Dest(), domain.ConstTop[ir.StringRef]())
		return next, true

	case ir.MOVE, ir.MOVE_WIDE, ir.MOVE_OBJECT:
		v := state.Reg(insn.Src(0))
		next := state.setReg(insn.Dest(), v)
		next.Objs = next.Objs.Set(insn.Dest(), state.Objs.Get(insn.Src(0)))
		next = next.setStr(insn.Dest(), state.Str(insn.Src(0)))
		next = next.setClass(insn.Dest(), state.Class(insn.Src(0)))
		return next, true

	case ir.MOVE_RESULT, ir.MOVE_RESULT_WIDE, ir.MOVE_RESULT_OBJECT,
		ir.MOVE_RESULT_PSEUDO, ir.MOVE_RESULT_PSEUDO_OBJECT, ir.MOVE_RESULT_PSEUDO_WIDE,
		ir.MOVE_EXCEPTION:
		// The invoke/array/field instruction that precedes this one is
		// handled by Local Array, Heap Escape, or Whole-Program Aware; by
		// the time we reach here with no prior handler, the result is
		// unknown.
		return state.setReg(insn.Dest(), domain.SignedConstantTop()), true

	case ir.NEG_INT:
		v := state.Reg(insn.Src(0))
		if exact, ok := v.AsExact(); ok {
			return state.setReg(insn.Dest(), domain.SignedConstantExact(-exact)), true
		}
		return state.setReg(insn.Dest(), domain.SignedConstantTop()), true

	case ir.ADD_INT_LIT, ir.SUB_INT_LIT, ir.MUL_INT_LIT, ir.AND_INT_LIT,
		ir.OR_INT_LIT, ir.XOR_INT_LIT, ir.SHL_INT_LIT, ir.SHR_INT_LIT:
		v := state.Reg(insn.Src(0))
		lit := insn.Payload.Literal
		exact, ok := v.AsExact()
		if !ok {
			return state.setReg(insn.Dest(), domain.SignedConstantTop()), true
		}
		result, folded := foldBinopLit(insn.Op, exact, lit)
		if !folded {
			return state.setReg(insn.Dest(), domain.SignedConstantTop()), true
		}
		return state.setReg(insn.Dest(), domain.SignedConstantExact(result)), true

	case ir.CMP_LONG, ir.CMPG_FLOAT, ir.CMPL_FLOAT, ir.CMPG_DOUBLE, ir.CMPL_DOUBLE:
		l, lok := state.Reg(insn.Src(0)).AsExact()
		r, rok := state.Reg(insn.Src(1)).AsExact()
		if lok && rok {
			return state.setReg(insn.Dest(), domain.SignedConstantExact(cmpSign(l, r))), true
		}
		return state.setReg(insn.Dest(), domain.SignedConstantTop()), true

	case ir.ADD_INT, ir.SUB_INT, ir.MUL_INT, ir.DIV_INT, ir.REM_INT,
		ir.AND_INT, ir.OR_INT, ir.XOR_INT, ir.SHL_INT, ir.SHR_INT, ir.USHR_INT,
		ir.ADD_LONG, ir.SUB_LONG, ir.MUL_LONG, ir.DIV_LONG, ir.REM_LONG:
		l, lok := state.Reg(insn.Src(0)).AsExact()
		r, rok := state.Reg(insn.Src(1)).AsExact()
		if lok && rok {
			if result, folded := foldBinop(insn.Op, l, r); folded {
				return state.setReg(insn.Dest(), domain.SignedConstantExact(result)), true
			}
		}
		return state.setReg(insn.Dest(), domain.SignedConstantTop()), true
	}

	return state, false
}

func cmpSign(l, r int64) int64 {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func foldBinopLit(op ir.Opcode, v, lit int64) (int64, bool) {
	switch op {
	case ir.ADD_INT_LIT:
		return v + lit, true
	case ir.SUB_INT_LIT:
		return v - lit, true
	case ir.MUL_INT_LIT:
		return v * lit, true
	case ir.AND_INT_LIT:
		return v & lit, true
	case ir.OR_INT_LIT:
		return v | lit, true
	case ir.XOR_INT_LIT:
		return v ^ lit, true
	case ir.SHL_INT_LIT:
		return v << uint(lit&63), true
	case ir.SHR_INT_LIT:
		return v >> uint(lit&63), true
	default:
		return 0, false
	}
}

func foldBinop(op ir.Opcode, l, r int64) (int64, bool) {
	switch op {
	case ir.ADD_INT, ir.ADD_LONG:
		return l + r, true
	case ir.SUB_INT, ir.SUB_LONG:
		return l - r, true
	case ir.MUL_INT, ir.MUL_LONG:
		return l * r, true
	case ir.DIV_INT, ir.DIV_LONG:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case ir.REM_INT, ir.REM_LONG:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case ir.AND_INT:
		return l & r, true
	case ir.OR_INT:
		return l | r, true
	case ir.XOR_INT:
		return l ^ r, true
	case ir.SHL_INT:
		return l << uint(r&63), true
	case ir.SHR_INT:
		return l >> uint(r&63), true
	case ir.USHR_INT:
		return int64(uint32(l) >> uint(r&31)), true
	default:
		return 0, false
	}
}
