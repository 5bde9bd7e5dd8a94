package constprop

import (
	"testing"

	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

func buildGraph(t *testing.T, items ...*item.Item) *cfg.Graph {
	t.Helper()
	list := item.NewList()
	for _, it := range items {
		list.PushBack(it)
	}
	return cfg.Build("m", 8, list, true)
}

func opc(op ir.Opcode) *ir.Instruction { return ir.New(op) }

func TestPrimitiveFoldsConstArith(t *testing.T) {
	c1 := opc(ir.CONST)
	c1.SetDest(0)
	c1.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 2}

	c2 := opc(ir.CONST)
	c2.SetDest(1)
	c2.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 3}

	add := opc(ir.ADD_INT)
	add.SetDest(2)
	add.SetSrcs([]ir.Reg{0, 1})

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c1), item.NewOpcode(c2), item.NewOpcode(add), item.NewOpcode(ret))

	a := &Analyzer{}
	result := Run(g, a, Top())
	exit := result.ExitState(g.Entry)

	v, ok := exit.Reg(2).AsExact()
	if !ok || v != 5 {
		t.Fatalf("want reg2 == 5, got %v (known=%v)", v, ok)
	}
}

func TestPrimitiveDivByZeroStaysTop(t *testing.T) {
	c1 := opc(ir.CONST)
	c1.SetDest(0)
	c1.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 10}

	c2 := opc(ir.CONST)
	c2.SetDest(1)
	c2.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 0}

	div := opc(ir.DIV_INT)
	div.SetDest(2)
	div.SetSrcs([]ir.Reg{0, 1})

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c1), item.NewOpcode(c2), item.NewOpcode(div), item.NewOpcode(ret))
	result := Run(g, &Analyzer{}, Top())
	exit := result.ExitState(g.Entry)

	if _, ok := exit.Reg(2).AsExact(); ok {
		t.Fatalf("division by a known-zero divisor must not fold to a constant")
	}
}

func TestLocalArrayRoundTrip(t *testing.T) {
	lenConst := opc(ir.CONST)
	lenConst.SetDest(0)
	lenConst.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 4}

	newArr := opc(ir.NEW_ARRAY)
	newArr.SetDest(1)
	newArr.SetSrcs([]ir.Reg{0})
	newArr.Payload = ir.Payload{Kind: ir.PayloadType, Type: "I"}

	val := opc(ir.CONST)
	val.SetDest(2)
	val.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 42}

	idx := opc(ir.CONST)
	idx.SetDest(3)
	idx.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 1}

	put := opc(ir.APUT)
	put.SetSrcs([]ir.Reg{2, 1, 3})

	get := opc(ir.AGET)
	get.SetDest(4)
	get.SetSrcs([]ir.Reg{1, 3})

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t,
		item.NewOpcode(lenConst), item.NewOpcode(newArr), item.NewOpcode(val),
		item.NewOpcode(idx), item.NewOpcode(put), item.NewOpcode(get), item.NewOpcode(ret))

	result := Run(g, &Analyzer{}, Top())
	exit := result.ExitState(g.Entry)

	v, ok := exit.Reg(4).AsExact()
	if !ok || v != 42 {
		t.Fatalf("want aget to recover the known aput value 42, got %v (known=%v)", v, ok)
	}
}

func TestHeapEscapeInvalidatesArray(t *testing.T) {
	lenConst := opc(ir.CONST)
	lenConst.SetDest(0)
	lenConst.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 4}

	newArr := opc(ir.NEW_ARRAY)
	newArr.SetDest(1)
	newArr.SetSrcs([]ir.Reg{0})
	newArr.Payload = ir.Payload{Kind: ir.PayloadType, Type: "I"}

	val := opc(ir.CONST)
	val.SetDest(2)
	val.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 7}

	idx := opc(ir.CONST)
	idx.SetDest(3)
	idx.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 0}

	put := opc(ir.APUT)
	put.SetSrcs([]ir.Reg{2, 1, 3})

	invoke := opc(ir.INVOKE_STATIC)
	invoke.SetSrcs([]ir.Reg{1})
	invoke.Payload = ir.Payload{Kind: ir.PayloadMethod, Method: ir.MethodRef{Class: "LFoo;", Name: "escape"}}

	get := opc(ir.AGET)
	get.SetDest(4)
	get.SetSrcs([]ir.Reg{1, 3})

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t,
		item.NewOpcode(lenConst), item.NewOpcode(newArr), item.NewOpcode(val), item.NewOpcode(idx),
		item.NewOpcode(put), item.NewOpcode(invoke), item.NewOpcode(get), item.NewOpcode(ret))

	result := Run(g, &Analyzer{}, Top())
	exit := result.ExitState(g.Entry)

	if _, ok := exit.Reg(4).AsExact(); ok {
		t.Fatalf("array passed to an invoke must be treated as escaped, not still locally known")
	}
}

func TestTransformFoldsKnownBranch(t *testing.T) {
	c1 := opc(ir.CONST)
	c1.SetDest(0)
	c1.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 0}

	branch := opc(ir.IF_EQZ)
	branch.SetSrcs([]ir.Reg{0})

	thenRet := opc(ir.RETURN_VOID)
	elseRet := opc(ir.RETURN_VOID)

	list := item.NewList()
	list.PushBack(item.NewOpcode(c1))
	branchItem := item.NewOpcode(branch)
	list.PushBack(branchItem)
	tgt := item.NewTarget(branchItem, item.TargetSimple, 0)
	list.PushBack(item.NewOpcode(elseRet))
	list.PushBack(tgt)
	list.PushBack(item.NewOpcode(thenRet))

	g := cfg.Build("m", 4, list, true)

	result := Run(g, &Analyzer{}, Top())
	stats := Transform(g, &Analyzer{}, result)

	if stats.BranchesFolded != 1 {
		t.Fatalf("want exactly one branch folded, got %d", stats.BranchesFolded)
	}
	if len(g.Entry.BranchSuccs()) != 0 {
		t.Errorf("entry block should no longer have a conditional branch successor")
	}
	if g.Entry.GotoSucc() == nil {
		t.Errorf("the surviving edge should now be an unconditional goto")
	}
}

func TestTransformReplacesConstDest(t *testing.T) {
	c1 := opc(ir.CONST)
	c1.SetDest(0)
	c1.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 2}

	c2 := opc(ir.CONST)
	c2.SetDest(1)
	c2.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 3}

	add := opc(ir.ADD_INT)
	add.SetDest(2)
	add.SetSrcs([]ir.Reg{0, 1})

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c1), item.NewOpcode(c2), item.NewOpcode(add), item.NewOpcode(ret))

	a := &Analyzer{}
	result := Run(g, a, Top())
	stats := Transform(g, a, result)

	if stats.ConstsFolded == 0 {
		t.Fatalf("want at least one dest materialized as a const")
	}
	if add.Op != ir.CONST || add.Payload.Literal != 5 {
		t.Fatalf("want the add rewritten to const 5, got op=%v payload=%v", add.Op, add.Payload)
	}
	if add.SrcsSize() != 0 {
		t.Errorf("a rewritten const must carry no source operands")
	}
}

func TestTransformElidesRedundantStaticPut(t *testing.T) {
	field := ir.FieldRef{Class: "LFoo;", Name: "x", Type: "I"}

	c := opc(ir.CONST)
	c.SetDest(0)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 9}

	sput1 := opc(ir.SPUT)
	sput1.SetSrcs([]ir.Reg{0})
	sput1.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}

	// Writes the field the value it was just set to one instruction ago:
	// redundant along the only path reaching it.
	sput2 := opc(ir.SPUT)
	sput2.SetSrcs([]ir.Reg{0})
	sput2.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}

	ret := opc(ir.RETURN_VOID)

	a := &Analyzer{OwnerClass: "LFoo;", IsClinit: true}
	g := buildGraph(t, item.NewOpcode(c), item.NewOpcode(sput1), item.NewOpcode(sput2), item.NewOpcode(ret))

	result := Run(g, a, Top())
	stats := Transform(g, a, result)

	if stats.PutsElided != 1 {
		t.Fatalf("want exactly one redundant put elided, got %d", stats.PutsElided)
	}
	var remaining []*ir.Instruction
	g.Entry.Items.Walk(func(it *item.Item) bool {
		if it.Kind == item.KindOpcode && it.Insn.Op == ir.SPUT {
			remaining = append(remaining, it.Insn)
		}
		return true
	})
	if len(remaining) != 1 || remaining[0] != sput1 {
		t.Fatalf("want only the first sput left in the item list, got %v", remaining)
	}
}

func TestTransformForwardsTargets(t *testing.T) {
	// entry (CONST r0,1) falls through unconditionally into mid (IF_EQZ
	// r0); mid's own branch always resolves false since r0 is known
	// nonzero, so the goto out of entry should retarget straight past
	// mid to its fallthrough successor.
	c1 := opc(ir.CONST)
	c1.SetDest(0)
	c1.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 1}

	branch := opc(ir.IF_EQZ)
	branch.SetSrcs([]ir.Reg{0})

	elseRet := opc(ir.RETURN_VOID)
	thenRet := opc(ir.RETURN_VOID)

	branchItem := item.NewOpcode(branch)

	list := item.NewList()
	list.PushBack(item.NewOpcode(c1))
	// A dummy target with no real predecessor, solely to force mid into
	// its own block ahead of the conditional branch.
	list.PushBack(item.NewTarget(item.NewOpcode(opc(ir.NOP)), item.TargetSimple, 0))
	list.PushBack(branchItem)
	list.PushBack(item.NewOpcode(elseRet))
	list.PushBack(item.NewTarget(branchItem, item.TargetSimple, 0))
	list.PushBack(item.NewOpcode(thenRet))

	g := cfg.Build("m", 4, list, true)

	entry := g.Entry
	mid := entry.GotoSucc().Tgt
	if len(mid.BranchSuccs()) != 1 || mid.GotoSucc() == nil {
		t.Fatalf("test setup: want mid to carry exactly one branch and one goto successor")
	}
	wantTarget := mid.GotoSucc().Tgt

	result := Run(g, &Analyzer{}, Top())
	stats := Transform(g, &Analyzer{}, result)

	if stats.TargetsForwarded != 1 {
		t.Fatalf("want exactly one edge forwarded past mid's resolved branch, got %d", stats.TargetsForwarded)
	}
	if entry.GotoSucc() == nil || entry.GotoSucc().Tgt != wantTarget {
		t.Fatalf("want entry's edge retargeted straight to %v, got %v", wantTarget, entry.GotoSucc())
	}
}

func TestFoldInstanceOfOnProvenNull(t *testing.T) {
	c := opc(ir.CONST)
	c.SetDest(0)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 0}

	instOf := opc(ir.INSTANCE_OF)
	instOf.SetDest(1)
	instOf.SetSrcs([]ir.Reg{0})
	instOf.Payload = ir.Payload{Kind: ir.PayloadType, Type: "LFoo;"}

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c), item.NewOpcode(instOf), item.NewOpcode(ret))
	a := &Analyzer{}
	result := Run(g, a, Top())
	stats := Transform(g, a, result)

	if stats.InstanceOfFolded != 1 {
		t.Fatalf("want instance-of on a null operand folded, got %d", stats.InstanceOfFolded)
	}
	if instOf.Op != ir.CONST || instOf.Payload.Literal != 0 {
		t.Fatalf("want instance-of rewritten to const 0, got op=%v payload=%v", instOf.Op, instOf.Payload)
	}
}

func TestTransformSynthesizesNPEOnProvenNullDeref(t *testing.T) {
	field := ir.FieldRef{Class: "LFoo;", Name: "bar", Type: "I"}

	c := opc(ir.CONST)
	c.SetDest(0)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 0}

	iget := opc(ir.IGET)
	iget.SetDest(1)
	iget.SetSrcs([]ir.Reg{0})
	iget.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}

	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c), item.NewOpcode(iget), item.NewOpcode(ret))
	a := &Analyzer{}
	result := Run(g, a, Top())
	stats := Transform(g, a, result)

	if stats.NPEsSynthesized != 1 {
		t.Fatalf("want one NPE synthesized, got %d", stats.NPEsSynthesized)
	}

	last := g.Entry.LastInsn()
	if last == nil || last.Insn.Op != ir.THROW {
		t.Fatalf("want the block to end in a throw, got %v", last)
	}
	if len(g.Entry.BranchSuccs()) != 0 || g.Entry.GotoSucc() != nil {
		t.Errorf("a block that always throws must carry no goto/branch successor")
	}

	var ops []ir.Opcode
	g.Entry.Items.Walk(func(it *item.Item) bool {
		if it.Kind == item.KindOpcode {
			ops = append(ops, it.Insn.Op)
		}
		return true
	})
	wantTail := []ir.Opcode{ir.CONST_STRING, ir.NEW_INSTANCE, ir.INVOKE_DIRECT, ir.THROW}
	if len(ops) < len(wantTail) {
		t.Fatalf("too few instructions after synthesis: %v", ops)
	}
	gotTail := ops[len(ops)-len(wantTail):]
	for i, op := range wantTail {
		if gotTail[i] != op {
			t.Fatalf("want synthesized tail %v, got %v", wantTail, gotTail)
		}
	}
}

func TestSignedConstantWholeProgramField(t *testing.T) {
	w := NewWholeProgramState()
	field := ir.FieldRef{Class: "LFoo;", Name: "x", Type: "I"}

	clinitPut := opc(ir.SPUT)
	clinitPut.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}
	c := opc(ir.CONST)
	c.SetDest(0)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: 9}
	clinitPut.SetSrcs([]ir.Reg{0})
	ret := opc(ir.RETURN_VOID)

	g := buildGraph(t, item.NewOpcode(c), item.NewOpcode(clinitPut), item.NewOpcode(ret))

	w.BuildPhase1([]ClassInit{{Class: "LFoo;", Graph: g, EncodedStatics: map[ir.FieldRef]domain.SignedConstant{
		field: domain.SignedConstantBottom(),
	}}})

	v, ok := w.Field(field)
	if !ok {
		t.Fatalf("expected field summary to be known after phase 1")
	}
	if n, _ := v.AsExact(); n != 9 {
		t.Errorf("want field summary 9, got %v", n)
	}
}
