package constprop

import (
	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// TransformStats counts what a Transform pass changed, surfaced so a
// caller can log or gate on "made no further progress".
type TransformStats struct {
	ConstsFolded     int
	BranchesFolded   int
	PutsElided       int
	TargetsForwarded int
	InstanceOfFolded int
	NPEsSynthesized  int
}

// npeType is the one exception class a synthesized null-check replacement
// ever throws.
const npeType ir.TypeRef = "Ljava/lang/NullPointerException;"

// Transform walks g one block at a time carrying the intraprocedural
// entry state, replacing dest instructions the analysis proved constant,
// eliding field/array writes that rewrite a value already known to be
// there, folding INSTANCE_OF on a proven-null or proven-exact operand,
// replacing a proven-null dereference with a synthesized throw, forwarding
// an edge past a successor whose own branch is already known to resolve,
// and folding away the block's own trailing conditional. It mutates g in
// place and returns what it changed; callers typically re-run Simplify
// afterward to drop the now-unreachable blocks this leaves behind.
func Transform(g *cfg.Graph, a *Analyzer, result *Result) TransformStats {
	var stats TransformStats
	for _, b := range g.BlocksSorted() {
		state := result.EntryState(b)
		var npeAt *item.Item
		var redundant []*item.Item

		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind != item.KindOpcode {
				return true
			}
			insn := it.Insn

			if obj, ok := nullDerefOperand(insn); ok {
				if v, exact := state.Reg(obj).AsExact(); exact && v == 0 {
					npeAt = it
					return false
				}
			}

			foldInstanceOf(insn, state, &stats)

			if isRedundantPut(insn, state) {
				redundant = append(redundant, it)
			}

			next := a.step(it, state)
			replaceWithConst(insn, next, &stats)
			state = next
			return true
		})

		// Items.Walk advances via the visited item's own next pointer, and
		// List.Remove clears that pointer on the item it removes, so a put
		// found mid-walk can only be deleted once the walk that found it has
		// fully returned.
		for _, it := range redundant {
			b.Items.Remove(it)
			stats.PutsElided++
		}

		if npeAt != nil {
			synthesizeNPE(g, b, npeAt, &stats)
			continue
		}

		forwardTargets(g, b, result, &stats)
		foldBranch(g, b, state, &stats)
	}
	return stats
}

// replaceWithConst materializes insn's dest as a const-defining
// instruction once post — the state immediately after insn itself ran —
// proves it an exact primitive, string, or class value. CONST_WIDE/
// CONST_STRING/CONST_CLASS are already const-defining (IsConst reports
// true); CONST has no narrower form to fold to.
func replaceWithConst(insn *ir.Instruction, post State, stats *TransformStats) {
	if !insn.HasDest() || insn.Op.IsConst() || insn.Op == ir.CONST {
		return
	}
	dest := insn.Dest()

	if v, ok := post.Reg(dest).AsExact(); ok {
		wide := insn.Op.DestType() == ir.RegWide
		insn.Op = ir.CONST
		if wide {
			insn.Op = ir.CONST_WIDE
		}
		insn.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: v}
		insn.SetSrcs(nil)
		stats.ConstsFolded++
		return
	}
	if sv, ok := post.Str(dest).Value(); ok {
		insn.Op = ir.CONST_STRING
		insn.Payload = ir.Payload{Kind: ir.PayloadString, Str: sv}
		insn.SetSrcs(nil)
		stats.ConstsFolded++
		return
	}
	if cv, ok := post.Class(dest).Value(); ok {
		insn.Op = ir.CONST_CLASS
		insn.Payload = ir.Payload{Kind: ir.PayloadType, Type: cv}
		insn.SetSrcs(nil)
		stats.ConstsFolded++
	}
}

// isRedundantPut reports whether insn stores a value into a static field
// or array slot that is already known, along every path reaching here, to
// hold it.
func isRedundantPut(insn *ir.Instruction, state State) bool {
	switch insn.Op {
	case ir.SPUT:
		current, ok := state.Fields.Get(insn.Payload.Field).AsExact()
		if !ok {
			return false
		}
		sv, ok := state.Reg(insn.Src(0)).AsExact()
		return ok && sv == current

	case ir.APUT:
		fact := state.Objs.Get(insn.Src(1))
		if fact.Kind() != domain.ObjectArray || fact.Ptr == nil {
			return false
		}
		idx, ok := state.Reg(insn.Src(2)).AsExact()
		if !ok {
			return false
		}
		current, ok := state.Arrays.Get(fact.Ptr).At(idx).AsExact()
		if !ok {
			return false
		}
		sv, ok := state.Reg(insn.Src(0)).AsExact()
		return ok && sv == current
	}
	return false
}

// foldInstanceOf resolves an INSTANCE_OF whose operand is proven null
// (the result is always false) or whose operand's allocation site names
// exactly the tested type (the result is always true). A genuine subtype
// relationship — operand allocated as a strict subclass of the tested
// type — is outside what the allocation-site fact alone can decide
// without a class hierarchy, and is left unfolded.
func foldInstanceOf(insn *ir.Instruction, state State, stats *TransformStats) {
	if insn.Op != ir.INSTANCE_OF {
		return
	}
	obj := insn.Src(0)
	if v, ok := state.Reg(obj).AsExact(); ok && v == 0 {
		rewriteAsConst(insn, 0)
		stats.InstanceOfFolded++
		return
	}
	fact := state.Objs.Get(obj)
	if fact.Kind() == domain.ObjectClass && fact.Class() == insn.Payload.Type {
		rewriteAsConst(insn, 1)
		stats.InstanceOfFolded++
	}
}

func rewriteAsConst(insn *ir.Instruction, lit int64) {
	insn.Op = ir.CONST
	insn.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: lit}
	insn.SetSrcs(nil)
}

// nullDerefOperand returns the register an instruction implicitly
// dereferences as an object, for the opcodes the runtime throws
// NullPointerException on when that register holds null: instance field
// access, array access/length/fill, and non-static invokes.
func nullDerefOperand(insn *ir.Instruction) (ir.Reg, bool) {
	switch insn.Op {
	case ir.IGET, ir.AGET, ir.ARRAY_LENGTH, ir.FILL_ARRAY_DATA,
		ir.INVOKE_VIRTUAL, ir.INVOKE_SUPER, ir.INVOKE_DIRECT, ir.INVOKE_INTERFACE:
		if insn.SrcsSize() < 1 {
			return 0, false
		}
		return insn.Src(0), true
	case ir.IPUT, ir.APUT:
		if insn.SrcsSize() < 2 {
			return 0, false
		}
		return insn.Src(1), true
	}
	return 0, false
}

// npeMessage names the member (or, for array access, the access itself)
// a synthesized NullPointerException should report, mirroring how
// NullPointerExceptionCreator derives its message from the dereferencing
// instruction's own field/method reference.
func npeMessage(insn *ir.Instruction) string {
	switch {
	case insn.Op.IsField():
		return string(insn.Payload.Field.Name)
	case insn.Op.IsInvoke():
		if insn.Payload.Kind == ir.PayloadMethod {
			return insn.Payload.Method.Name
		}
		return insn.Op.String()
	case insn.Op == ir.AGET, insn.Op == ir.APUT, insn.Op == ir.ARRAY_LENGTH, insn.Op == ir.FILL_ARRAY_DATA:
		return "array access"
	default:
		return insn.Op.String()
	}
}

// synthesizeNPE replaces npeAt and every item after it in b with the
// fixed four-instruction sequence that constructs and throws a
// NullPointerException naming the member npeAt was about to dereference,
// then drops every GOTO/BRANCH edge out of b: whatever npeAt's block used
// to fall or branch into is unreachable from here now that the block
// always throws.
func synthesizeNPE(g *cfg.Graph, b *cfg.Block, npeAt *item.Item, stats *TransformStats) {
	msg := npeMessage(npeAt.Insn)
	msgReg := ir.Reg(g.RegCount)
	g.RegCount++
	excReg := ir.Reg(g.RegCount)
	g.RegCount++

	removeFrom(b.Items, npeAt)

	constStr := ir.New(ir.CONST_STRING).SetDest(msgReg)
	constStr.Payload = ir.Payload{Kind: ir.PayloadString, Str: ir.StringRef(msg)}

	newInst := ir.New(ir.NEW_INSTANCE).SetDest(excReg)
	newInst.Payload = ir.Payload{Kind: ir.PayloadType, Type: npeType}

	invoke := ir.New(ir.INVOKE_DIRECT).SetSrcs([]ir.Reg{excReg, msgReg})
	invoke.Payload = ir.Payload{Kind: ir.PayloadMethod, Method: ir.MethodRef{
		Class: npeType, Name: "<init>", Params: []ir.TypeRef{"Ljava/lang/String;"}, Return: "V",
	}}

	throwInsn := ir.New(ir.THROW).SetSrcs([]ir.Reg{excReg})

	b.Items.PushBack(item.NewOpcode(constStr))
	b.Items.PushBack(item.NewOpcode(newInst))
	b.Items.PushBack(item.NewOpcode(invoke))
	b.Items.PushBack(item.NewOpcode(throwInsn))

	for _, e := range append([]*cfg.Edge(nil), b.Succs()...) {
		if e.Kind == cfg.Goto || e.Kind == cfg.Branch {
			g.RemoveEdge(e)
		}
	}

	stats.NPEsSynthesized++
}

// removeFrom deletes from and every item after it from its list. The
// chain is gathered before any removal begins, since List.Remove clears
// the removed item's own next pointer.
func removeFrom(items *item.List, from *item.Item) {
	var doomed []*item.Item
	for it := from; it != nil; it = it.Next() {
		doomed = append(doomed, it)
	}
	for _, it := range doomed {
		items.Remove(it)
	}
}

// forwardTargets retargets a goto/branch edge out of b straight to
// whichever successor a target block c's own trailing conditional would
// always resolve to, skipping the hop through c. This is sound for the
// same reason foldBranch is: c's resolution is computed from the join
// over all of c's predecessors, so it holds no matter which predecessor
// is asking.
func forwardTargets(g *cfg.Graph, b *cfg.Block, result *Result, stats *TransformStats) {
	for _, e := range append([]*cfg.Edge(nil), b.Succs()...) {
		if e.Kind != cfg.Goto && e.Kind != cfg.Branch {
			continue
		}
		c := e.Tgt
		if c == b {
			continue
		}
		last := c.LastInsn()
		if last == nil || !last.Insn.Op.IsConditionalBranch() {
			continue
		}
		taken, known := evalCondition(last.Insn, result.EntryState(c))
		if !known {
			continue
		}
		branchEdge := singleBranchSucc(c)
		gotoEdge := c.GotoSucc()
		if branchEdge == nil || gotoEdge == nil {
			continue
		}
		target := gotoEdge.Tgt
		if taken {
			target = branchEdge.Tgt
		}
		if target == c {
			continue
		}
		g.RetargetEdge(e, target)
		stats.TargetsForwarded++
	}
}

// foldBranch replaces a conditional branch whose outcome is now known
// with an unconditional GOTO to the taken successor, removing the
// untaken edge; a later Simplify pass drops whatever that leaves
// unreachable.
func foldBranch(g *cfg.Graph, b *cfg.Block, state State, stats *TransformStats) {
	last := b.LastInsn()
	if last == nil || !last.Insn.Op.IsConditionalBranch() {
		return
	}
	insn := last.Insn
	taken, known := evalCondition(insn, state)
	if !known {
		return
	}

	branchEdge := singleBranchSucc(b)
	gotoEdge := b.GotoSucc()
	if branchEdge == nil || gotoEdge == nil {
		return
	}

	// Whichever edge survives stops being conditional, since the
	// instruction that made it so is about to be deleted: re-express it
	// as a plain GOTO so Linearize doesn't try to reinsert a branch
	// instruction that no longer exists.
	keep, drop := branchEdge, gotoEdge
	if !taken {
		keep, drop = gotoEdge, branchEdge
	}
	keepTgt := keep.Tgt
	g.RemoveEdge(drop)
	g.RemoveEdge(keep)
	g.AddEdge(b, keepTgt, cfg.Goto)
	b.Items.Remove(last)
	stats.BranchesFolded++
}

func singleBranchSucc(b *cfg.Block) *cfg.Edge {
	succs := b.BranchSuccs()
	if len(succs) != 1 {
		return nil
	}
	return succs[0]
}

// evalCondition decides a two-operand or zero-test conditional branch's
// direction when both operands are known exact constants.
func evalCondition(insn *ir.Instruction, state State) (taken bool, known bool) {
	var l, r int64
	switch insn.Op {
	case ir.IF_EQZ, ir.IF_NEZ, ir.IF_LTZ, ir.IF_GEZ, ir.IF_GTZ, ir.IF_LEZ:
		v, ok := state.Reg(insn.Src(0)).AsExact()
		if !ok {
			return false, false
		}
		l, r = v, 0
	default:
		lv, lok := state.Reg(insn.Src(0)).AsExact()
		rv, rok := state.Reg(insn.Src(1)).AsExact()
		if !lok || !rok {
			return false, false
		}
		l, r = lv, rv
	}

	switch insn.Op {
	case ir.IF_EQ, ir.IF_EQZ:
		return l == r, true
	case ir.IF_NE, ir.IF_NEZ:
		return l != r, true
	case ir.IF_LT, ir.IF_LTZ:
		return l < r, true
	case ir.IF_GE, ir.IF_GEZ:
		return l >= r, true
	case ir.IF_GT, ir.IF_GTZ:
		return l > r, true
	case ir.IF_LE, ir.IF_LEZ:
		return l <= r, true
	default:
		return false, false
	}
}
