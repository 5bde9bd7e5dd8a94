// Package commands implements cmd/dexopt's subcommands, one file per
// verb.
package commands

import (
	"dexopt/internal/cfg"
	"dexopt/internal/constprop"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// Real DEX parsing is out of scope, so every subcommand here exercises
// the core against small synthetic methods instead of a real APK's
// method table: a branch worth folding, a static field worth
// propagating, and an invoke with enough arguments to force range form.

func opc(op ir.Opcode) *ir.Instruction { return ir.New(op) }

func constOf(dest ir.Reg, lit int64) *ir.Instruction {
	c := opc(ir.CONST)
	c.SetDest(dest)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: lit}
	return c
}

func buildGraph(name string, regs int, items ...*item.Item) *cfg.Graph {
	list := item.NewList()
	for _, it := range items {
		list.PushBack(it)
	}
	return cfg.Build(name, regs, list, true)
}

// foldableBranch builds "if (1 < 2) return 1; else return 2;", whose
// condition Transform can fold away entirely.
func foldableBranch() *cfg.Graph {
	c0 := constOf(0, 1)
	c1 := constOf(1, 2)
	cmp := opc(ir.IF_LT)
	cmp.SetSrcs([]ir.Reg{0, 1})
	cmpItem := item.NewOpcode(cmp)

	fallGoto := opc(ir.GOTO)
	gotoItem := item.NewOpcode(fallGoto)

	takenTarget := item.NewTarget(cmpItem, item.TargetSimple, 0)
	ret1 := opc(ir.RETURN)
	ret1.SetSrcs([]ir.Reg{0})

	notTakenTarget := item.NewTarget(gotoItem, item.TargetSimple, 0)
	ret2 := opc(ir.RETURN)
	ret2.SetSrcs([]ir.Reg{1})

	return buildGraph("LFixtures;.foldableBranch:()I", 4,
		item.NewOpcode(c0), item.NewOpcode(c1), cmpItem,
		gotoItem,
		takenTarget, item.NewOpcode(ret1),
		notTakenTarget, item.NewOpcode(ret2))
}

// manyArgInvoke builds a static invoke with six integer arguments, forcing
// the range-invoke path through regalloc.
func manyArgInvoke() *cfg.Graph {
	var items []*item.Item
	srcs := make([]ir.Reg, 0, 6)
	for i := 0; i < 6; i++ {
		c := constOf(ir.Reg(i), int64(i))
		items = append(items, item.NewOpcode(c))
		srcs = append(srcs, ir.Reg(i))
	}
	invoke := opc(ir.INVOKE_STATIC)
	invoke.SetSrcs(srcs)
	invoke.Payload = ir.Payload{Kind: ir.PayloadMethod, Method: ir.MethodRef{Class: "LFixtures;", Name: "sum6"}}
	items = append(items, item.NewOpcode(invoke))
	ret := opc(ir.RETURN_VOID)
	items = append(items, item.NewOpcode(ret))
	return buildGraph("LFixtures;.manyArgInvoke:()V", 6, items...)
}

// staticFieldRead builds a method reading a static field this package's
// clinit writes a known constant into, exercising the whole-program
// phase's field summary.
func staticFieldRead() (constprop.ClassInit, constprop.MethodBody) {
	field := ir.FieldRef{Class: "LFixtures;", Name: "kMagic", Type: "I"}

	clinitC := constOf(0, 42)
	sput := opc(ir.SPUT)
	sput.SetSrcs([]ir.Reg{0})
	sput.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}
	clinitRet := opc(ir.RETURN_VOID)
	clinit := constprop.ClassInit{
		Class: "LFixtures;",
		Graph: buildGraph("LFixtures;.<clinit>:()V", 2, item.NewOpcode(clinitC), item.NewOpcode(sput), item.NewOpcode(clinitRet)),
	}

	sget := opc(ir.SGET)
	sget.SetDest(0)
	sget.Payload = ir.Payload{Kind: ir.PayloadField, Field: field}
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{0})
	method := constprop.MethodBody{
		ID:    ir.MethodRef{Class: "LFixtures;", Name: "readMagic", Return: "I"},
		Class: "LFixtures;",
		Graph: buildGraph("LFixtures;.readMagic:()I", 2, item.NewOpcode(sget), item.NewOpcode(ret)),
	}
	return clinit, method
}

// FixtureGraphs returns every synthetic CFG this package's commands run
// the core against.
func FixtureGraphs() []*cfg.Graph {
	_, read := staticFieldRead()
	return []*cfg.Graph{foldableBranch(), manyArgInvoke(), read.Graph}
}

// FixtureWholeProgram returns the clinit/method pair the analyze/serve
// commands feed to the whole-program constant-propagation phase.
func FixtureWholeProgram() ([]constprop.ClassInit, []constprop.MethodBody) {
	clinit, method := staticFieldRead()
	return []constprop.ClassInit{clinit}, []constprop.MethodBody{method}
}

// methodsFromGraphs wraps each graph in a MethodBody named after the CFG
// itself, for commands that only need per-method local analysis and don't
// care about class/ctor scoping.
func methodsFromGraphs(graphs []*cfg.Graph) []constprop.MethodBody {
	out := make([]constprop.MethodBody, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, constprop.MethodBody{ID: ir.MethodRef{Class: "LFixtures;", Name: g.Method}, Graph: g})
	}
	return out
}
