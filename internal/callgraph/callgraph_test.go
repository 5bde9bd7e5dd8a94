package callgraph

import (
	"testing"

	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

func methodRef(class, name string) ir.MethodRef {
	return ir.MethodRef{Class: ir.TypeRef(class), Name: name, Return: "V"}
}

func invokeItem(op ir.Opcode, callee ir.MethodRef) *item.Item {
	insn := ir.New(op)
	insn.Payload = ir.Payload{Kind: ir.PayloadMethod, Method: callee}
	return item.NewOpcode(insn)
}

func singleBlockGraph(t *testing.T, items ...*item.Item) *cfg.Graph {
	t.Helper()
	list := item.NewList()
	for _, it := range items {
		list.PushBack(it)
	}
	return cfg.Build("m", 0, list, false)
}

func TestBuildStaticAndDirectAlwaysResolve(t *testing.T) {
	caller := methodRef("LFoo;", "bar")
	calleeStatic := methodRef("LFoo;", "staticHelper")
	calleeDirect := methodRef("LFoo;", "<init>")

	g := singleBlockGraph(t,
		invokeItem(ir.INVOKE_STATIC, calleeStatic),
		invokeItem(ir.INVOKE_DIRECT, calleeDirect),
		item.NewOpcode(ir.New(ir.RETURN_VOID)),
	)

	cg := Build([]Method{{ID: caller, Graph: g}}, nil)

	callerNode, ok := cg.Node(caller)
	if !ok {
		t.Fatalf("caller node missing")
	}
	if len(callerNode.Callees()) != 2 {
		t.Fatalf("want 2 callee edges, got %d", len(callerNode.Callees()))
	}
	if _, ok := cg.Node(calleeStatic); !ok {
		t.Errorf("static callee node missing")
	}
	if _, ok := cg.Node(calleeDirect); !ok {
		t.Errorf("direct callee node missing")
	}
}

type fakeResolver struct {
	targets []MethodID
}

func (r fakeResolver) Resolve(ir.MethodRef, ir.Opcode) []MethodID { return r.targets }

func TestBuildVirtualAmbiguousDropsEdge(t *testing.T) {
	caller := methodRef("LFoo;", "bar")
	callsite := methodRef("LBase;", "virt")

	g := singleBlockGraph(t,
		invokeItem(ir.INVOKE_VIRTUAL, callsite),
		item.NewOpcode(ir.New(ir.RETURN_VOID)),
	)

	resolver := fakeResolver{targets: []MethodID{
		methodRef("LA;", "virt"),
		methodRef("LB;", "virt"),
	}}
	cg := Build([]Method{{ID: caller, Graph: g}}, resolver)

	callerNode, _ := cg.Node(caller)
	if len(callerNode.Callees()) != 0 {
		t.Fatalf("ambiguous virtual invoke should not resolve, got %d edges", len(callerNode.Callees()))
	}
}

func TestBuildVirtualUnambiguousResolves(t *testing.T) {
	caller := methodRef("LFoo;", "bar")
	callsite := methodRef("LBase;", "virt")
	unique := methodRef("LOnly;", "virt")

	g := singleBlockGraph(t,
		invokeItem(ir.INVOKE_VIRTUAL, callsite),
		item.NewOpcode(ir.New(ir.RETURN_VOID)),
	)

	resolver := fakeResolver{targets: []MethodID{unique}}
	cg := Build([]Method{{ID: caller, Graph: g}}, resolver)

	callerNode, _ := cg.Node(caller)
	if len(callerNode.Callees()) != 1 {
		t.Fatalf("want 1 callee edge, got %d", len(callerNode.Callees()))
	}
	if callerNode.Callees()[0].Callee.String() != unique.String() {
		t.Errorf("resolved to wrong callee: %v", callerNode.Callees()[0].Callee)
	}

	calleeNode, ok := cg.Node(unique)
	if !ok || len(calleeNode.Callers()) != 1 {
		t.Fatalf("callee node should have one caller edge")
	}
}

func TestRootsHangOffEntry(t *testing.T) {
	root := methodRef("LFoo;", "main")
	leaf := methodRef("LFoo;", "helper")

	g := singleBlockGraph(t,
		invokeItem(ir.INVOKE_STATIC, leaf),
		item.NewOpcode(ir.New(ir.RETURN_VOID)),
	)

	cg := Build([]Method{{ID: root, Graph: g}}, nil)

	foundRoot := false
	for _, e := range cg.Entry.Callees() {
		if e.Callee.String() == root.String() {
			foundRoot = true
		}
		if e.Callee.String() == leaf.String() {
			t.Errorf("leaf (has a caller) should not be an entry root")
		}
	}
	if !foundRoot {
		t.Errorf("root method with no known caller should hang off Entry")
	}
}

func TestSuccessorsDedupAndSorted(t *testing.T) {
	caller := methodRef("LFoo;", "bar")
	callee := methodRef("LFoo;", "baz")

	g := singleBlockGraph(t,
		invokeItem(ir.INVOKE_STATIC, callee),
		invokeItem(ir.INVOKE_STATIC, callee),
		item.NewOpcode(ir.New(ir.RETURN_VOID)),
	)

	cg := Build([]Method{{ID: caller, Graph: g}}, nil)
	callerNode, _ := cg.Node(caller)

	succs := cg.Successors(callerNode)
	if len(succs) != 1 {
		t.Fatalf("want deduped successor set of 1, got %d", len(succs))
	}
	if succs[0].ID.String() != callee.String() {
		t.Errorf("unexpected successor: %v", succs[0].ID)
	}

	all := cg.Nodes()
	for i := 1; i < len(all); i++ {
		if !methodLess(all[i-1].ID, all[i].ID) && all[i-1].ID.String() != all[i].ID.String() {
			t.Errorf("Nodes() not sorted at index %d", i)
		}
	}
}
