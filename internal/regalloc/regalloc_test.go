package regalloc

import (
	"testing"

	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

func buildGraph(t *testing.T, regs int, items ...*item.Item) *cfg.Graph {
	t.Helper()
	list := item.NewList()
	for _, it := range items {
		list.PushBack(it)
	}
	return cfg.Build("m", regs, list, true)
}

func opc(op ir.Opcode) *ir.Instruction { return ir.New(op) }

func constOf(dest ir.Reg, lit int64) *ir.Instruction {
	c := opc(ir.CONST)
	c.SetDest(dest)
	c.Payload = ir.Payload{Kind: ir.PayloadLiteral, Literal: lit}
	return c
}

func TestColorReusesNonOverlappingRanges(t *testing.T) {
	c0 := constOf(0, 1)
	add := opc(ir.ADD_INT)
	add.SetDest(2)
	add.SetSrcs([]ir.Reg{0, 0})
	c1 := constOf(1, 2)
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{1})

	g := buildGraph(t, 8, item.NewOpcode(c0), item.NewOpcode(add), item.NewOpcode(c1), item.NewOpcode(ret))

	ig := Build(g, g.RegCount, nil)
	coloring := Color(ig)

	c0Color, _ := coloring.ColorOf(0)
	c1Color, _ := coloring.ColorOf(1)
	addColor, _ := coloring.ColorOf(2)
	if c0Color != c1Color || c1Color != addColor {
		t.Fatalf("registers with disjoint live ranges should share a color: got %d, %d, %d", c0Color, c1Color, addColor)
	}
}

func TestColorSeparatesInterferingRegisters(t *testing.T) {
	c0 := constOf(0, 1)
	c1 := constOf(1, 2)
	add := opc(ir.ADD_INT)
	add.SetDest(2)
	add.SetSrcs([]ir.Reg{0, 1})
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{2})

	g := buildGraph(t, 8, item.NewOpcode(c0), item.NewOpcode(c1), item.NewOpcode(add), item.NewOpcode(ret))

	ig := Build(g, g.RegCount, nil)
	if !ig.adjacent(0, 1) {
		t.Fatalf("v0 and v1 are simultaneously live at the add and must interfere")
	}

	coloring := Color(ig)
	color0, _ := coloring.ColorOf(0)
	color1, _ := coloring.ColorOf(1)
	if color0 == color1 {
		t.Fatalf("interfering registers must not share a color, both got %d", color0)
	}
}

func TestCoalesceRemovesRedundantMove(t *testing.T) {
	c0 := constOf(0, 1)
	mv := opc(ir.MOVE)
	mv.SetDest(1)
	mv.SetSrcs([]ir.Reg{0})
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{1})

	g := buildGraph(t, 8, item.NewOpcode(c0), item.NewOpcode(mv), item.NewOpcode(ret))
	before := g.Entry.Items.Len()

	ig := Build(g, g.RegCount, nil)
	var stats Stats
	Coalesce(g, ig, &stats)

	if stats.MovesCoalesced != 1 {
		t.Fatalf("want exactly one move coalesced, got %d", stats.MovesCoalesced)
	}
	if g.Entry.Items.Len() != before-1 {
		t.Fatalf("the redundant move should have been deleted from the item stream")
	}
	if c0.Dest() != 1 {
		t.Fatalf("the def feeding the coalesced move should now write the surviving register, got v%d", c0.Dest())
	}
}

func TestParamsPlacedAtTopOfRegisterFile(t *testing.T) {
	p0 := opc(ir.LOAD_PARAM)
	p0.SetDest(0)
	p1 := opc(ir.LOAD_PARAM)
	p1.SetDest(1)
	add := opc(ir.ADD_INT)
	add.SetDest(2)
	add.SetSrcs([]ir.Reg{0, 1})
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{2})

	g := buildGraph(t, 3, item.NewOpcode(p0), item.NewOpcode(p1), item.NewOpcode(add), item.NewOpcode(ret))

	a := NewAllocator(DefaultConfig())
	total := a.Allocate(g)

	var loads []*item.Item
	g.Entry.Items.Walk(func(it *item.Item) bool {
		if it.Kind == item.KindOpcode && it.Insn.Op.IsLoadParam() {
			loads = append(loads, it)
		}
		return true
	})
	if len(loads) != 2 {
		t.Fatalf("want 2 load-param instructions to survive allocation, got %d", len(loads))
	}
	first := int(loads[0].Insn.Dest())
	second := int(loads[1].Insn.Dest())
	if first != total-2 || second != total-1 {
		t.Fatalf("want parameters at the top two vregs (%d,%d), got (%d,%d)", total-2, total-1, first, second)
	}
}

func TestRangeInvokeGetsContiguousOperands(t *testing.T) {
	var items []*item.Item
	srcs := make([]ir.Reg, 0, 6)
	for i := 0; i < 6; i++ {
		c := constOf(ir.Reg(i), int64(i))
		items = append(items, item.NewOpcode(c))
		srcs = append(srcs, ir.Reg(i))
	}
	invoke := opc(ir.INVOKE_STATIC)
	invoke.SetSrcs(srcs)
	invoke.Payload = ir.Payload{Kind: ir.PayloadMethod, Method: ir.MethodRef{Class: "LFoo;", Name: "bar"}}
	items = append(items, item.NewOpcode(invoke))
	ret := opc(ir.RETURN_VOID)
	items = append(items, item.NewOpcode(ret))

	g := buildGraph(t, 6, items...)

	a := NewAllocator(DefaultConfig())
	a.Allocate(g)

	base := -1
	for i := 0; i < invoke.SrcsSize(); i++ {
		r := int(invoke.Src(i))
		if base == -1 {
			base = r
			continue
		}
		if r != base+i {
			t.Fatalf("range invoke operand %d should be contiguous with the base; want %d, got %d", i, base+i, r)
		}
	}
}

func TestCheckCastDestInterferesWithBlockLiveIn(t *testing.T) {
	cast := opc(ir.CHECK_CAST)
	cast.SetDest(1)
	cast.SetSrcs([]ir.Reg{0})
	cast.Payload = ir.Payload{Kind: ir.PayloadType, Type: "LFoo;"}
	use := opc(ir.RETURN_OBJECT)
	use.SetSrcs([]ir.Reg{0})

	g := buildGraph(t, 4, item.NewOpcode(cast), item.NewOpcode(use))

	ig := Build(g, g.RegCount, nil)
	if !ig.adjacent(0, 1) {
		t.Fatalf("check-cast's dest must interfere with everything live at block start, including its own src")
	}
}

func TestWriteDOTIncludesEveryNode(t *testing.T) {
	c0 := constOf(0, 1)
	ret := opc(ir.RETURN)
	ret.SetSrcs([]ir.Reg{0})
	g := buildGraph(t, 2, item.NewOpcode(c0), item.NewOpcode(ret))

	ig := Build(g, g.RegCount, nil)
	out := ig.WriteDOT()
	if out == "" {
		t.Fatalf("expected a non-empty dot dump")
	}
}
