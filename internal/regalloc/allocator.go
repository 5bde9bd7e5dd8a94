package regalloc

import (
	"dexopt/internal/cfg"
	"dexopt/internal/ir"
	"dexopt/internal/item"
	"dexopt/internal/liverange"
)

// Config mirrors the allocator's configuration switches: knobs that
// change behavior without changing the algorithm.
type Config struct {
	// UseLiveRangeSplitting enables step 10's intra-block live-range
	// splitting as an alternative to spilling.
	UseLiveRangeSplitting bool
	// NoOverwriteThis is read by callers wiring the constructor-scoped
	// analyses upstream of allocation; this package doesn't special-case
	// `this` itself, since nothing here distinguishes instance methods.
	NoOverwriteThis bool
	// MaxIterations bounds how many times the pipeline re-runs from
	// live-range renumbering after a spill. Defaults to 3 if unset.
	MaxIterations int
}

func DefaultConfig() Config { return Config{MaxIterations: 3} }

// Stats accumulates the per-method counters names, reducible
// across a worker-pool run via Accumulate.
type Stats struct {
	ReiterationCount uint64
	ParamsSpillEarly uint64
	ParamSpillMoves  uint64
	RangeSpillMoves  uint64
	GlobalSpillMoves uint64
	SplitMoves       uint64
	MovesCoalesced   uint64
}

// Accumulate folds o into s, the reduce half of a map/reduce run over many
// methods.
func (s *Stats) Accumulate(o Stats) {
	s.ReiterationCount += o.ReiterationCount
	s.ParamsSpillEarly += o.ParamsSpillEarly
	s.ParamSpillMoves += o.ParamSpillMoves
	s.RangeSpillMoves += o.RangeSpillMoves
	s.GlobalSpillMoves += o.GlobalSpillMoves
	s.SplitMoves += o.SplitMoves
	s.MovesCoalesced += o.MovesCoalesced
}

func (s Stats) MovesInserted() uint64 {
	return s.ParamSpillMoves + s.RangeSpillMoves + s.GlobalSpillMoves + s.SplitMoves
}

func (s Stats) NetMoves() int64 { return int64(s.MovesInserted()) - int64(s.MovesCoalesced) }

// Allocator runs the full pipeline of over one method's CFG:
// live-range renumbering, interference graph construction, coalescing,
// range detection, Smith simplify/select, parameter placement, range
// allocation, and spilling, re-running from renumbering whenever a spill
// materializes new temporaries until the graph stabilizes or Config's
// iteration cap is hit.
type Allocator struct {
	Config Config
	stats  Stats
}

func NewAllocator(cfg Config) *Allocator {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 3
	}
	return &Allocator{Config: cfg}
}

func (a *Allocator) Stats() Stats { return a.stats }

// Allocate assigns every register in g a final, dense vreg, mutating the
// graph's instructions in place, and returns the number of vregs used.
func (a *Allocator) Allocate(g *cfg.Graph) int {
	initialRegs := g.RegCount

	for iter := 0; iter < a.Config.MaxIterations; iter++ {
		liverange.Renumber(g)
		rangeSet := DetectRangeSet(g)
		ig := Build(g, initialRegs, rangeSet)

		Coalesce(g, ig, &a.stats)

		coloring := Color(ig)

		if len(coloring.spills) > 0 && a.Config.UseLiveRangeSplitting {
			var remaining []ir.Reg
			nextReg := ir.Reg(g.RegCount)
			for _, r := range coloring.spills {
				if !trySplit(g, ig, r, &nextReg, &a.stats) {
					remaining = append(remaining, r)
				}
			}
			coloring.spills = remaining
			g.RecomputeRegCount()
		}

		if len(coloring.spills) > 0 {
			kindOf := make(map[ir.Reg]ir.Kind, len(coloring.spills))
			for _, r := range coloring.spills {
				if n, ok := ig.GetNode(r); ok {
					kindOf[r] = n.typeKind
				}
			}
			nextReg := ir.Reg(g.RegCount)
			insertSpillMoves(g, &nextReg, kindOf, coloring.spills, &a.stats)
			g.RecomputeRegCount()
			a.stats.ReiterationCount++
			if iter == a.Config.MaxIterations-1 {
				a.stats.ParamsSpillEarly += uint64(len(coloring.spills))
			}
			continue
		}

		allocateRanges(g, ig, rangeSet, coloring, &a.stats)

		nextReg := ir.Reg(g.RegCount)
		placeParams(g, &nextReg, coloring, &a.stats)

		applyColoring(g, coloring)
		insertCheckCastMoves(g)
		g.RegCount = int(coloring.RegCount())
		return g.RegCount
	}
	return g.RegCount
}

func applyColoring(g *cfg.Graph, coloring *Coloring) {
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind != item.KindOpcode {
				return true
			}
			insn := it.Insn
			if insn.HasDest() {
				if c, ok := coloring.ColorOf(insn.Dest()); ok {
					insn.SetDest(c)
				}
			}
			for s := 0; s < insn.SrcsSize(); s++ {
				if c, ok := coloring.ColorOf(insn.Src(s)); ok {
					insn.SetSrc(s, c)
				}
			}
			return true
		})
	}
}

// insertCheckCastMoves handles the one thing instruction selection needs
// to touch after coloring: a check-cast whose (now-colored) dest differs
// from its src needs a move inserted immediately before it, since the
// wire format's check-cast takes a single operand acting as both dest and
// src. Picking the narrowest move/const/binop opcode variant for the
// eventual wire encoding, and the 2addr-form commuting that goes with it,
// is otherwise out of scope — concrete DEX opcode lowering is an explicit
// non-goal (see DESIGN.md).
func insertCheckCastMoves(g *cfg.Graph) {
	for _, b := range g.BlocksSorted() {
		var casts []*item.Item
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.Op == ir.CHECK_CAST {
				casts = append(casts, it)
			}
			return true
		})
		for _, it := range casts {
			insn := it.Insn
			if !insn.HasDest() || insn.SrcsSize() == 0 || insn.Dest() == insn.Src(0) {
				continue
			}
			move := spillMoveFor(ir.KindObject, insn.Dest(), insn.Src(0))
			b.Items.InsertBefore(item.NewOpcode(move), it)
		}
	}
}
