package constprop

import (
	"dexopt/internal/cfg"
	"dexopt/internal/fixpoint"
)

// blockAnalyzer adapts Analyzer to fixpoint.Analyzer[*cfg.Block, State].
type blockAnalyzer struct{ a *Analyzer }

func (ba blockAnalyzer) Transfer(b *cfg.Block, entry State) State {
	return ba.a.BlockTransfer(b.Items, entry)
}

// Result is the outcome of running the intraprocedural iterator over one
// method: the entry abstract state at every block, queryable for the
// transform pass below.
type Result struct {
	it *fixpoint.Iterator[*cfg.Block, State]
}

// EntryState returns the abstract state at the start of b.
func (r *Result) EntryState(b *cfg.Block) State { return r.it.EntryState(b) }

// ExitState returns the abstract state at the end of b.
func (r *Result) ExitState(b *cfg.Block) State { return r.it.ExitState(b) }

// Run analyzes g's method body, seeding the entry block with initial
// (typically one SignedConstantExact/Top binding per incoming parameter,
// built by the caller from the method's LOAD_PARAM* items).
func Run(g *cfg.Graph, a *Analyzer, initial State) *Result {
	it := fixpoint.New[*cfg.Block, State](blockGraph{g}, blockAnalyzer{a}, Bottom(), 1)
	it.Run(initial)
	return &Result{it: it}
}
