// Package liverange renumbers a method's virtual registers by actual value
// identity rather than by the arbitrary numbers a lowering or previous
// transform left behind: a forward reaching-definitions dataflow finds,
// for every use, which definitions may reach it; definitions that jointly
// reach a single use are unioned (a real register can't fork identity at a
// control-flow join without an explicit move); and each surviving
// union-find class gets one freshly assigned, densely packed register.
package liverange

import (
	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/fixpoint"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// Renumber rewrites every instruction's dest and srcs in place and returns
// the method's new register count.
func Renumber(g *cfg.Graph) int {
	defOf, sites, paramRegs := assignDefIDs(g)
	if len(sites) == 0 {
		return g.RegCount
	}

	analyzer := &reachingAnalyzer{defOf: defOf, sites: sites}
	it := fixpoint.New[*cfg.Block, reachingState](blockGraph{g}, analyzer, newReachingState(), 1)

	initial := newReachingState()
	for i, r := range paramRegs {
		initial = initial.set(r, domain.PowersetOf(defID(i)))
		if sites[i].wide {
			initial = initial.set(r+1, domain.PowersetOf(defID(i)))
		}
	}
	it.Run(initial)

	uf := newUnionFind(len(sites))
	forEachUse(g, it, defOf, func(defs []defID) {
		for k := 1; k < len(defs); k++ {
			uf.union(int(defs[0]), int(defs[k]))
		}
	})

	slotOf := assignSlots(uf, sites)

	rewriteUses(g, it, defOf, slotOf, uf)
	forEachDefSite(g, defOf, func(it *item.Item, id defID) {
		it.Insn.SetDest(slotOf[uf.find(int(id))])
	})

	g.RecomputeRegCount()
	return g.RegCount
}

func assignDefIDs(g *cfg.Graph) (map[*item.Item]defID, []defSite, []ir.Reg) {
	var sites []defSite
	var paramRegs []ir.Reg
	defOf := make(map[*item.Item]defID)

	if g.Entry != nil {
		g.Entry.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.Op.IsLoadParam() {
				id := defID(len(sites))
				sites = append(sites, defSite{reg: it.Insn.Dest(), wide: it.Insn.Op.IsWide(), item: it})
				defOf[it] = id
				paramRegs = append(paramRegs, it.Insn.Dest())
			}
			return true
		})
	}
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.HasDest() && !it.Insn.Op.IsLoadParam() {
				id := defID(len(sites))
				sites = append(sites, defSite{reg: it.Insn.Dest(), wide: it.Insn.Op.IsWide(), real: true, item: it})
				defOf[it] = id
			}
			return true
		})
	}
	return defOf, sites, paramRegs
}

// forEachDefSite replays the same in-block stepping order as the dataflow
// used, invoking fn on every dest-bearing opcode item.
func forEachDefSite(g *cfg.Graph, defOf map[*item.Item]defID, fn func(*item.Item, defID)) {
	for _, b := range g.BlocksSorted() {
		b.Items.Walk(func(it *item.Item) bool {
			if it.Kind == item.KindOpcode && it.Insn.HasDest() {
				fn(it, defOf[it])
			}
			return true
		})
	}
}

// forEachUse replays per-block running state, invoking fn with the
// (possibly multi-valued) set of defs reaching each source register read.
func forEachUse(g *cfg.Graph, it *fixpoint.Iterator[*cfg.Block, reachingState], defOf map[*item.Item]defID, fn func([]defID)) {
	for _, b := range g.BlocksSorted() {
		state := it.EntryState(b)
		b.Items.Walk(func(i *item.Item) bool {
			if i.Kind != item.KindOpcode {
				return true
			}
			insn := i.Insn
			for s := 0; s < insn.SrcsSize(); s++ {
				defs := state.get(insn.Src(s)).Elements()
				if len(defs) > 0 {
					fn(defs)
				}
			}
			if insn.HasDest() {
				id := defOf[i]
				dest := insn.Dest()
				state = state.set(dest, domain.PowersetOf(id))
				if insn.Op.IsWide() {
					state = state.set(dest+1, domain.PowersetOf(id))
				}
			}
			return true
		})
	}
}

// assignSlots gives every union-find class a fresh, densely packed
// register, processing classes in order of their lowest member def id so
// parameters (which own the lowest ids) keep the lowest register numbers.
func assignSlots(uf *unionFind, sites []defSite) map[int]ir.Reg {
	classWide := make(map[int]bool)
	classFirstSeen := make(map[int]int)
	var order []int
	for i, s := range sites {
		root := uf.find(i)
		if s.wide {
			classWide[root] = true
		}
		if _, ok := classFirstSeen[root]; !ok {
			classFirstSeen[root] = i
			order = append(order, root)
		}
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && classFirstSeen[order[j-1]] > classFirstSeen[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}

	slotOf := make(map[int]ir.Reg, len(order))
	next := ir.Reg(0)
	for _, root := range order {
		slotOf[root] = next
		if classWide[root] {
			next += 2
		} else {
			next++
		}
	}
	return slotOf
}

func rewriteUses(g *cfg.Graph, it *fixpoint.Iterator[*cfg.Block, reachingState], defOf map[*item.Item]defID, slotOf map[int]ir.Reg, uf *unionFind) {
	for _, b := range g.BlocksSorted() {
		state := it.EntryState(b)
		b.Items.Walk(func(i *item.Item) bool {
			if i.Kind != item.KindOpcode {
				return true
			}
			insn := i.Insn
			newSrcs := make([]ir.Reg, insn.SrcsSize())
			for s := 0; s < insn.SrcsSize(); s++ {
				defs := state.get(insn.Src(s)).Elements()
				if len(defs) == 0 {
					newSrcs[s] = insn.Src(s)
					continue
				}
				newSrcs[s] = slotOf[uf.find(int(defs[0]))]
			}
			insn.SetSrcs(newSrcs)
			if insn.HasDest() {
				id := defOf[i]
				dest := insn.Dest()
				state = state.set(dest, domain.PowersetOf(id))
				if insn.Op.IsWide() {
					state = state.set(dest+1, domain.PowersetOf(id))
				}
			}
			return true
		})
	}
}
