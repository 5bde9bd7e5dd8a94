package regalloc

import "dexopt/internal/ir"

// Coloring is the outcome of Smith's simplify/select: the final vreg
// ("color") Select assigned each register, plus whichever registers it
// couldn't place — candidates for the next spill-and-retry iteration.
type Coloring struct {
	colors   map[ir.Reg]ir.Reg
	widths   map[ir.Reg]int
	spills   []ir.Reg
	regCount uint32
}

// ColorOf returns r's assigned vreg, if Select placed it.
func (c *Coloring) ColorOf(r ir.Reg) (ir.Reg, bool) {
	v, ok := c.colors[r]
	return v, ok
}

// RegCount is one past the highest vreg index any colored register
// occupies.
func (c *Coloring) RegCount() uint32 { return c.regCount }

func (c *Coloring) reassign(orig, target ir.Reg) ir.Reg {
	prev := c.colors[orig]
	c.colors[orig] = target
	if need := uint32(target) + uint32(c.widths[orig]); need > c.regCount {
		c.regCount = need
	}
	return prev
}

// setColor directly binds a freshly introduced register (one that never
// went through simplify/select, e.g. a spill or split temporary) to color,
// recording its width so later RegCount/occupiedRanges bookkeeping sees
// it.
func (c *Coloring) setColor(r ir.Reg, color ir.Reg, width int) {
	c.widths[r] = width
	c.reassign(r, color)
}

// Color runs Smith's simplify/select over ig: active nodes are pushed onto
// a removal stack in order of definite colorability, falling back to the
// highest-weight node when none remain colorable, then popped in reverse
// removal order and assigned the lowest free vreg range that fits their
// max-vreg cap without overlapping an already-colored neighbor.
func Color(ig *Graph) *Coloring {
	order := simplifyOrder(ig)
	return selectColors(ig, order)
}

func simplifyOrder(ig *Graph) []ir.Reg {
	active := make(map[ir.Reg]bool)
	for _, n := range ig.Nodes() {
		if n.isActive() {
			active[n.Reg] = true
		}
	}
	var stack []ir.Reg
	for len(active) > 0 {
		pick, ok := pickColorable(ig, active)
		if !ok {
			pick = pickSpillCandidate(ig, active)
		}
		stack = append(stack, pick)
		ig.RemoveNode(pick)
		delete(active, pick)
	}
	return stack
}

func pickColorable(ig *Graph, active map[ir.Reg]bool) (ir.Reg, bool) {
	var best ir.Reg
	found := false
	for r := range active {
		n, _ := ig.GetNode(r)
		if n.DefinitelyColorable() && (!found || r < best) {
			best, found = r, true
		}
	}
	return best, found
}

// pickSpillCandidate picks the active node with the lowest ratio of spill
// cost to degree; with every node given the same uniform spill cost, that
// is the node with the highest weight.
func pickSpillCandidate(ig *Graph, active map[ir.Reg]bool) ir.Reg {
	var best ir.Reg
	var bestWeight uint32
	found := false
	for r := range active {
		n, _ := ig.GetNode(r)
		if !found || n.weight > bestWeight || (n.weight == bestWeight && r < best) {
			best, bestWeight, found = r, n.weight, true
		}
	}
	return best
}

func selectColors(ig *Graph, order []ir.Reg) *Coloring {
	c := &Coloring{colors: make(map[ir.Reg]ir.Reg), widths: make(map[ir.Reg]int)}
	colored := make(map[ir.Reg]bool)
	for _, r := range order {
		n, _ := ig.GetNode(r)
		c.widths[r] = n.Width()
	}
	for i := len(order) - 1; i >= 0; i-- {
		r := order[i]
		n, _ := ig.GetNode(r)
		forbidden := occupiedRanges(n, c, colored)
		slot, ok := firstFreeSlot(forbidden, n.Width(), n.maxVreg)
		if !ok {
			c.spills = append(c.spills, r)
			continue
		}
		c.reassign(r, slot)
		colored[r] = true
	}
	return c
}

func occupiedRanges(n *Node, c *Coloring, colored map[ir.Reg]bool) [][2]uint32 {
	var ranges [][2]uint32
	for _, adj := range n.adjacent {
		if !colored[adj] {
			continue
		}
		start := uint32(c.colors[adj])
		ranges = append(ranges, [2]uint32{start, start + uint32(c.widths[adj])})
	}
	return ranges
}

func firstFreeSlot(forbidden [][2]uint32, width int, maxVreg uint32) (ir.Reg, bool) {
	for start := uint32(0); start+uint32(width) <= maxVreg+1; start++ {
		end := start + uint32(width)
		if rangeFree(forbidden, start, end) {
			return ir.Reg(start), true
		}
	}
	return 0, false
}

func rangeFree(forbidden [][2]uint32, start, end uint32) bool {
	for _, r := range forbidden {
		if start < r[1] && r[0] < end {
			return false
		}
	}
	return true
}
