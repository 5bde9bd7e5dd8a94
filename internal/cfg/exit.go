package cfg

// tarjanState is the bookkeeping for one run of Tarjan's strongly
// connected components algorithm over a Graph's non-ghost edges.
type tarjanState struct {
	index, low map[int]int
	onStack    map[int]bool
	stack      []*Block
	counter    int
	sccs       [][]*Block
	sccOf      map[int]int
}

func (t *tarjanState) strongConnect(b *Block) {
	t.index[b.ID] = t.counter
	t.low[b.ID] = t.counter
	t.counter++
	t.stack = append(t.stack, b)
	t.onStack[b.ID] = true

	for _, e := range b.succs {
		if e.Kind == Ghost {
			continue
		}
		w := e.Tgt
		if _, seen := t.index[w.ID]; !seen {
			t.strongConnect(w)
			if t.low[w.ID] < t.low[b.ID] {
				t.low[b.ID] = t.low[w.ID]
			}
		} else if t.onStack[w.ID] {
			if t.index[w.ID] < t.low[b.ID] {
				t.low[b.ID] = t.index[w.ID]
			}
		}
	}

	if t.low[b.ID] == t.index[b.ID] {
		var scc []*Block
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w.ID] = false
			scc = append(scc, w)
			if w == b {
				break
			}
		}
		id := len(t.sccs)
		for _, w := range scc {
			t.sccOf[w.ID] = id
		}
		t.sccs = append(t.sccs, scc)
	}
}

func (g *Graph) computeSCCs() ([][]*Block, map[int]int) {
	t := &tarjanState{
		index: make(map[int]int), low: make(map[int]int),
		onStack: make(map[int]bool), sccOf: make(map[int]int),
	}
	for _, b := range g.BlocksSorted() {
		if _, seen := t.index[b.ID]; !seen {
			t.strongConnect(b)
		}
	}
	return t.sccs, t.sccOf
}

// CalculateExitBlock finds the graph's unique exit: the SCC DAG's terminal
// components are found via Tarjan, one representative block is taken per
// terminal component (a true
// return/throw sink if the component has one, else its lowest-id block
// standing in for an unreachable-exit loop), and if more than one
// representative remains a synthetic exit block is created with a GHOST
// edge from each.
func (g *Graph) CalculateExitBlock() *Block {
	blocks := g.BlocksSorted()
	if len(blocks) == 0 {
		return nil
	}
	sccs, sccOf := g.computeSCCs()
	terminal := make([]bool, len(sccs))
	for i := range sccs {
		terminal[i] = true
	}
	for _, b := range blocks {
		si := sccOf[b.ID]
		for _, e := range b.NonGhostSuccs() {
			if sccOf[e.Tgt.ID] != si {
				terminal[si] = false
			}
		}
	}

	var candidates []*Block
	for i, scc := range sccs {
		if !terminal[i] {
			continue
		}
		var trueExit, lowest *Block
		for _, b := range scc {
			if lowest == nil || b.ID < lowest.ID {
				lowest = b
			}
			if len(b.NonGhostSuccs()) == 0 && (trueExit == nil || b.ID < trueExit.ID) {
				trueExit = b
			}
		}
		if trueExit != nil {
			candidates = append(candidates, trueExit)
		} else {
			candidates = append(candidates, lowest)
		}
	}
	sortBlocksByID(candidates)

	switch len(candidates) {
	case 0:
		return nil
	case 1:
		g.Exit = candidates[0]
	default:
		exit := g.CreateBlock()
		exit.Synthetic = true
		for _, c := range candidates {
			g.AddEdge(c, exit, Ghost)
		}
		g.Exit = exit
	}
	return g.Exit
}
