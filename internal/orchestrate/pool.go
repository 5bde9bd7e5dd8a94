package orchestrate

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"dexopt/internal/config"
	"dexopt/internal/constprop"
	"dexopt/internal/regalloc"
)

// Pool drives the per-method phases of one analysis run across a bounded
// set of concurrent workers, with an explicit barrier between phases: no
// worker reads the whole-program state until every worker from the prior
// phase has returned: each method's IR/CFG/analyzer state is owned
// exclusively by one worker, and the whole-program state is only read
// once every worker from the prior phase has returned, built on
// `errgroup.Group` rather than a hand-rolled WaitGroup.
type Pool struct {
	Config config.Options
	Run    RunID

	mu             sync.Mutex
	regallocStats  regalloc.Stats
	transformStats constprop.TransformStats
}

// NewPool returns a pool bound to cfg, minting a fresh run identifier.
func NewPool(cfg config.Options) *Pool {
	return &Pool{Config: cfg, Run: NewRunID()}
}

func (p *Pool) RegallocStats() regalloc.Stats             { return p.regallocStats }
func (p *Pool) TransformStats() constprop.TransformStats { return p.transformStats }

func (p *Pool) setLimit(g *errgroup.Group) {
	n := p.Config.WorkerCount
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(n)
}

// RunLocalConstProp runs intraprocedural constant propagation and the
// Transform pass over every method concurrently, one worker per method,
// folding each method's TransformStats into the pool's shared total.
func (p *Pool) RunLocalConstProp(ctx context.Context, methods []constprop.MethodBody) error {
	g, ctx := errgroup.WithContext(ctx)
	p.setLimit(g)
	for _, m := range methods {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := &constprop.Analyzer{OwnerClass: m.Class, IsClinit: m.IsClinit, IsCtor: m.IsCtor, ThisReg: m.ThisReg, Self: m.ID}
			result := constprop.Run(m.Graph, a, constprop.Top())
			stats := constprop.Transform(m.Graph, a, result)

			p.mu.Lock()
			p.transformStats.ConstsFolded += stats.ConstsFolded
			p.transformStats.BranchesFolded += stats.BranchesFolded
			p.transformStats.PutsElided += stats.PutsElided
			p.transformStats.TargetsForwarded += stats.TargetsForwarded
			p.transformStats.InstanceOfFolded += stats.InstanceOfFolded
			p.transformStats.NPEsSynthesized += stats.NPEsSynthesized
			p.mu.Unlock()

			Log().Debugf("constprop %s: %d consts, %d branches, %d puts, %d targets forwarded, %d instance-of, %d npes",
				m.ID, stats.ConstsFolded, stats.BranchesFolded, stats.PutsElided,
				stats.TargetsForwarded, stats.InstanceOfFolded, stats.NPEsSynthesized)
			return nil
		})
	}
	return g.Wait()
}

// RunWholeProgram builds and refines the cross-method field/return summary.
// Unlike the two method-parallel phases, this runs on the calling
// goroutine: BuildPhase1/BuildPhase2 mutate one shared WholeProgramState
// method-by-method, and refinement only needs some deterministic order
// to converge the monotonic join, not a specific one, so there's nothing
// here for a worker pool to parallelize without adding its own locking
// around every field update.
func (p *Pool) RunWholeProgram(clinits []constprop.ClassInit, methods []constprop.MethodBody, maxRefineIters int) *constprop.WholeProgramState {
	w := constprop.NewWholeProgramState()
	w.BuildPhase1(clinits)
	w.BuildPhase2(methods)
	w.Refine(methods, maxRefineIters)
	Log().Infof("whole-program state built over %d clinits, %d methods", len(clinits), len(methods))
	return w
}

// RunRegAlloc allocates registers for every method concurrently, one
// worker per method, folding each method's regalloc.Stats into the pool's
// shared total via regalloc.Stats.Accumulate, the same map/reduce shape
// RunLocalConstProp uses for TransformStats.
func (p *Pool) RunRegAlloc(ctx context.Context, methods []constprop.MethodBody, rcfg regalloc.Config) error {
	g, ctx := errgroup.WithContext(ctx)
	p.setLimit(g)
	for _, m := range methods {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := regalloc.NewAllocator(rcfg)
			regs := a.Allocate(m.Graph)

			p.mu.Lock()
			p.regallocStats.Accumulate(a.Stats())
			p.mu.Unlock()

			Log().Debugf("regalloc %s: %d vregs, %d moves inserted, %d coalesced", m.ID, regs, a.Stats().MovesInserted(), a.Stats().MovesCoalesced)
			return nil
		})
	}
	return g.Wait()
}
