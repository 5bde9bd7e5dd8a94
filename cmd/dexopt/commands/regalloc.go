package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"dexopt/internal/config"
	"dexopt/internal/orchestrate"
	"dexopt/internal/regalloc"
)

// RegallocCommand runs the full interference-graph/coalesce/color/spill
// pipeline over the fixture methods and reports the resulting spill,
// coalesce and reiteration counts.
func RegallocCommand(args []string) error {
	cfg := config.Default()
	for _, a := range args {
		if a == "--split" {
			cfg.UseLiveRangeSplitting = true
		}
	}

	pool := orchestrate.NewPool(cfg)
	methods := methodsFromGraphs(FixtureGraphs())

	rcfg := regalloc.DefaultConfig()
	rcfg.UseLiveRangeSplitting = cfg.UseLiveRangeSplitting

	ctx := context.Background()
	if err := pool.RunRegAlloc(ctx, methods, rcfg); err != nil {
		return fmt.Errorf("regalloc: %w", err)
	}

	stats := pool.RegallocStats()
	fmt.Printf("allocated %s methods: %s spill moves, %s coalesced, %s reiterations, net %s moves inserted\n",
		humanize.Comma(int64(len(methods))),
		humanize.Comma(int64(stats.GlobalSpillMoves+stats.ParamSpillMoves+stats.RangeSpillMoves)),
		humanize.Comma(int64(stats.MovesCoalesced)),
		humanize.Comma(int64(stats.ReiterationCount)),
		humanize.Comma(stats.NetMoves()),
	)
	return nil
}
