package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"dexopt/internal/config"
	"dexopt/internal/orchestrate"
)

// AnalyzeCommand runs local constant propagation, then the whole-program
// field/return summary, then reports human-readable totals — the
// Transform half of the pipeline, without register allocation.
func AnalyzeCommand(args []string) error {
	cfg := config.Default()

	pool := orchestrate.NewPool(cfg)
	graphs := FixtureGraphs()
	methods := methodsFromGraphs(graphs)

	ctx := context.Background()
	if err := pool.RunLocalConstProp(ctx, methods); err != nil {
		return fmt.Errorf("analyze: local constprop: %w", err)
	}

	clinits, wpMethods := FixtureWholeProgram()
	w := pool.RunWholeProgram(clinits, wpMethods, 3)

	ts := pool.TransformStats()
	fmt.Printf("analyzed %s methods: %s consts folded, %s branches folded, %s puts elided, "+
		"%s targets forwarded, %s instance-of folded, %s npes synthesized, %s field summaries, %s return summaries\n",
		humanize.Comma(int64(len(methods))),
		humanize.Comma(int64(ts.ConstsFolded)),
		humanize.Comma(int64(ts.BranchesFolded)),
		humanize.Comma(int64(ts.PutsElided)),
		humanize.Comma(int64(ts.TargetsForwarded)),
		humanize.Comma(int64(ts.InstanceOfFolded)),
		humanize.Comma(int64(ts.NPEsSynthesized)),
		humanize.Comma(int64(len(w.FieldSummaries()))),
		humanize.Comma(int64(len(w.ReturnSummaries()))),
	)
	return nil
}
