package commands

import (
	"context"
	"fmt"
	"net/http"

	"dexopt/internal/config"
	"dexopt/internal/orchestrate"
	"dexopt/internal/regalloc"
)

// ServeCommand runs the full pipeline over the fixture methods while
// exposing a live websocket feed of the running totals, for a browser (or
// `websocat`) client to watch in real time.
func ServeCommand(args []string) error {
	cfg := config.Default()
	cfg.DashboardAddr = ":8089"
	for _, a := range args {
		if a != "" {
			cfg.DashboardAddr = a
		}
	}

	pool := orchestrate.NewPool(cfg)
	dash := orchestrate.NewDashboard()

	mux := http.NewServeMux()
	mux.Handle("/ws", dash)

	srv := &http.Server{Addr: cfg.DashboardAddr, Handler: mux}
	go func() {
		orchestrate.Log().Infof("dashboard listening on %s", cfg.DashboardAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			orchestrate.Log().Errorf("dashboard server: %s", err)
		}
	}()
	defer srv.Close()

	ctx := context.Background()
	methods := methodsFromGraphs(FixtureGraphs())

	if err := pool.RunLocalConstProp(ctx, methods); err != nil {
		return fmt.Errorf("serve: local constprop: %w", err)
	}
	dash.Broadcast(orchestrate.SnapshotFrom(pool.Run, "constprop", pool))

	if err := pool.RunRegAlloc(ctx, methods, regalloc.DefaultConfig()); err != nil {
		return fmt.Errorf("serve: regalloc: %w", err)
	}
	dash.Broadcast(orchestrate.SnapshotFrom(pool.Run, "regalloc", pool))

	fmt.Printf("run %s complete; dashboard was reachable at ws://%s/ws\n", pool.Run, cfg.DashboardAddr)
	return nil
}
