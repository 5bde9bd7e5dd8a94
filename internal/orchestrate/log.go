// Package orchestrate is the worker pool and run bookkeeping that drives
// the core across many methods at once: a phase-barriered pool (pool.go),
// per-run identifiers for the whole-program-state cache (run.go), and an
// optional live statistics feed (dashboard.go). None of this lives inside
// the analysis packages themselves, keeping the engine free of logging
// concerns and leaving those to whatever drives it.
package orchestrate

import (
	"sync"

	"github.com/tliron/commonlog"
)

var (
	logOnce sync.Once
	logger  commonlog.Logger
)

// Log returns the package-wide structured logger, configuring commonlog on
// first use.
func Log() commonlog.Logger {
	logOnce.Do(func() {
		commonlog.Configure(1, nil)
		logger = commonlog.GetLogger("dexopt.orchestrate")
	})
	return logger
}
