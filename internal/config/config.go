// Package config holds the flat, mutable-at-startup option struct every
// pass in this module reads from: a single options struct passed down
// from main rather than package-level globals.
package config

import "time"

// Options is the run-wide configuration for one dexopt invocation.
type Options struct {
	// UseLiveRangeSplitting enables regalloc step 10's intra-block
	// live-range splitting as an alternative to spilling.
	UseLiveRangeSplitting bool

	// WidenAfter is a fixpoint widening threshold: the number of
	// iterations a loop head is allowed before the iterator forces a
	// widen. No analysis in this module reads it; constprop, liverange and
	// regalloc build their iterators with a fixed threshold of 1.
	WidenAfter int

	// WorkerCount bounds how many methods the orchestration pool analyzes
	// concurrently. Zero means runtime.GOMAXPROCS(0).
	WorkerCount int

	// DashboardAddr, if non-empty, is the listen address the `serve`
	// subcommand binds the live pass-statistics websocket to.
	DashboardAddr string

	// StoreDSN is the whole-program-state cache's connection string; its
	// prefix before "://" picks the database/sql driver (see
	// internal/wpstate). Nothing in this module opens a store from it.
	StoreDSN string

	// RunTimeout is a time bound for one interprocedural analysis run. No
	// component in this module reads it; the orchestration pool sets no
	// deadline on its workers.
	RunTimeout time.Duration
}

// Default returns the options every `cmd/dexopt` subcommand starts from.
func Default() Options {
	return Options{
		UseLiveRangeSplitting: false,
		WidenAfter:            2,
		WorkerCount:           0,
		RunTimeout:            5 * time.Minute,
	}
}
