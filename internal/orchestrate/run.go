package orchestrate

import "github.com/google/uuid"

// RunID identifies one interprocedural analysis run: the dashboard groups
// its broadcast stream by it, and internal/wpstate uses it as part of the
// cache key so two concurrent runs against the same store don't clobber
// each other's in-flight summaries.
type RunID string

// NewRunID mints a fresh run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}
