// Package errors provides two error taxonomies: input malformation (an
// assertion-style failure carrying a CFG locator) and transformation
// inapplicability (a plain error return that leaves the CFG unmodified).
// Modeled on a typed-kind-plus-location-plus-fluent-builders shape,
// repurposed here for CFG/IR locators instead of source file/line/column.
package errors

import "fmt"

// Kind distinguishes input malformation from transformation
// inapplicability, plus the analysis-level Unresolved case that degrades
// a domain value to top instead of failing.
type Kind string

const (
	// Malformed marks a violated structural invariant: unreachable
	// try-end, a use without a reaching def, an invalid move-result
	// position. The core asserts these at every structural boundary;
	// callers should treat them as unrecoverable.
	Malformed Kind = "Malformed"
	// Inapplicable marks an attempted operation that doesn't apply given
	// the current state (get_constant_value on a non-constant register,
	// inserting after a terminator with no successor path). Surfaced as a
	// normal error return; the CFG is left unmodified.
	Inapplicable Kind = "Inapplicable"
	// Unresolved marks an analysis-level gap (a missing method in
	// override resolution, an unresolved field) that degrades the
	// relevant abstract value to top rather than failing outright.
	Unresolved Kind = "Unresolved"
)

// Locator pins an error to the place in the CFG it was raised, matching
// the "diagnostic that includes the offending block id".
type Locator struct {
	Method string
	Block  int
	Item   string
}

func (l Locator) String() string {
	if l.Method == "" && l.Block == 0 && l.Item == "" {
		return ""
	}
	return fmt.Sprintf("method=%s block=%d %s", l.Method, l.Block, l.Item)
}

// CoreError is the error type every package in this module raises.
type CoreError struct {
	Kind     Kind
	Message  string
	At       Locator
	CFGDump  string // text dump of the offending CFG, for Malformed errors
	Wrapped  error
}

func (e *CoreError) Error() string {
	loc := e.At.String()
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, loc)
}

func (e *CoreError) Unwrap() error { return e.Wrapped }

// WithDump attaches a text dump of the CFG for post-mortem diagnostics.
func (e *CoreError) WithDump(dump string) *CoreError {
	e.CFGDump = dump
	return e
}

func Malformedf(at Locator, format string, args ...any) *CoreError {
	return &CoreError{Kind: Malformed, Message: fmt.Sprintf(format, args...), At: at}
}

func Inapplicablef(at Locator, format string, args ...any) *CoreError {
	return &CoreError{Kind: Inapplicable, Message: fmt.Sprintf(format, args...), At: at}
}

func Unresolvedf(at Locator, format string, args ...any) *CoreError {
	return &CoreError{Kind: Unresolved, Message: fmt.Sprintf(format, args...), At: at}
}

// Wrap attaches a locator and kind to an arbitrary error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, at Locator, err error) *CoreError {
	return &CoreError{Kind: kind, Message: err.Error(), At: at, Wrapped: err}
}

// IsKind reports whether err (or anything it wraps) is a CoreError of kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		ce, ok := err.(*CoreError)
		if !ok {
			return false
		}
		if ce.Kind == kind {
			return true
		}
		err = ce.Wrapped
	}
	return false
}
