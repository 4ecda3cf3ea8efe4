// Package progress defines the observer contract of spec.md §4.7: three
// levels of progress notification plus debug/error reporting, with the
// continue/abort decision on error delegated to the observer. The exact
// rendering is explicitly out of scope (spec.md §1); this package ships a
// Null implementation, a logrus-based CLI implementation, and an optional
// Redis-backed fan-out decorator for remote dashboards (SPEC_FULL.md).
package progress

// Decision is an observer's response to a reported error (spec.md §4.7).
type Decision int

const (
	// Continue proceeds with the next sibling item.
	Continue Decision = iota
	// Abort unwinds the current stage.
	Abort
)

// ErrorContext carries everything the observer needs to judge an error,
// per the Error-context carrier Design Note: "an explicit error value that
// carries context, rather than mutable global state."
type ErrorContext struct {
	Server          string
	URL             string
	DestinationFile string
	Stage           string
	NodeType        string
	SourceRecordKey string
}

// Observer is the capability set the walker and stage engine report
// progress and errors through (spec.md §4.7).
type Observer interface {
	// Major reports entry into a new top-level resource type; length is the
	// number of items expected, when known (0 if not).
	Major(message string, length int)
	// Minor reports progress through the items of one type; current is a
	// 1-based index into length.
	Minor(current int, message string, length int)
	// Detail reports finer-grained progress below the per-instance level.
	Detail(current int, message string)
	// Debug reports a diagnostic message at the given verbosity level.
	Debug(message string, level int)
	// ReportError surfaces a non-fatal error (transport or server response
	// errors, per spec.md §7) and returns the caller's continue/abort
	// decision.
	ReportError(err error, errCtx ErrorContext) Decision
}
