package walker

import (
	"fmt"

	"github.com/a5c-ai/hub/internal/progress"
)

// TransportError wraps a connector-level failure (socket, DNS, TLS — spec.md
// §7's "Server transport error"). Default handlers in internal/stage return
// this instead of the bare connector error so the walker can tell it apart
// from a fatal workspace failure.
type TransportError struct {
	Err     error
	Context progress.ErrorContext
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError wraps a non-2xx or malformed/empty server response (spec.md
// §7's "Server response error"). Same disposition as TransportError, but
// carries whatever response context the handler captured.
type ResponseError struct {
	Err     error
	Context progress.ErrorContext
}

func (e *ResponseError) Error() string { return "server response error: " + e.Err.Error() }
func (e *ResponseError) Unwrap() error { return e.Err }

// WorkspaceError wraps a workspace I/O failure (spec.md §7: fatal, "the
// workspace is the run's single source of truth and must not be silently
// partial").
type WorkspaceError struct {
	Err error
}

func (e *WorkspaceError) Error() string { return "workspace error: " + e.Err.Error() }
func (e *WorkspaceError) Unwrap() error { return e.Err }

// AbortError is returned when the progress observer answers a reported
// error with Abort (spec.md §7). It unwinds the current stage.
type AbortError struct {
	Stage string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s stage aborted by progress observer", e.Stage)
}
