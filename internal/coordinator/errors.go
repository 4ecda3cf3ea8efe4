package coordinator

import "fmt"

// PreconditionError reports a stage run attempted out of order (spec.md §7's
// "Precondition/stage-gate error": fatal, "indicates programmer or user
// misuse (running PUSH before FETCH finished)").
type PreconditionError struct {
	Stage    string
	Required string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s to have finished first", e.Stage, e.Required)
}
