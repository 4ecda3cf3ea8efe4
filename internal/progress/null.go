package progress

// NullObserver implements Observer as a no-op, for non-interactive runs
// (spec.md §4.7: "Null implementation is provided for non-interactive
// runs."). Every reported error is treated as Continue, matching the
// source's behavior of surfacing errors without ever stopping an
// unattended batch run.
type NullObserver struct{}

// NewNullObserver returns a NullObserver.
func NewNullObserver() *NullObserver {
	return &NullObserver{}
}

func (NullObserver) Major(string, int)      {}
func (NullObserver) Minor(int, string, int) {}
func (NullObserver) Detail(int, string)     {}
func (NullObserver) Debug(string, int)      {}

func (NullObserver) ReportError(error, ErrorContext) Decision {
	return Continue
}

var _ Observer = NullObserver{}
