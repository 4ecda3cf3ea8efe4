package statusserver

import "github.com/a5c-ai/hub/internal/progress"

// ObservingObserver decorates another progress.Observer, publishing a
// mirror of every notification to a Hub the same way
// internal/progress.RedisObserver fans out to Redis — here the transport
// is an in-process channel fan-out instead of pub/sub, feeding the local
// status server's /status and /ws endpoints.
type ObservingObserver struct {
	next progress.Observer
	hub  *Hub
}

// NewObservingObserver returns an Observer that publishes to hub and
// delegates to next: before delegating for progress notifications, after
// delegating for ReportError, whose published event carries next's decision.
func NewObservingObserver(next progress.Observer, hub *Hub) *ObservingObserver {
	return &ObservingObserver{next: next, hub: hub}
}

func (o *ObservingObserver) Major(message string, length int) {
	o.hub.Publish(Event{Kind: "major", Message: message, Length: length})
	o.next.Major(message, length)
}

func (o *ObservingObserver) Minor(current int, message string, length int) {
	o.hub.Publish(Event{Kind: "minor", Message: message, Current: current, Length: length})
	o.next.Minor(current, message, length)
}

func (o *ObservingObserver) Detail(current int, message string) {
	o.hub.Publish(Event{Kind: "detail", Message: message, Current: current})
	o.next.Detail(current, message)
}

func (o *ObservingObserver) Debug(message string, level int) {
	o.hub.Publish(Event{Kind: "debug", Message: message, Level: level})
	o.next.Debug(message, level)
}

func (o *ObservingObserver) ReportError(err error, errCtx progress.ErrorContext) progress.Decision {
	decision := o.next.ReportError(err, errCtx)
	decisionLabel := "continue"
	if decision == progress.Abort {
		decisionLabel = "abort"
	}
	o.hub.Publish(Event{Kind: "error", Err: err.Error(), Decision: decisionLabel})
	return decision
}

var _ progress.Observer = (*ObservingObserver)(nil)
