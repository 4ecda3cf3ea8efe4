package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// event is the wire shape published to the Redis channel, letting a
// remote dashboard process render the same progress stream a CLI
// observer would print locally.
type event struct {
	Kind     string        `json:"kind"`
	Message  string        `json:"message,omitempty"`
	Current  int           `json:"current,omitempty"`
	Length   int           `json:"length,omitempty"`
	Level    int           `json:"level,omitempty"`
	Err      string        `json:"error,omitempty"`
	ErrCtx   *ErrorContext `json:"error_context,omitempty"`
	Decision string        `json:"decision,omitempty"`
}

// RedisObserver decorates another Observer, fanning out every
// notification as a JSON message on a Redis pub/sub channel (SPEC_FULL.md
// domain stack: "optional pub/sub fan-out of major/minor/detail events for
// a remote dashboard process"). Publish failures never affect the
// underlying transfer; they're swallowed after a best-effort attempt,
// since the dashboard is an observability convenience, not part of the
// transfer's correctness surface.
type RedisObserver struct {
	next    Observer
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisObserver wraps next, publishing a mirror of every notification
// to channel on client.
func NewRedisObserver(client *redis.Client, channel string, next Observer) *RedisObserver {
	return &RedisObserver{next: next, client: client, channel: channel, timeout: 2 * time.Second}
}

func (o *RedisObserver) publish(e event) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	encoded, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = o.client.Publish(ctx, o.channel, encoded).Err()
}

func (o *RedisObserver) Major(message string, length int) {
	o.publish(event{Kind: "major", Message: message, Length: length})
	o.next.Major(message, length)
}

func (o *RedisObserver) Minor(current int, message string, length int) {
	o.publish(event{Kind: "minor", Message: message, Current: current, Length: length})
	o.next.Minor(current, message, length)
}

func (o *RedisObserver) Detail(current int, message string) {
	o.publish(event{Kind: "detail", Message: message, Current: current})
	o.next.Detail(current, message)
}

func (o *RedisObserver) Debug(message string, level int) {
	o.publish(event{Kind: "debug", Message: message, Level: level})
	o.next.Debug(message, level)
}

func (o *RedisObserver) ReportError(err error, errCtx ErrorContext) Decision {
	decision := o.next.ReportError(err, errCtx)

	decisionLabel := "continue"
	if decision == Abort {
		decisionLabel = "abort"
	}
	o.publish(event{Kind: "error", Err: err.Error(), ErrCtx: &errCtx, Decision: decisionLabel})

	return decision
}

var _ Observer = (*RedisObserver)(nil)
