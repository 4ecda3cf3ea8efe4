package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// getRedisClient returns a client for a local Redis instance, skipping the
// test if one isn't reachable.
func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available, skipping")
	}
	return client
}

type recordingObserver struct {
	majors []string
}

func (r *recordingObserver) Major(message string, length int) { r.majors = append(r.majors, message) }
func (r *recordingObserver) Minor(int, string, int)            {}
func (r *recordingObserver) Detail(int, string)                {}
func (r *recordingObserver) Debug(string, int)                 {}
func (r *recordingObserver) ReportError(error, ErrorContext) Decision {
	return Continue
}

func TestRedisObserver_PublishesAndDelegates(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	channel := "journal-migrator-test"
	sub := client.Subscribe(context.Background(), channel)
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	next := &recordingObserver{}
	observer := NewRedisObserver(client, channel, next)

	msgCh := sub.Channel()

	observer.Major("fetching journals", 10)

	select {
	case msg := <-msgCh:
		var decoded event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		require.Equal(t, "major", decoded.Kind)
		require.Equal(t, "fetching journals", decoded.Message)
		require.Equal(t, 10, decoded.Length)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}

	require.Equal(t, []string{"fetching journals"}, next.majors)
}
