package statusserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Kind: "major", Message: "journals", Length: 3})

	select {
	case e := <-ch:
		assert.Equal(t, "major", e.Kind)
		assert.Equal(t, "journals", e.Message)
	default:
		t.Fatal("expected event, got none")
	}
}

func TestHub_SnapshotReturnsLatestPerKind(t *testing.T) {
	hub := NewHub()
	hub.Publish(Event{Kind: "major", Message: "journals"})
	hub.Publish(Event{Kind: "major", Message: "roles"})
	hub.Publish(Event{Kind: "error", Err: "boom"})

	snap := hub.Snapshot()
	require.Contains(t, snap, "major")
	assert.Equal(t, "roles", snap["major"].Message)
	require.Contains(t, snap, "error")
	assert.Equal(t, "boom", snap["error"].Err)
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()

	hub.Publish(Event{Kind: "major", Message: "journals"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}
