package ricod

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rico/core/events"
	"rico/core/types"
)

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestEventHubBacklogAndCursor(t *testing.T) {
	hub := NewEventHub()
	for i := uint64(1); i <= 3; i++ {
		hub.publish(&types.Event{Type: "sale.test", Tick: i, Attributes: map[string]string{"n": "x"}})
	}

	_, cancel, backlog := hub.Subscribe(context.Background(), "")
	require.Len(t, backlog, 3)
	require.Equal(t, "1", backlog[0].Cursor)
	cancel()

	_, cancel, backlog = hub.Subscribe(context.Background(), "2")
	require.Len(t, backlog, 1)
	require.Equal(t, uint64(3), backlog[0].Tick)
	cancel()

	// Backlog entries are copies.
	backlog[0].Attributes["n"] = "mutated"
	_, cancel, again := hub.Subscribe(context.Background(), "2")
	require.Equal(t, "x", again[0].Attributes["n"])
	cancel()
}

func TestEventHubLiveUpdates(t *testing.T) {
	hub := NewEventHub()
	ctx, stop := context.WithCancel(context.Background())
	updates, _, backlog := hub.Subscribe(ctx, "")
	require.Empty(t, backlog)

	hub.publish(&types.Event{Type: "sale.test", Tick: 7})
	select {
	case update := <-updates:
		require.Equal(t, uint64(1), update.Sequence)
		require.Equal(t, uint64(7), update.Tick)
	case <-time.After(time.Second):
		t.Fatal("update not delivered")
	}

	stop()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-updates:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestEventHubNeverBlocksAndTrimsHistory(t *testing.T) {
	hub := NewEventHub()
	_, cancel, _ := hub.Subscribe(context.Background(), "")
	defer cancel()

	for i := 0; i < streamHistoryLimit+10; i++ {
		hub.publish(&types.Event{Type: "sale.test", Tick: uint64(i)})
	}
	_, cancelAll, backlog := hub.Subscribe(context.Background(), "")
	defer cancelAll()
	require.Len(t, backlog, streamHistoryLimit)
	require.Equal(t, uint64(11), backlog[0].Sequence)
}

func TestEventHubIgnoresEventsWithoutPayload(t *testing.T) {
	hub := NewEventHub()
	var emitter events.Emitter = hub
	emitter.Emit(plainEvent{})
	_, cancel, backlog := hub.Subscribe(context.Background(), "")
	defer cancel()
	require.Empty(t, backlog)
}
