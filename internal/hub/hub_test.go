package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, conn *Connection) domain.SessionEvent {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed")
		var event domain.SessionEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.SessionEvent{}
}

func TestPublishReachesSessionWatchers(t *testing.T) {
	h, _ := startHub(t)

	a := h.NewConnection(nil, "s1")
	b := h.NewConnection(nil, "s1")
	other := h.NewConnection(nil, "s2")
	require.True(t, h.Register(a))
	require.True(t, h.Register(b))
	require.True(t, h.Register(other))
	assert.Equal(t, 3, h.ConnectionCount())
	assert.True(t, h.HasWatchers("s1"))

	h.Publish("s1", domain.SessionEvent{Type: domain.SessionEventStarted, SessionID: "s1", Status: domain.SessionStatusActive})

	assert.Equal(t, domain.SessionEventStarted, receive(t, a).Type)
	assert.Equal(t, domain.SessionEventStarted, receive(t, b).Type)
	select {
	case <-other.Send:
		t.Fatal("watcher of another session received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)

	conn := h.NewConnection(nil, "s1")
	require.True(t, h.Register(conn))
	h.Unregister(conn)

	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return !h.HasWatchers("s1") }, time.Second, 5*time.Millisecond)

	// A second unregister is harmless.
	h.Unregister(conn)
}

func TestSlowWatcherIsDropped(t *testing.T) {
	h, _ := startHub(t)

	conn := h.NewConnection(nil, "s1")
	require.True(t, h.Register(conn))
	// Nobody drains conn.Send, so it overflows eventually.
	assert.Eventually(t, func() bool {
		h.Publish("s1", domain.SessionEvent{Type: domain.SessionEventMessage})
		return h.ConnectionCount() == 0
	}, 5*time.Second, time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	h := New(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish("s1", domain.SessionEvent{Type: domain.SessionEventMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}

func TestStopClosesConnections(t *testing.T) {
	h, cancel := startHub(t)

	conn := h.NewConnection(nil, "s1")
	require.True(t, h.Register(conn))
	cancel()

	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.False(t, h.Register(h.NewConnection(nil, "s1")))
	h.Unregister(conn)
}
