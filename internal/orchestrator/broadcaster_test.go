package orchestrator

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func TestProgressBroadcasterDeliversToAttachedClient(t *testing.T) {
	b := NewProgressBroadcaster(testLogger())

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give Handler a moment to register the connection before broadcasting.
	waitForClient(t, b)

	b.Func()(42, "pushing Customer")

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev progressEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	require.Equal(t, 42, ev.Pct)
	require.Equal(t, "pushing Customer", ev.Msg)
}

func waitForClient(t *testing.T, b *ProgressBroadcaster) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.clients)
		b.mu.Unlock()

		if n > 0 {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("no client registered with broadcaster in time")
}
