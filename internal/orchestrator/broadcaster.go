package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// progressEvent is one message sent to every attached observer.
type progressEvent struct {
	Pct int    `json:"pct"`
	Msg string `json:"msg"`
}

// ProgressBroadcaster fans a running sync's progress out to any WebSocket
// clients attached to Handler, so an external UI shell can observe a
// long-running watch-mode process without polling. It does not print;
// callers that also want stdout output chain their own callback with Func.
type ProgressBroadcaster struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewProgressBroadcaster creates an empty broadcaster.
func NewProgressBroadcaster(logger *slog.Logger) *ProgressBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	return &ProgressBroadcaster{logger: logger, clients: make(map[*websocket.Conn]struct{})}
}

// Func returns a ProgressFunc suitable for Orchestrator.Synchronize that
// broadcasts every call to all attached clients.
func (b *ProgressBroadcaster) Func() ProgressFunc {
	return func(pct int, msg string) {
		b.broadcast(progressEvent{Pct: pct, Msg: msg})
	}
}

func (b *ProgressBroadcaster) broadcast(ev progressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("progress broadcast: marshal failed", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		if err := conn.Write(context.Background(), websocket.MessageText, payload); err != nil {
			b.logger.Debug("progress broadcast: client write failed, dropping", slog.String("error", err.Error()))
			delete(b.clients, conn)

			go conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them as progress observers until they disconnect.
func (b *ProgressBroadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			b.logger.Warn("progress websocket accept failed", slog.String("error", err.Error()))
			return
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
		}()

		// The connection is write-only from the server's perspective; block
		// here reading (and discarding) until the client disconnects, so the
		// handler doesn't return and tear the connection down immediately.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
