package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SalehHamed1978UAE/squadbot/internal/metrics"
	"github.com/SalehHamed1978UAE/squadbot/internal/orchestrator"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second

	// Events the observer may fall behind before being disconnected.
	wsEventBuffer = 256
)

// wsSnapshot is the first frame sent on every connection: the full squad
// state, so the observer starts from a consistent baseline before any
// incremental event arrives.
type wsSnapshot struct {
	Type string                 `json:"type"` // "initial_state"
	Data *orchestrator.Snapshot `json:"data"`
}

// Watch handles GET /api/squads/{id}/ws. It upgrades to a websocket,
// sends the initial state snapshot and then forwards squad events in
// order until the client disconnects.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	// Subscribe before reading the snapshot: events applied while the
	// snapshot is built queue in the buffer instead of being missed.
	sub := orch.Subscribe(wsEventBuffer)
	defer sub.Close()

	snap, err := orch.Snapshot(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		// Observers connect from agent tooling on arbitrary hosts.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return
	}
	if err := conn.WriteJSON(wsSnapshot{Type: "initial_state", Data: snap}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					// Subscriber dropped or squad deleted.
					deadline := time.Now().Add(wsWriteTimeout)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"), deadline)
					_ = conn.Close()
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
