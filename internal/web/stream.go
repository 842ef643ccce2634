package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/review"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamMessage is one frame on /ws.
type streamMessage struct {
	Type  string        `json:"type"`
	State review.Report `json:"state"`
}

// HandleStream handles GET /ws — pushes a state snapshot on every session change.
// The stream is read-only; client frames are discarded.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	states, cancel := h.machine.Subscribe()
	closed := make(chan struct{})
	go readPump(conn, closed)
	writePump(conn, states, closed)
	cancel()
}

// readPump drains client frames so control frames (pong, close) are processed.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			// Only log if it's not a normal close (code 1000 from navigation)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump sends state snapshots and keepalive pings until either side goes away.
// Snapshots that queue up while a write is in flight collapse to the latest one.
func writePump(conn *websocket.Conn, states <-chan review.State, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			st = latest(st, states)

			payload, err := json.Marshal(streamMessage{Type: "state", State: st.Report()})
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal state")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}

// latest drains whatever is already buffered on states and returns the newest value.
func latest(st review.State, states <-chan review.State) review.State {
	for {
		select {
		case next, ok := <-states:
			if !ok {
				return st
			}
			st = next
		default:
			return st
		}
	}
}
