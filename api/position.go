package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nwah/tripplanner/position"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePositionStream accepts position.Message frames from a client and
// publishes them to the session's feed. Tracking consumes the feed while it
// is enabled; frames arriving when it is not are dropped.
func (s *Sessions) handlePositionStream(w http.ResponseWriter, r *http.Request, e *entry) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("position upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg position.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("position stream closed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev := msg.Event()
		if ev.Err != nil {
			e.feed.Fail(ev.Err)
			continue
		}
		e.feed.Publish(ev.Fix)
	}
}
