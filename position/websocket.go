package position

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is the wire form of a position event on a websocket.
// Error is "denied" for a permission refusal, any other text for an
// unavailable fix.
type Message struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Event converts the message, validating the fix
func (m Message) Event() Event {
	switch {
	case m.Error == "denied":
		return Event{Err: ErrPermissionDenied}
	case m.Error != "":
		return Event{Err: fmt.Errorf("%w: %s", ErrUnavailable, m.Error)}
	}
	fix := Fix{Lat: m.Lat, Lon: m.Lon, Accuracy: m.Accuracy, Timestamp: m.Timestamp}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	if err := fix.Validate(); err != nil {
		return Event{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return Event{Fix: fix}
}

const pongWait = 60 * time.Second

// WebSocketSource reads position messages from a websocket endpoint
type WebSocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebSocketSource creates a source that dials url on every Subscribe
func NewWebSocketSource(url string, header http.Header, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// Subscribe dials the endpoint and streams events until ctx is cancelled
// or the connection drops
func (s *WebSocketSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return nil, fmt.Errorf("dial position source: %w", err)
	}

	out := make(chan Event)
	done := make(chan struct{})

	// closing the connection unblocks the reader
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("position stream ended", zap.Error(err))
					select {
					case out <- Event{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}:
					case <-ctx.Done():
					}
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			select {
			case out <- msg.Event():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
