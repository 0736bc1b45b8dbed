package websocket

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	maxMessageSize = 1 << 20
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// subscriber is one connected client with a single write goroutine.
type subscriber struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown

	closeOnce sync.Once

	writeWait time.Duration
	logger    *slog.Logger
}

func newSubscriber(id string, conn *ws.Conn, queueSize int, writeWait time.Duration, logger *slog.Logger) *subscriber {
	return &subscriber{
		id:        id,
		conn:      conn,
		sendCh:    make(chan []byte, queueSize),
		done:      make(chan struct{}),
		writeWait: writeWait,
		logger:    logger.With("client", id),
	}
}

// send pushes data to the write loop. Non-blocking; false when the queue is
// full or the subscriber is shutting down.
func (s *subscriber) send(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.sendCh <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains sendCh and writes messages to the connection. It owns all
// writes and closes the connection on return, which also ends the read loop.
func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(
				ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(s.writeWait),
			)
			return
		case data := <-s.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
				s.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				s.close()
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Warn("WebSocket write error", "error", err)
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				s.logger.Debug("WebSocket ping failed", "error", err)
				s.close()
				return
			}
		}
	}
}

// readLoop hands every inbound message to handle until the connection fails.
func (s *subscriber) readLoop(handle func([]byte)) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					s.logger.Warn("WebSocket read error", "error", err)
				}
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(message)
	}
}

// close stops the write loop, which sends a close frame and closes the connection.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
