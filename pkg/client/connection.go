package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

const (
	sendChSize   = 256
	ackChSize    = 16
	maxReconnect = 10
	writeWait    = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine per
// dialed socket, and redials with exponential backoff when the socket fails.
type connection struct {
	mu           sync.Mutex
	conn         *ws.Conn
	stop         chan struct{} // closed when the loops of conn must exit
	closed       bool
	reconnecting bool

	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown

	url         string
	dialer      *ws.Dialer
	backoff     time.Duration
	maxBackoff  time.Duration
	onMessage   func(streaming.Envelope)
	onReconnect func()

	logger *slog.Logger
}

func newConnection(url string, logger *slog.Logger) *connection {
	return &connection{
		sendCh:     make(chan []byte, sendChSize),
		ackCh:      make(chan streaming.AckMessage, ackChSize),
		done:       make(chan struct{}),
		url:        url,
		dialer:     ws.DefaultDialer,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
		logger:     logger,
	}
}

// dial connects to the server and starts the read/write loops.
func (c *connection) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.start(conn)
	return nil
}

func (c *connection) start(conn *ws.Conn) {
	stop := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)
}

// fail retires conn and schedules a reconnect. Only the first failure of a
// socket has an effect.
func (c *connection) fail(conn *ws.Conn, stop chan struct{}, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(stop)
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn("WebSocket connection lost", "error", err)
	go c.reconnect()
}

// writeLoop drains sendCh and writes messages to conn until it fails or is retired.
func (c *connection) writeLoop(conn *ws.Conn, stop chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.fail(conn, stop, err)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.fail(conn, stop, err)
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and everything else to onMessage.
func (c *connection) readLoop(conn *ws.Conn, stop chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.fail(conn, stop, err)
			return
		}

		env, err := streaming.Unmarshal(message)
		if err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message), "error", err)
			continue
		}

		if env.Type == streaming.TypeAck {
			var ack streaming.AckMessage
			if err := json.Unmarshal(message, &ack); err != nil {
				continue
			}
			select {
			case c.ackCh <- ack:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
			continue
		}

		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. The
// server answers every new connection with a full sync, so nothing is replayed.
func (c *connection) reconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	if c.onReconnect != nil {
		c.onReconnect()
	}

	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}

		c.start(conn)
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send pushes data to the write loop. Non-blocking; false if the channel is full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return false
	}
}

// sendAndWait sends data and blocks until the server acknowledges with a
// matching ack message or ctx is done.
func (c *connection) sendAndWait(ctx context.Context, data []byte, ackFor string) error {
	if !c.send(data) {
		return ErrSendQueueFull
	}

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
			// Not our ack, keep waiting.
		case <-ctx.Done():
			return fmt.Errorf("waiting for ack of %q: %w", ackFor, ctx.Err())
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// connected reports whether a socket is currently up.
func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
