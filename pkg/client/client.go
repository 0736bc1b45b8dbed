// Package client subscribes to an interactive marker server over WebSocket
// and keeps a local replica of its markers.
//
// The replica follows the server's sequencing rule: updates are ignored until
// the first full_sync arrives, and afterwards only a batch whose seq directly
// follows the replica's is applied. Anything else triggers a resync.
package client

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OCAP2/interactive-markers/pkg/core"
	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

var (
	// ErrSendQueueFull is returned when an outbound message had to be dropped.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrNotConnected is returned when a message is sent while the socket is down.
	ErrNotConnected = errors.New("not connected")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBackoff sets the initial and maximum delay between reconnect attempts.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff = initial
		c.maxBackoff = maxDelay
	}
}

// OnBatch registers fn to be called after every batch the replica applied.
// It runs on the read goroutine without any client lock held.
func OnBatch(fn func(core.UpdateBatch)) Option {
	return func(c *Client) {
		c.onBatch = fn
	}
}

// Client is a subscriber of one marker server.
type Client struct {
	conn *connection

	mu      sync.RWMutex
	markers map[string]core.Marker
	seq     uint64
	synced  bool

	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
	onBatch    func(core.UpdateBatch)
}

func newClient(url string, opts ...Option) *Client {
	c := &Client{
		markers: make(map[string]core.Marker),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.conn = newConnection(url, c.logger)
	if c.backoff > 0 {
		c.conn.backoff = c.backoff
	}
	if c.maxBackoff > 0 {
		c.conn.maxBackoff = c.maxBackoff
	}
	c.conn.onMessage = c.handle
	c.conn.onReconnect = c.desync
	return c
}

// Dial connects to the server's WebSocket endpoint, for example
// ws://localhost:8080/imarkers/ws. The server sends a full sync right away;
// use Synced or OnBatch to learn when it was applied.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	c := newClient(url, opts...)
	if err := c.conn.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) handle(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeUpdate, streaming.TypeFullSync:
		batch, err := streaming.DecodeBatch(env)
		if err != nil {
			c.logger.Debug("Dropping undecodable batch", "error", err)
			return
		}
		batch.FullSync = env.Type == streaming.TypeFullSync
		if c.apply(batch) && c.onBatch != nil {
			c.onBatch(batch)
		}
	case streaming.TypeError:
		c.logger.Warn("Server rejected message", "payload", string(env.Payload))
	default:
		c.logger.Debug("Ignoring message", "type", env.Type)
	}
}

// apply merges batch into the replica and reports whether it was applied.
func (c *Client) apply(batch core.UpdateBatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if batch.FullSync {
		c.markers = make(map[string]core.Marker, len(batch.Updates))
		for _, u := range batch.Updates {
			if u.Marker != nil {
				c.markers[u.Name] = u.Marker.Clone()
			}
		}
		c.seq = batch.Seq
		c.synced = true
		return true
	}

	if !c.synced || batch.Seq <= c.seq {
		return false
	}
	if batch.Seq != c.seq+1 {
		c.logger.Warn("Update sequence gap, requesting resync", "have", c.seq, "got", batch.Seq)
		c.synced = false
		c.requestResync()
		return false
	}

	for _, u := range batch.Updates {
		switch u.Kind {
		case core.UpdateInsert, core.UpdateFull:
			if u.Marker != nil {
				c.markers[u.Name] = u.Marker.Clone()
			}
		case core.UpdatePose:
			m, ok := c.markers[u.Name]
			if !ok || u.Pose == nil {
				continue
			}
			m.Pose = *u.Pose
			if u.Header != nil {
				m.Header = *u.Header
			}
			c.markers[u.Name] = m
		case core.UpdateErase:
			delete(c.markers, u.Name)
		}
	}
	c.seq = batch.Seq
	return true
}

func (c *Client) desync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = false
}

func (c *Client) requestResync() bool {
	data, err := streaming.Marshal(streaming.TypeResync, nil)
	if err != nil {
		return false
	}
	return c.conn.send(data)
}

// Resync asks the server for a new full sync.
func (c *Client) Resync() error {
	if !c.conn.connected() {
		return ErrNotConnected
	}
	if !c.requestResync() {
		return ErrSendQueueFull
	}
	return nil
}

// SendFeedback reports a user interaction. The server fills in the client id.
func (c *Client) SendFeedback(fb core.Feedback) error {
	if !c.conn.connected() {
		return ErrNotConnected
	}
	data, err := streaming.Marshal(streaming.TypeFeedback, fb)
	if err != nil {
		return err
	}
	if !c.conn.send(data) {
		return ErrSendQueueFull
	}
	return nil
}

// KeepAlive sends a keep_alive message and waits for the server's ack.
func (c *Client) KeepAlive(ctx context.Context) error {
	if !c.conn.connected() {
		return ErrNotConnected
	}
	data, err := streaming.Marshal(streaming.TypeKeepAlive, nil)
	if err != nil {
		return err
	}
	return c.conn.sendAndWait(ctx, data, streaming.TypeKeepAlive)
}

// Get returns a copy of one replicated marker.
func (c *Client) Get(name string) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[name]
	if !ok {
		return core.Marker{}, false
	}
	return m.Clone(), true
}

// Markers returns copies of all replicated markers ordered by name.
func (c *Client) Markers() []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Marker, 0, len(c.markers))
	for _, m := range c.markers {
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b core.Marker) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Seq returns the seq of the last applied batch.
func (c *Client) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Synced reports whether the replica reflects a full sync from the current connection.
func (c *Client) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Close disconnects from the server.
func (c *Client) Close() error {
	return c.conn.close()
}
