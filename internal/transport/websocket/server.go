// Package websocket publishes marker update batches to WebSocket subscribers
// and reads their feedback.
//
// Every subscriber gets a full_sync message when it connects and whenever it
// sends resync. Update messages that arrive before its first full_sync, or
// carry a seq not above the seq of the last full_sync, are already reflected
// in that sync and must be ignored by the client.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/interactive-markers/internal/registry"
	"github.com/OCAP2/interactive-markers/pkg/core"
	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

var (
	// ErrUnknownClient is reported by SendTo for a client that is not connected.
	ErrUnknownClient = errors.New("unknown client")

	// ErrSlowSubscriber is reported for subscribers whose send queue overflowed.
	// They are disconnected and resynchronize on reconnect.
	ErrSlowSubscriber = errors.New("subscriber send queue full")

	// ErrClosed is returned once the server is shut down.
	ErrClosed = errors.New("server closed")
)

// Config holds WebSocket transport configuration.
type Config struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	CheckOrigin   func(r *http.Request) bool
}

const (
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 10 * time.Second
)

// Server accepts subscriber connections and implements registry.Transport.
type Server struct {
	cfg      Config
	upgrader ws.Upgrader
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	onSubscribe   func(clientID string)
	onUnsubscribe func(clientID string)
	onFeedback    func(core.Feedback)
}

var _ registry.Transport = (*Server)(nil)

// New creates a Server. Hooks must be set before it starts serving.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		upgrader:    ws.Upgrader{CheckOrigin: cfg.CheckOrigin},
		logger:      logger,
		subscribers: make(map[string]*subscriber),
	}
}

// OnSubscribe sets the hook run when a client connects or asks for a resync.
// It is expected to send the client a full sync.
func (s *Server) OnSubscribe(fn func(clientID string)) {
	s.onSubscribe = fn
}

// OnUnsubscribe sets the hook run after a client disconnected.
func (s *Server) OnUnsubscribe(fn func(clientID string)) {
	s.onUnsubscribe = fn
}

// OnFeedback sets the hook receiving client feedback. ClientID is always the
// id the server assigned to the connection.
func (s *Server) OnFeedback(fn func(core.Feedback)) {
	s.onFeedback = fn
}

// ServeHTTP upgrades the request and serves the subscriber until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := newSubscriber(uuid.NewString(), conn, s.cfg.SendQueueSize, s.cfg.WriteTimeout, s.logger)
	if !s.add(sub) {
		_ = conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}

	go sub.writeLoop()
	sub.logger.Info("subscriber connected", "remote", r.RemoteAddr)

	// registered before the sync so no publish falls between the two
	if s.onSubscribe != nil {
		s.onSubscribe(sub.id)
	}

	sub.readLoop(func(msg []byte) { s.handleMessage(sub, msg) })

	sub.close()
	s.remove(sub.id)
	sub.logger.Info("subscriber disconnected")
	if s.onUnsubscribe != nil {
		s.onUnsubscribe(sub.id)
	}
}

func (s *Server) handleMessage(sub *subscriber, msg []byte) {
	env, err := streaming.Unmarshal(msg)
	if err != nil {
		s.reject(sub, "", err)
		return
	}

	switch env.Type {
	case streaming.TypeFeedback:
		fb, err := streaming.DecodeFeedback(env)
		if err != nil {
			s.reject(sub, env.Type, err)
			return
		}
		fb.ClientID = sub.id
		if s.onFeedback != nil {
			s.onFeedback(fb)
		}
	case streaming.TypeResync:
		if s.onSubscribe != nil {
			s.onSubscribe(sub.id)
		}
	case streaming.TypeKeepAlive:
		data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
		sub.send(data)
	default:
		s.reject(sub, env.Type, fmt.Errorf("unsupported message type %q", env.Type))
	}
}

func (s *Server) reject(sub *subscriber, msgType string, cause error) {
	sub.logger.Debug("rejected client message", "type", msgType, "error", cause)
	data, err := streaming.Marshal(streaming.TypeError, streaming.ErrorPayload{For: msgType, Message: cause.Error()})
	if err != nil {
		return
	}
	sub.send(data)
}

func (s *Server) add(sub *subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.subscribers[sub.id] = sub
	return true
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// Broadcast queues batch for every subscriber. Subscribers that cannot take
// it are disconnected and reported in a *registry.TransportError.
func (s *Server) Broadcast(ctx context.Context, batch core.UpdateBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := streaming.MarshalBatch(batch)
	if err != nil {
		return err
	}

	var failed []string
	s.mu.RLock()
	for id, sub := range s.subscribers {
		if !sub.send(data) {
			failed = append(failed, id)
			sub.close()
		}
	}
	s.mu.RUnlock()

	if len(failed) == 0 {
		return nil
	}
	slices.Sort(failed)
	s.logger.Warn("dropping slow subscribers", "seq", batch.Seq, "clients", failed)
	return &registry.TransportError{Failed: failed, Err: ErrSlowSubscriber}
}

// SendTo queues batch for one subscriber.
func (s *Server) SendTo(ctx context.Context, clientID string, batch core.UpdateBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	sub, ok := s.subscribers[clientID]
	s.mu.RUnlock()
	if !ok {
		return &registry.TransportError{Failed: []string{clientID}, Err: ErrUnknownClient}
	}

	data, err := streaming.MarshalBatch(batch)
	if err != nil {
		return err
	}
	if !sub.send(data) {
		sub.close()
		return &registry.TransportError{Failed: []string{clientID}, Err: ErrSlowSubscriber}
	}
	return nil
}

// Subscribers returns the ids of the connected clients, sorted.
func (s *Server) Subscribers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Disconnect closes the connection of one subscriber. It reports whether the
// client was connected.
func (s *Server) Disconnect(clientID string) bool {
	s.mu.RLock()
	sub, ok := s.subscribers[clientID]
	s.mu.RUnlock()
	if ok {
		sub.close()
	}
	return ok
}

// Close disconnects every subscriber and refuses new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	for _, sub := range s.subscribers {
		sub.close()
	}
	return nil
}
