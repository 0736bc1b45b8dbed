// Package registry is the single writer of interactive marker state.
//
// Mutations apply to the marker store immediately and are staged in a
// pending log. Publish drains the log into one sequenced UpdateBatch, folds it
// into the published view and hands it to the transport. FullSync answers a
// new subscriber from the published view, never from staged state. Both hold
// the same ordering lock, so a client that received a full sync tagged with
// seq S only needs the incremental batches after S.
//
// Lock order is sendMu, then mu. Transport I/O happens under sendMu only and
// feedback callbacks run with no lock held, so a callback may call back into
// the Registry.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/interactive-markers/internal/pending"
	"github.com/OCAP2/interactive-markers/internal/store"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

// Transport delivers update batches to subscribers.
type Transport interface {
	Broadcast(ctx context.Context, batch core.UpdateBatch) error
	SendTo(ctx context.Context, clientID string, batch core.UpdateBatch) error
}

// FeedbackInfo records when and from whom a marker last received feedback.
type FeedbackInfo = store.FeedbackInfo

// Option configures a Registry.
type Option func(*Registry)

// WithTransport sets the transport batches are published to.
func WithTransport(t Transport) Option {
	return func(r *Registry) {
		r.transport = t
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the time source used for feedback bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry owns the marker store and the pending update log.
type Registry struct {
	mu        sync.RWMutex
	store     *store.Store
	log       *pending.Log
	published *publishedView
	seq       atomic.Uint64 // written under mu

	sendMu    sync.Mutex
	transport Transport

	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics
}

// New creates an empty Registry.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		store:     store.New(),
		log:       pending.New(),
		published: newPublishedView(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	m, err := newMetrics(r)
	if err != nil {
		return nil, err
	}
	r.metrics = m
	return r, nil
}

// SetTransport replaces the transport. It waits for an in-flight publish.
func (r *Registry) SetTransport(t Transport) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.transport = t
}

// Insert adds a marker or fully replaces the marker of the same name.
func (r *Registry) Insert(m core.Marker) error {
	if m.Name == "" {
		return ErrInvalidMarker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(m)
	return nil
}

// InsertWithCallback inserts m and registers fn for its feedback in one step.
func (r *Registry) InsertWithCallback(m core.Marker, fn core.FeedbackFunc, opts ...CallbackOption) error {
	if m.Name == "" {
		return ErrInvalidMarker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(m)
	return r.store.SetCallback(m.Name, callbackKey(opts), fn)
}

func (r *Registry) insertLocked(m core.Marker) {
	stored, replaced := r.store.Insert(m)
	if replaced {
		r.log.Full(stored)
		return
	}
	r.log.Insert(stored)
}

// SetFull replaces every field of an existing marker.
func (r *Registry) SetFull(m core.Marker) error {
	if m.Name == "" {
		return ErrInvalidMarker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.store.Has(m.Name) {
		return fmt.Errorf("set full %q: %w", m.Name, ErrNotFound)
	}
	stored, _ := r.store.Insert(m)
	r.log.Full(stored)
	return nil
}

// SetPose moves an existing marker. A nil header keeps the current one.
func (r *Registry) SetPose(name string, pose core.Pose, header *core.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.store.SetPose(name, pose, header)
	if err != nil {
		return fmt.Errorf("set pose %q: %w", name, err)
	}
	r.log.Pose(m)
	return nil
}

// Erase removes a marker and its callbacks. It reports whether the marker
// existed; erasing an absent marker changes nothing.
func (r *Registry) Erase(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.Erase(name) {
		return false
	}
	r.log.Erase(name)
	return true
}

// Clear erases every marker.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.store.Names() {
		r.log.Erase(name)
	}
	r.store.Clear()
}

// Get returns a snapshot of the named marker, including staged changes.
func (r *Registry) Get(name string) (core.Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Get(name)
}

// Published returns the named marker as subscribers last received it.
func (r *Registry) Published(name string) (core.Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published.get(name)
}

// Size returns the number of markers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Len()
}

// Empty reports whether the registry holds no markers.
func (r *Registry) Empty() bool {
	return r.Size() == 0
}

// Pending returns the number of updates waiting for the next publish.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.log.Len()
}

// Seq returns the sequence number of the last published batch. It does not
// take the registry lock, so log handlers may call it.
func (r *Registry) Seq() uint64 {
	return r.seq.Load()
}

// Markers returns a snapshot of every marker in name order.
func (r *Registry) Markers() []core.Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Marker, 0, r.store.Len())
	for m := range r.store.All() {
		out = append(out, m)
	}
	return out
}

// LastFeedback returns when and from whom the named marker last got feedback.
func (r *Registry) LastFeedback(name string) (FeedbackInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.LastFeedback(name)
}

// Restore loads markers saved by an earlier run as the baseline state: they
// are stored and published at the current seq without staging anything. It is
// meant to run before the registry starts serving subscribers.
func (r *Registry) Restore(markers []core.Marker) error {
	for _, m := range markers {
		if m.Name == "" {
			return fmt.Errorf("restore: %w", ErrInvalidMarker)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range markers {
		stored, _ := r.store.Insert(m)
		r.published.put(stored)
	}
	return nil
}

// Publish sends everything staged since the last publish as one batch.
// With nothing staged it returns an empty batch carrying the current sequence
// number and sends nothing. A failed broadcast is reported as a
// *TransportError; the batch is not re-queued.
func (r *Registry) Publish(ctx context.Context) (core.UpdateBatch, error) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	if r.log.Empty() {
		batch := core.UpdateBatch{Seq: r.seq.Load()}
		r.mu.Unlock()
		return batch, nil
	}
	batch := core.UpdateBatch{Seq: r.seq.Add(1), Updates: r.log.Drain()}
	r.published.apply(r.store, batch.Updates)
	r.mu.Unlock()

	r.metrics.published(ctx, batch)
	if r.transport == nil {
		return batch, nil
	}
	if err := r.transport.Broadcast(ctx, batch); err != nil {
		r.metrics.failed(ctx, "publish")
		te := asTransportError(err)
		r.logger.Warn("publish did not reach every subscriber",
			"seq", batch.Seq, "updates", batch.Len(), "failed", te.Failed, "error", te.Err)
		return batch, te
	}

	r.logger.Debug("published batch", "seq", batch.Seq, "updates", batch.Len())
	return batch, nil
}

// Snapshot returns the published markers as a full sync batch tagged with the
// sequence number of the last publish. Mutations staged since then are not
// included.
func (r *Registry) Snapshot() core.UpdateBatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch := core.UpdateBatch{
		Seq:      r.seq.Load(),
		FullSync: true,
		Updates:  make([]core.PendingUpdate, 0, r.published.len()),
	}
	for m := range r.published.all() {
		batch.Updates = append(batch.Updates, core.PendingUpdate{Kind: core.UpdateInsert, Name: m.Name, Marker: &m})
	}
	return batch
}

// FullSync sends the whole store to one client.
func (r *Registry) FullSync(ctx context.Context, clientID string) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if r.transport == nil {
		return &TransportError{Failed: []string{clientID}, Err: errNoTransport}
	}

	batch := r.Snapshot()
	if err := r.transport.SendTo(ctx, clientID, batch); err != nil {
		r.metrics.failed(ctx, "full_sync")
		te := asTransportError(err)
		if len(te.Failed) == 0 {
			te.Failed = []string{clientID}
		}
		return te
	}

	r.logger.Debug("sent full sync", "client", clientID, "seq", batch.Seq, "markers", batch.Len())
	return nil
}

// ResolveFeedback records feedback against its marker and returns the callback
// that should receive it. Pose feedback moves the marker. Feedback for a
// marker that no longer exists is dropped.
func (r *Registry) ResolveFeedback(fb core.Feedback) (core.FeedbackFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.Touch(fb.MarkerName, fb.ClientID, r.now()) {
		r.metrics.stale(context.Background(), fb.Kind)
		r.logger.Debug("dropping feedback for unknown marker",
			"marker", fb.MarkerName, "client", fb.ClientID, "kind", fb.Kind)
		return nil, false
	}

	if fb.Kind == core.FeedbackPoseUpdate {
		var header *core.Header
		if fb.Header.FrameID != "" {
			h := fb.Header
			header = &h
		}
		if m, err := r.store.SetPose(fb.MarkerName, fb.Pose, header); err == nil {
			r.log.Pose(m)
		}
	}

	return r.store.Callback(fb.MarkerName, fb.ControlName, fb.Kind)
}
