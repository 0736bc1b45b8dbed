// Package worker runs the periodic loops of the server: publishing staged
// marker updates and persisting marker snapshots.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/interactive-markers/internal/registry"
	"github.com/OCAP2/interactive-markers/internal/storage"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

// StatsWriter records published batches, e.g. to InfluxDB.
type StatsWriter interface {
	WriteBatch(ctx context.Context, batch core.UpdateBatch, took time.Duration, publishErr error) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Registry *registry.Registry
	Stats    StatsWriter // optional
	Logger   *slog.Logger
}

// Manager manages worker goroutines
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu               sync.Mutex
	savedSeq         uint64
	saved            bool
	lastSaveDuration time.Duration
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Restore loads the stored snapshot into the registry.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	markers, err := m.backend.LoadMarkers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if err := m.deps.Registry.Restore(markers); err != nil {
		return 0, fmt.Errorf("restore snapshot: %w", err)
	}
	m.deps.Logger.Info("Restored markers", "count", len(markers))
	return len(markers), nil
}

// PublishOnce publishes whatever is staged and records non-empty batches.
func (m *Manager) PublishOnce(ctx context.Context) (core.UpdateBatch, error) {
	start := time.Now()
	batch, err := m.deps.Registry.Publish(ctx)
	took := time.Since(start)

	if batch.Len() > 0 && m.deps.Stats != nil {
		if statsErr := m.deps.Stats.WriteBatch(ctx, batch, took, err); statsErr != nil {
			m.deps.Logger.Debug("Failed to record publish stats", "seq", batch.Seq, "error", statsErr)
		}
	}
	return batch, err
}

// RunPublisher publishes every interval until ctx is done. Transport
// failures are logged; the registry stays usable.
func (m *Manager) RunPublisher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.deps.Logger.Debug("Starting publish loop", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.PublishOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.deps.Logger.Warn("Publish failed", "error", err)
			}
		}
	}
}

// SaveSnapshot writes the current markers to the storage backend.
func (m *Manager) SaveSnapshot(ctx context.Context) error {
	seq := m.deps.Registry.Seq()
	markers := m.deps.Registry.Markers()

	start := time.Now()
	if err := m.backend.SaveMarkers(ctx, markers); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	m.mu.Lock()
	m.savedSeq = seq
	m.saved = true
	m.lastSaveDuration = time.Since(start)
	m.mu.Unlock()
	return nil
}

// saveIfChanged skips the write when nothing was published since the last save.
func (m *Manager) saveIfChanged(ctx context.Context) (bool, error) {
	m.mu.Lock()
	unchanged := m.saved && m.savedSeq == m.deps.Registry.Seq()
	m.mu.Unlock()
	if unchanged {
		return false, nil
	}
	return true, m.SaveSnapshot(ctx)
}

// RunSnapshots saves a snapshot every interval until ctx is done.
func (m *Manager) RunSnapshots(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.deps.Logger.Debug("Starting snapshot loop", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.saveIfChanged(ctx); err != nil {
				m.deps.Logger.Error("Snapshot failed", "error", err)
			}
		}
	}
}

// GetLastSaveDuration returns the duration of the last snapshot write.
func (m *Manager) GetLastSaveDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaveDuration
}
