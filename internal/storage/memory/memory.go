// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

// Backend keeps the last saved snapshot in process memory. Nothing survives
// a restart.
type Backend struct {
	markers []core.Marker
	saves   int
	mu      sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

// SaveMarkers replaces the held snapshot with a deep copy of markers.
func (b *Backend) SaveMarkers(_ context.Context, markers []core.Marker) error {
	snapshot := make([]core.Marker, len(markers))
	for i, m := range markers {
		snapshot[i] = m.Clone()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.markers = snapshot
	b.saves++
	return nil
}

// LoadMarkers returns a deep copy of the held snapshot.
func (b *Backend) LoadMarkers(_ context.Context) ([]core.Marker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Marker, len(b.markers))
	for i, m := range b.markers {
		out[i] = m.Clone()
	}
	return out, nil
}

// Saves reports how many snapshots have been written.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}
