// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

// Backend is the interface all snapshot storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// SaveMarkers replaces the stored snapshot with markers.
	SaveMarkers(ctx context.Context, markers []core.Marker) error
	// LoadMarkers returns the last saved snapshot.
	LoadMarkers(ctx context.Context) ([]core.Marker, error)
}
