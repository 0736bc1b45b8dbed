// Package gormstorage implements the storage.Backend interface on top of GORM.
// It serves both the SQLite and the Postgres configurations; the dialect is
// chosen by the database.Manager handed to New.
package gormstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/interactive-markers/internal/database"
	"github.com/OCAP2/interactive-markers/internal/model"
	"github.com/OCAP2/interactive-markers/internal/model/convert"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

const createBatchSize = 500

// Backend persists marker snapshots in the interactive_markers table.
type Backend struct {
	manager   *database.Manager
	namespace string
	log       zerolog.Logger
}

// New creates a GORM backend over a connected manager.
func New(manager *database.Manager, namespace string) *Backend {
	return &Backend{
		manager:   manager,
		namespace: namespace,
		log:       manager.Logger,
	}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	return b.manager.Setup(b.namespace)
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.manager.Close()
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.manager.DB
}

// SaveMarkers replaces every stored row with markers in one transaction.
func (b *Backend) SaveMarkers(ctx context.Context, markers []core.Marker) error {
	if !b.manager.IsValid {
		return fmt.Errorf("db not valid, not saving")
	}

	records := make([]model.Marker, 0, len(markers))
	for _, m := range markers {
		rec, err := convert.MarkerToModel(m)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	start := time.Now()
	err := b.manager.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Marker{}).Error; err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, createBatchSize).Error; err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.log.Debug().Int("markers", len(records)).Dur("duration", time.Since(start)).Msg("Saved marker snapshot")
	return nil
}

// LoadMarkers reads the stored snapshot ordered by name.
func (b *Backend) LoadMarkers(ctx context.Context) ([]core.Marker, error) {
	if !b.manager.IsValid {
		return nil, fmt.Errorf("db not valid, not loading")
	}

	var records []model.Marker
	if err := b.manager.DB.WithContext(ctx).Order("name").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	markers := make([]core.Marker, 0, len(records))
	for _, rec := range records {
		m, err := convert.MarkerToCore(rec)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, nil
}
