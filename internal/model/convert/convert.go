// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/interactive-markers/internal/model"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

// MarkerToModel converts a core.Marker to its persisted form.
func MarkerToModel(m core.Marker) (model.Marker, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return model.Marker{}, fmt.Errorf("marshal marker %q: %w", m.Name, err)
	}
	return model.Marker{
		Name:    m.Name,
		Seq:     m.Seq,
		FrameID: m.Header.FrameID,
		Data:    data,
	}, nil
}

// MarkerToCore converts a persisted marker back to a core.Marker.
// The Name column wins over the name inside the document.
func MarkerToCore(rec model.Marker) (core.Marker, error) {
	var m core.Marker
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &m); err != nil {
			return core.Marker{}, fmt.Errorf("unmarshal marker %q: %w", rec.Name, err)
		}
	}
	m.Name = rec.Name
	return m, nil
}
