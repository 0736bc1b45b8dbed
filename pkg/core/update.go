// pkg/core/update.go
package core

// UpdateKind tags a PendingUpdate.
type UpdateKind string

const (
	UpdateInsert UpdateKind = "insert"
	UpdatePose   UpdateKind = "pose"
	UpdateFull   UpdateKind = "full"
	UpdateErase  UpdateKind = "erase"
)

// PendingUpdate is the net change of one marker within a publish cycle.
//
// Insert and Full carry the complete marker, Pose carries only the pose and
// its header, Erase carries only the name.
type PendingUpdate struct {
	Kind   UpdateKind `json:"kind"`
	Name   string     `json:"name"`
	Marker *Marker    `json:"marker,omitempty"`
	Pose   *Pose      `json:"pose,omitempty"`
	Header *Header    `json:"header,omitempty"`
}

// UpdateBatch is the unit of outbound synchronization.
type UpdateBatch struct {
	Seq      uint64          `json:"seq"`
	FullSync bool            `json:"fullSync"`
	Updates  []PendingUpdate `json:"updates"`
}

// Len returns the number of updates in the batch.
func (b UpdateBatch) Len() int {
	return len(b.Updates)
}

// Empty reports whether the batch carries no updates.
func (b UpdateBatch) Empty() bool {
	return len(b.Updates) == 0
}

// Names returns the marker names touched by the batch, in batch order.
func (b UpdateBatch) Names() []string {
	names := make([]string, 0, len(b.Updates))
	for _, u := range b.Updates {
		names = append(names, u.Name)
	}
	return names
}

// Markers returns the full markers carried by insert and full updates.
func (b UpdateBatch) Markers() []Marker {
	out := make([]Marker, 0, len(b.Updates))
	for _, u := range b.Updates {
		if u.Marker != nil {
			out = append(out, *u.Marker)
		}
	}
	return out
}
