// Package pending accumulates the marker mutations made since the last publish
// and coalesces them to one net update per marker.
package pending

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

type entry struct {
	update core.PendingUpdate

	// existed is true when clients already knew the marker when it was first
	// touched in this cycle. An insert of a marker they never saw cancels out
	// against a later erase.
	existed bool
}

// Log is a coalescing, first-touch ordered set of pending updates keyed by
// marker name. It is not safe for concurrent use.
type Log struct {
	entries *orderedmap.OrderedMap[string, *entry]
}

// New creates an empty Log.
func New() *Log {
	return &Log{entries: orderedmap.New[string, *entry]()}
}

// Insert stages a marker that is new to the store. On first touch clients
// cannot know it; after a pending erase they still hold the old one.
func (l *Log) Insert(m core.Marker) {
	u := core.PendingUpdate{Kind: core.UpdateInsert, Name: m.Name, Marker: &m}
	prev, ok := l.entries.Get(m.Name)
	if !ok {
		l.entries.Set(m.Name, &entry{update: u})
		return
	}
	prev.update = u
}

// Full stages a full replacement of an existing marker.
func (l *Log) Full(m core.Marker) {
	u := core.PendingUpdate{Kind: core.UpdateFull, Name: m.Name, Marker: &m}
	prev, ok := l.entries.Get(m.Name)
	if !ok {
		l.entries.Set(m.Name, &entry{update: u, existed: true})
		return
	}
	switch prev.update.Kind {
	case core.UpdateErase:
		// marker is gone, nothing to update
	case core.UpdateInsert:
		u.Kind = core.UpdateInsert
		prev.update = u
	default:
		prev.update = u
	}
}

// Pose stages a pose change. m is the marker after the change; only its pose
// and header go on the wire unless a full update is already pending, in which
// case that update is patched in place.
func (l *Log) Pose(m core.Marker) {
	pose, header := m.Pose, m.Header
	u := core.PendingUpdate{Kind: core.UpdatePose, Name: m.Name, Pose: &pose, Header: &header}
	prev, ok := l.entries.Get(m.Name)
	if !ok {
		l.entries.Set(m.Name, &entry{update: u, existed: true})
		return
	}
	switch prev.update.Kind {
	case core.UpdateErase:
	case core.UpdateInsert, core.UpdateFull:
		prev.update.Marker = &m
	default:
		prev.update = u
	}
}

// Erase stages removal of a marker. It discards whatever was pending for the
// name; if that was an insert of a marker clients never saw, nothing remains.
func (l *Log) Erase(name string) {
	u := core.PendingUpdate{Kind: core.UpdateErase, Name: name}
	prev, ok := l.entries.Get(name)
	if !ok {
		l.entries.Set(name, &entry{update: u, existed: true})
		return
	}
	if prev.update.Kind == core.UpdateInsert && !prev.existed {
		l.entries.Delete(name)
		return
	}
	prev.update = u
}

// Peek returns the pending update for name.
func (l *Log) Peek(name string) (core.PendingUpdate, bool) {
	e, ok := l.entries.Get(name)
	if !ok {
		return core.PendingUpdate{}, false
	}
	return e.update, true
}

// Len returns the number of pending updates.
func (l *Log) Len() int {
	return l.entries.Len()
}

// Empty reports whether nothing is pending.
func (l *Log) Empty() bool {
	return l.entries.Len() == 0
}

// Drain returns the pending updates in first-touch order and empties the log.
func (l *Log) Drain() []core.PendingUpdate {
	out := make([]core.PendingUpdate, 0, l.entries.Len())
	for pair := l.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.update)
	}
	l.entries = orderedmap.New[string, *entry]()
	return out
}

// Reset drops everything pending.
func (l *Log) Reset() {
	l.entries = orderedmap.New[string, *entry]()
}
