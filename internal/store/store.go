// Package store holds the authoritative marker state of the server.
//
// A Store is not safe for concurrent use. The registry serializes access to
// it; nothing else should hold a reference.
package store

import (
	"errors"
	"iter"
	"time"

	"github.com/google/btree"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

// ErrNotFound is returned when a mutation names a marker the store does not hold.
var ErrNotFound = errors.New("marker not found")

const btreeDegree = 16

// CallbackKey selects which feedback a callback receives. The zero key is the
// marker's default callback.
type CallbackKey struct {
	Control string
	Kind    core.FeedbackKind
}

// FeedbackInfo records the last feedback received for a marker.
type FeedbackInfo struct {
	At       time.Time
	ClientID string
}

type entry struct {
	name      string
	marker    core.Marker
	callbacks map[CallbackKey]core.FeedbackFunc
	feedback  FeedbackInfo
}

func lessByName(a, b *entry) bool {
	return a.name < b.name
}

// Store maps marker names to marker state and feedback callbacks, ordered by name.
type Store struct {
	tree *btree.BTreeG[*entry]
}

// New creates an empty Store.
func New() *Store {
	return &Store{tree: btree.NewG(btreeDegree, lessByName)}
}

func (s *Store) lookup(name string) (*entry, bool) {
	return s.tree.Get(&entry{name: name})
}

// Insert adds m, or replaces the marker of the same name. A replaced marker
// keeps its callbacks and its sequence number keeps counting; a new one starts
// at 1. The stored marker is returned.
func (s *Store) Insert(m core.Marker) (stored core.Marker, replaced bool) {
	m = m.Clone()
	if e, ok := s.lookup(m.Name); ok {
		m.Seq = e.marker.Seq + 1
		e.marker = m
		return m.Clone(), true
	}
	m.Seq = 1
	s.tree.ReplaceOrInsert(&entry{name: m.Name, marker: m})
	return m.Clone(), false
}

// Get returns a copy of the named marker.
func (s *Store) Get(name string) (core.Marker, bool) {
	e, ok := s.lookup(name)
	if !ok {
		return core.Marker{}, false
	}
	return e.marker.Clone(), true
}

// Has reports whether the named marker exists.
func (s *Store) Has(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// Erase removes the named marker with its callbacks. Erasing an absent marker
// is a no-op and returns false.
func (s *Store) Erase(name string) bool {
	_, ok := s.tree.Delete(&entry{name: name})
	return ok
}

// Clear removes all markers.
func (s *Store) Clear() {
	s.tree.Clear(false)
}

// SetPose replaces the pose of the named marker and bumps its sequence number.
// The header is replaced only when one is given.
func (s *Store) SetPose(name string, pose core.Pose, header *core.Header) (core.Marker, error) {
	e, ok := s.lookup(name)
	if !ok {
		return core.Marker{}, ErrNotFound
	}
	e.marker.Pose = pose
	if header != nil {
		e.marker.Header = *header
	}
	e.marker.Seq++
	return e.marker.Clone(), nil
}

// All yields a copy of every marker in name order. The sequence can be ranged
// over more than once; each pass reflects the store at that time.
func (s *Store) All() iter.Seq[core.Marker] {
	return func(yield func(core.Marker) bool) {
		s.tree.Ascend(func(e *entry) bool {
			return yield(e.marker.Clone())
		})
	}
}

// Names returns the marker names in order.
func (s *Store) Names() []string {
	names := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(e *entry) bool {
		names = append(names, e.name)
		return true
	})
	return names
}

// Len returns the number of markers.
func (s *Store) Len() int {
	return s.tree.Len()
}

// SetCallback registers fn for the given key of the named marker. A nil fn
// removes the registration.
func (s *Store) SetCallback(name string, key CallbackKey, fn core.FeedbackFunc) error {
	e, ok := s.lookup(name)
	if !ok {
		return ErrNotFound
	}
	if fn == nil {
		delete(e.callbacks, key)
		return nil
	}
	if e.callbacks == nil {
		e.callbacks = make(map[CallbackKey]core.FeedbackFunc)
	}
	e.callbacks[key] = fn
	return nil
}

// Callback picks the most specific callback registered for feedback on the
// given control and kind: control and kind, then control, then kind, then the
// marker default.
func (s *Store) Callback(name, control string, kind core.FeedbackKind) (core.FeedbackFunc, bool) {
	e, ok := s.lookup(name)
	if !ok || len(e.callbacks) == 0 {
		return nil, false
	}
	keys := make([]CallbackKey, 0, 4)
	if control != "" {
		keys = append(keys, CallbackKey{Control: control, Kind: kind}, CallbackKey{Control: control})
	}
	keys = append(keys, CallbackKey{Kind: kind}, CallbackKey{})
	for _, k := range keys {
		if fn, ok := e.callbacks[k]; ok {
			return fn, true
		}
	}
	return nil, false
}

// Touch records feedback from clientID at the given time.
func (s *Store) Touch(name, clientID string, at time.Time) bool {
	e, ok := s.lookup(name)
	if !ok {
		return false
	}
	e.feedback = FeedbackInfo{At: at, ClientID: clientID}
	return true
}

// LastFeedback returns the last feedback recorded for the named marker.
func (s *Store) LastFeedback(name string) (FeedbackInfo, bool) {
	e, ok := s.lookup(name)
	if !ok {
		return FeedbackInfo{}, false
	}
	return e.feedback, true
}
