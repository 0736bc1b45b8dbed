package registry

import (
	"iter"

	"github.com/google/btree"

	"github.com/OCAP2/interactive-markers/internal/store"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

const publishedDegree = 16

// publishedView is the marker state subscribers have been told about: the
// store as it was at the last publish. Full syncs and queries answer from it,
// so staged mutations stay invisible to clients until they are broadcast.
type publishedView struct {
	tree *btree.BTreeG[core.Marker]
}

func newPublishedView() *publishedView {
	return &publishedView{tree: btree.NewG(publishedDegree, func(a, b core.Marker) bool {
		return a.Name < b.Name
	})}
}

// apply advances the view by one drained batch. Every name the batch touches
// is copied from the store, which holds exactly the batch's net result.
func (v *publishedView) apply(s *store.Store, updates []core.PendingUpdate) {
	for _, u := range updates {
		m, ok := s.Get(u.Name)
		if u.Kind == core.UpdateErase || !ok {
			v.tree.Delete(core.Marker{Name: u.Name})
			continue
		}
		v.tree.ReplaceOrInsert(m)
	}
}

func (v *publishedView) put(m core.Marker) {
	v.tree.ReplaceOrInsert(m.Clone())
}

func (v *publishedView) get(name string) (core.Marker, bool) {
	m, ok := v.tree.Get(core.Marker{Name: name})
	if !ok {
		return core.Marker{}, false
	}
	return m.Clone(), true
}

func (v *publishedView) len() int {
	return v.tree.Len()
}

func (v *publishedView) all() iter.Seq[core.Marker] {
	return func(yield func(core.Marker) bool) {
		v.tree.Ascend(func(m core.Marker) bool {
			return yield(m.Clone())
		})
	}
}
