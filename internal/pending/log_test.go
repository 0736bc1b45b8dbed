package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

func mk(name string, x float64) core.Marker {
	return core.Marker{Name: name, Header: core.Header{FrameID: "base_link"}, Pose: core.NewPose(x, 0, 0)}
}

func kinds(updates []core.PendingUpdate) []core.UpdateKind {
	out := make([]core.UpdateKind, len(updates))
	for i, u := range updates {
		out[i] = u.Kind
	}
	return out
}

func TestFirstTouchOrder(t *testing.T) {
	l := New()
	l.Insert(mk("b", 0))
	l.Insert(mk("a", 0))
	l.Pose(mk("b", 1))
	l.Insert(mk("c", 0))

	got := l.Drain()
	names := make([]string, len(got))
	for i, u := range got {
		names[i] = u.Name
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.True(t, l.Empty())
}

func TestPoseAfterPose_KeepsLatest(t *testing.T) {
	l := New()
	l.Pose(mk("a", 1))
	l.Pose(mk("a", 2))

	got := l.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, core.UpdatePose, got[0].Kind)
	assert.Equal(t, core.NewPose(2, 0, 0), *got[0].Pose)
	assert.Equal(t, "base_link", got[0].Header.FrameID)
	assert.Nil(t, got[0].Marker)
}

func TestPoseAfterFull_PatchesFull(t *testing.T) {
	l := New()
	full := mk("a", 0)
	full.Description = "new menu"
	l.Full(full)

	moved := full
	moved.Pose = core.NewPose(3, 0, 0)
	l.Pose(moved)

	u, ok := l.Peek("a")
	require.True(t, ok)
	assert.Equal(t, core.UpdateFull, u.Kind)
	assert.Equal(t, "new menu", u.Marker.Description)
	assert.Equal(t, core.NewPose(3, 0, 0), u.Marker.Pose)
}

func TestFullAfterPose_Upgrades(t *testing.T) {
	l := New()
	l.Pose(mk("a", 1))
	l.Full(mk("a", 2))

	u, _ := l.Peek("a")
	assert.Equal(t, core.UpdateFull, u.Kind)
	assert.Equal(t, core.NewPose(2, 0, 0), u.Marker.Pose)
}

func TestPoseAfterInsert_StaysInsert(t *testing.T) {
	l := New()
	l.Insert(mk("a", 0))
	l.Pose(mk("a", 4))

	u, _ := l.Peek("a")
	assert.Equal(t, core.UpdateInsert, u.Kind)
	assert.Equal(t, core.NewPose(4, 0, 0), u.Marker.Pose)
}

func TestFullAfterInsert_StaysInsert(t *testing.T) {
	l := New()
	l.Insert(mk("a", 0))
	l.Full(mk("a", 1))

	u, _ := l.Peek("a")
	assert.Equal(t, core.UpdateInsert, u.Kind)
	assert.Equal(t, core.NewPose(1, 0, 0), u.Marker.Pose)
}

func TestEraseWins(t *testing.T) {
	for name, stage := range map[string]func(*Log){
		"pose": func(l *Log) { l.Pose(mk("a", 1)) },
		"full": func(l *Log) { l.Full(mk("a", 1)) },
	} {
		t.Run(name, func(t *testing.T) {
			l := New()
			stage(l)
			l.Erase("a")

			got := l.Drain()
			require.Len(t, got, 1)
			assert.Equal(t, core.UpdateErase, got[0].Kind)
			assert.Nil(t, got[0].Marker)
			assert.Nil(t, got[0].Pose)
		})
	}
}

func TestInsertThenErase_CancelsOut(t *testing.T) {
	l := New()
	l.Insert(mk("b", 0))
	l.Erase("b")

	assert.True(t, l.Empty())
	assert.Empty(t, l.Drain())
}

func TestInsertThenErase_OfKnownMarker_IsErase(t *testing.T) {
	l := New()
	l.Erase("a")
	l.Insert(mk("a", 1))
	l.Erase("a")

	got := l.Drain()
	assert.Equal(t, []core.UpdateKind{core.UpdateErase}, kinds(got))
}

func TestEraseThenInsert_IsInsert(t *testing.T) {
	l := New()
	l.Erase("a")
	l.Insert(mk("a", 7))

	got := l.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, core.UpdateInsert, got[0].Kind)
	assert.Equal(t, core.NewPose(7, 0, 0), got[0].Marker.Pose)
}

func TestPoseOrFullAfterErase_Ignored(t *testing.T) {
	l := New()
	l.Erase("a")
	l.Pose(mk("a", 1))
	l.Full(mk("a", 2))

	assert.Equal(t, []core.UpdateKind{core.UpdateErase}, kinds(l.Drain()))
}

func TestCancelledEntry_TakesNewPosition(t *testing.T) {
	l := New()
	l.Insert(mk("a", 0))
	l.Insert(mk("b", 0))
	l.Erase("a")
	l.Insert(mk("a", 0))

	got := l.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
}

// The net entry must equal applying the mutations in order to an absent marker.
func TestCoalescingMatchesSequentialApplication(t *testing.T) {
	type step struct {
		op string
		x  float64
	}
	cases := map[string][]step{
		"insert pose pose":         {{"insert", 0}, {"pose", 1}, {"pose", 2}},
		"insert full pose":         {{"insert", 0}, {"full", 5}, {"pose", 6}},
		"insert erase insert pose": {{"insert", 0}, {"erase", 0}, {"insert", 3}, {"pose", 4}},
		"insert erase":             {{"insert", 0}, {"erase", 0}},
		"insert pose erase":        {{"insert", 0}, {"pose", 1}, {"erase", 0}},
	}

	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			l := New()
			var current *core.Marker
			for _, s := range steps {
				switch s.op {
				case "insert":
					m := mk("a", s.x)
					current = &m
					l.Insert(m)
				case "full":
					m := mk("a", s.x)
					current = &m
					l.Full(m)
				case "pose":
					m := *current
					m.Pose = core.NewPose(s.x, 0, 0)
					current = &m
					l.Pose(m)
				case "erase":
					current = nil
					l.Erase("a")
				}
			}

			got := l.Drain()
			if current == nil {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, core.UpdateInsert, got[0].Kind)
			assert.Equal(t, *current, *got[0].Marker)
		})
	}
}

func TestReset(t *testing.T) {
	l := New()
	l.Pose(mk("a", 1))
	l.Reset()
	assert.Equal(t, 0, l.Len())
}
