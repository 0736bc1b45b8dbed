package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/interactive-markers/internal/config"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

func unreachable() config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:  true,
		Host:     "127.0.0.1",
		Port:     "1",
		Protocol: "http",
		Token:    "token",
		Org:      "imarkers",
		Bucket:   "imarker-stats",
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var lines []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard), "imarkers", "")
	err := m.Connect(context.Background(), config.InfluxConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConnect_UnreachableUsesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.lp.gz")
	m := NewManager(zerolog.New(io.Discard), "imarkers", path)

	require.NoError(t, m.Connect(context.Background(), unreachable()))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	batch := core.UpdateBatch{Seq: 3, Updates: []core.PendingUpdate{
		{Kind: core.UpdateInsert, Name: "a"},
		{Kind: core.UpdateErase, Name: "b"},
	}}
	require.NoError(t, m.WriteBatch(context.Background(), batch, 2*time.Millisecond, nil))
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "publish,namespace=imarkers "), lines[0])
	assert.Contains(t, lines[0], "seq=3i")
	assert.Contains(t, lines[0], "updates=2i")
	assert.Contains(t, lines[0], "failed=false")
}

func TestConnect_UnreachableWithoutBackupPath(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard), "imarkers", "")
	err := m.Connect(context.Background(), unreachable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backup path")
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard), "imarkers", "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	require.Error(t, err)
}

func TestBatchPoint(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	batch := core.UpdateBatch{Seq: 9, Updates: []core.PendingUpdate{
		{Kind: core.UpdatePose, Name: "a"},
		{Kind: core.UpdatePose, Name: "b"},
		{Kind: core.UpdateFull, Name: "c"},
	}}

	p := BatchPoint("ns", batch, 1500*time.Microsecond, errors.New("boom"), at)

	assert.Equal(t, MeasurementPublish, p.Name())
	assert.Equal(t, at, p.Time())

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(9), fields["seq"])
	assert.Equal(t, int64(3), fields["updates"])
	assert.Equal(t, int64(2), fields["poses"])
	assert.Equal(t, int64(1), fields["fulls"])
	assert.Equal(t, int64(0), fields["inserts"])
	assert.Equal(t, 1.5, fields["duration_ms"])
	assert.Equal(t, true, fields["failed"])

	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "ns", p.TagList()[0].Value)
}
