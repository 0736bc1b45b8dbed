package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/interactive-markers/internal/monitor"
	"github.com/OCAP2/interactive-markers/internal/registry"
	"github.com/OCAP2/interactive-markers/internal/transport/websocket"
	"github.com/OCAP2/interactive-markers/pkg/client"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

type testAPI struct {
	reg *registry.Registry
	ws  *websocket.Server
	url string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	reg, err := registry.New(registry.WithLogger(discardLogger()))
	require.NoError(t, err)
	ws := websocket.New(websocket.Config{}, discardLogger())
	reg.SetTransport(ws)
	ws.OnSubscribe(func(id string) { _ = reg.FullSync(context.Background(), id) })

	status := monitor.NewService(monitor.Dependencies{
		Registry:  reg,
		Transport: ws,
		Namespace: "robots",
		Logger:    discardLogger(),
	})

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "test_metric 1\n")
	})

	router := NewServer(reg, ws, status,
		WithNamespace("robots"),
		WithMetricsHandler(metrics),
		WithLogger(discardLogger()),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = ws.Close() })

	return &testAPI{reg: reg, ws: ws, url: srv.URL}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.reg.Insert(core.Marker{Name: "a"}))

	h, err := client.NewHTTPClient(api.url, "robots").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "robots", h.Namespace)
	assert.Equal(t, 1, h.Markers)
	assert.Equal(t, 0, h.Subscribers)
}

func TestListMarkers(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.reg.Insert(core.Marker{Name: "b"}))
	require.NoError(t, api.reg.Insert(core.Marker{Name: "a"}))
	_, err := api.reg.Publish(context.Background())
	require.NoError(t, err)

	batch, err := client.NewHTTPClient(api.url, "robots").Markers(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.FullSync)
	assert.Equal(t, uint64(1), batch.Seq)
	require.Len(t, batch.Updates, 2)
	assert.Equal(t, "a", batch.Updates[0].Name)
	assert.Equal(t, "b", batch.Updates[1].Name)
}

func TestGetMarker(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, api.reg.Insert(core.Marker{Name: "arm link", Pose: core.NewPose(1, 2, 3)}))
	hc := client.NewHTTPClient(api.url, "robots")

	_, err := hc.Marker(ctx, "arm link")
	assert.ErrorIs(t, err, client.ErrMarkerNotFound, "staged marker is not served before publish")

	_, err = api.reg.Publish(ctx)
	require.NoError(t, err)
	require.NoError(t, api.reg.SetPose("arm link", core.NewPose(9, 9, 9), nil))

	m, err := hc.Marker(ctx, "arm link")
	require.NoError(t, err)
	assert.Equal(t, core.NewPose(1, 2, 3), m.Pose)

	_, err = hc.Marker(context.Background(), "missing")
	assert.ErrorIs(t, err, client.ErrMarkerNotFound)
}

func TestGetMarker_NotFoundBody(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.url + "/robots/markers/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, `marker "ghost" not found`, body.Error)
}

func TestMetrics(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "test_metric 1\n", string(body))
}

func TestWebSocketRoute(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.reg.Insert(core.Marker{Name: "a"}))
	_, err := api.reg.Publish(context.Background())
	require.NoError(t, err)

	c, err := client.Dial(context.Background(), api.url+"/robots/ws", client.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, c.Synced, 3*time.Second, 10*time.Millisecond)
	_, ok := c.Get("a")
	assert.True(t, ok)

	h, err := client.NewHTTPClient(api.url, "robots").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers)
}

func TestUnknownNamespace(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.url + "/other/markers")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListMarkers_ExcludesStagedChanges(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, api.reg.Insert(core.Marker{Name: "a"}))
	_, err := api.reg.Publish(ctx)
	require.NoError(t, err)

	require.NoError(t, api.reg.Insert(core.Marker{Name: "b"}))
	require.True(t, api.reg.Erase("a"))

	batch, err := client.NewHTTPClient(api.url, "robots").Markers(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batch.Seq)
	assert.Equal(t, []string{"a"}, batch.Names())
}
