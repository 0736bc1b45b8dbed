package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OCAP2/interactive-markers/pkg/core"
	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

// ErrMarkerNotFound is returned by HTTPClient.Marker for an unknown name.
var ErrMarkerNotFound = errors.New("marker not found")

// HTTPClient queries the REST endpoints of a marker server.
type HTTPClient struct {
	baseURL    string
	namespace  string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the server at baseURL, e.g.
// http://localhost:8080, serving markers under namespace.
func NewHTTPClient(baseURL, namespace string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		namespace:  strings.Trim(namespace, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health fetches the server status.
func (c *HTTPClient) Health(ctx context.Context) (streaming.Health, error) {
	var h streaming.Health
	if err := c.getJSON(ctx, c.baseURL+"/healthz", &h); err != nil {
		return streaming.Health{}, fmt.Errorf("healthcheck request failed: %w", err)
	}
	return h, nil
}

// Markers fetches every marker as a full sync batch.
func (c *HTTPClient) Markers(ctx context.Context) (core.UpdateBatch, error) {
	var b core.UpdateBatch
	if err := c.getJSON(ctx, c.baseURL+"/"+c.namespace+"/markers", &b); err != nil {
		return core.UpdateBatch{}, fmt.Errorf("list markers: %w", err)
	}
	return b, nil
}

// Marker fetches one marker.
func (c *HTTPClient) Marker(ctx context.Context, name string) (core.Marker, error) {
	var m core.Marker
	u := c.baseURL + "/" + c.namespace + "/markers/" + url.PathEscape(name)
	if err := c.getJSON(ctx, u, &m); err != nil {
		return core.Marker{}, fmt.Errorf("get marker %q: %w", name, err)
	}
	return m, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMarkerNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
