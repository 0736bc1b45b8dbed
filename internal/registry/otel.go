package registry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

const instrumentationName = "github.com/OCAP2/interactive-markers/internal/registry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	batches       metric.Int64Counter
	updates       metric.Int64Counter
	failures      metric.Int64Counter
	staleFeedback metric.Int64Counter
	markers       metric.Int64ObservableGauge
	pending       metric.Int64ObservableGauge
}

func newMetrics(r *Registry) (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error
	out.batches, err = m.Int64Counter(
		"registry.batches.published",
		metric.WithDescription("Update batches handed to the transport"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batches counter: %w", err)
	}

	out.updates, err = m.Int64Counter(
		"registry.updates.published",
		metric.WithDescription("Marker updates published, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating updates counter: %w", err)
	}

	out.failures, err = m.Int64Counter(
		"registry.publish.failures",
		metric.WithDescription("Publishes or full syncs the transport failed to deliver"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	out.staleFeedback, err = m.Int64Counter(
		"registry.feedback.stale",
		metric.WithDescription("Feedback dropped because the marker no longer exists"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stale feedback counter: %w", err)
	}

	out.markers, err = m.Int64ObservableGauge(
		"registry.markers",
		metric.WithDescription("Markers currently held"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markers gauge: %w", err)
	}

	out.pending, err = m.Int64ObservableGauge(
		"registry.pending",
		metric.WithDescription("Updates staged for the next publish"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.ObserveInt64(out.markers, int64(r.store.Len()))
			o.ObserveInt64(out.pending, int64(r.log.Len()))
			return nil
		},
		out.markers, out.pending,
	)
	if err != nil {
		return nil, fmt.Errorf("registering gauge callback: %w", err)
	}

	return out, nil
}

func (m *metrics) published(ctx context.Context, batch core.UpdateBatch) {
	m.batches.Add(ctx, 1)
	counts := make(map[core.UpdateKind]int64, 4)
	for _, u := range batch.Updates {
		counts[u.Kind]++
	}
	for kind, n := range counts {
		m.updates.Add(ctx, n, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (m *metrics) failed(ctx context.Context, op string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *metrics) stale(ctx context.Context, kind core.FeedbackKind) {
	m.staleFeedback.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
