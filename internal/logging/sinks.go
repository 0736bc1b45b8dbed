package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// sinks fans a record out to every destination the server logs to: the log
// file (or stdout), the OTel bridge and Graylog. A failing sink does not stop
// the others; their errors are joined.
type sinks []slog.Handler

func newSinks(handlers ...slog.Handler) sinks {
	return slices.DeleteFunc(handlers, func(h slog.Handler) bool { return h == nil })
}

func (s sinks) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(s, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (s sinks) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range s {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s sinks) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s sinks) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s sinks) each(f func(slog.Handler) slog.Handler) sinks {
	out := make(sinks, len(s))
	for i, h := range s {
		out[i] = f(h)
	}
	return out
}
