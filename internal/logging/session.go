package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SeqSource reports the sequence number of the last published update batch.
// Seq is called for every record, possibly while the source holds its own
// locks, so it must not block.
type SeqSource interface {
	Seq() uint64
}

type seqBinding struct {
	src SeqSource
}

// sessionHandler stamps records with the server session: fixed attributes such
// as the namespace, plus the published sequence number once a source is bound.
type sessionHandler struct {
	inner slog.Handler
	seq   *atomic.Pointer[seqBinding]
}

func newSessionHandler(inner slog.Handler, attrs []slog.Attr, seq *atomic.Pointer[seqBinding]) *sessionHandler {
	if len(attrs) > 0 {
		inner = inner.WithAttrs(attrs)
	}
	return &sessionHandler{inner: inner, seq: seq}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if b := h.seq.Load(); b != nil {
		r.AddAttrs(slog.Uint64("seq", b.src.Seq()))
	}
	return h.inner.Handle(ctx, r)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{inner: h.inner.WithAttrs(attrs), seq: h.seq}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &sessionHandler{inner: h.inner.WithGroup(name), seq: h.seq}
}
