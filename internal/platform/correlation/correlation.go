// Package correlation tags every log line produced while handling one chat or
// platform event with the same short id and the event's kind.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	idKey    = "correlation_id"
	eventKey = "event"
)

type scopeKey struct{}

// scope is what one unit of work carries in its context.
type scope struct {
	id    string
	event string
}

// NewID returns 8 hex characters.
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func fromContext(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func WithID(ctx context.Context, id string) context.Context {
	s := fromContext(ctx)
	s.id = id
	return context.WithValue(ctx, scopeKey{}, s)
}

func ID(ctx context.Context) (string, bool) {
	id := fromContext(ctx).id
	return id, id != ""
}

// ForEvent opens the logging scope of one dispatched event. An id already on
// ctx is kept.
func ForEvent(ctx context.Context, kind string) context.Context {
	s := fromContext(ctx)
	if s.id == "" {
		s.id = NewID()
	}
	s.event = kind
	return context.WithValue(ctx, scopeKey{}, s)
}

// Handler copies the scope of the record's context onto every record.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	s := fromContext(ctx)
	if s.id != "" {
		r.AddAttrs(slog.String(idKey, s.id))
	}
	if s.event != "" {
		r.AddAttrs(slog.String(eventKey, s.event))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
