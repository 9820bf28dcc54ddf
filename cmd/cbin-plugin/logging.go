package main

import (
	"context"
	"log/slog"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// serviceHandler routes codec log records to the Benthos logger so they are
// filtered and formatted with the rest of the pipeline's logs.
type serviceHandler struct {
	logger *service.Logger
	attrs  []any
	group  string
}

func newSlogLogger(logger *service.Logger) *slog.Logger {
	return slog.New(&serviceHandler{logger: logger})
}

// Enabled leaves level filtering to Benthos.
func (h *serviceHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *serviceHandler) Handle(_ context.Context, r slog.Record) error {
	kv := append([]any(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		kv = append(kv, h.key(a.Key), a.Value.String())
		return true
	})

	l := h.logger
	if len(kv) > 0 {
		l = l.With(kv...)
	}
	switch {
	case r.Level >= slog.LevelError:
		l.Error(r.Message)
	case r.Level >= slog.LevelWarn:
		l.Warn(r.Message)
	case r.Level >= slog.LevelInfo:
		l.Info(r.Message)
	default:
		l.Debug(r.Message)
	}
	return nil
}

func (h *serviceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]any(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.key(a.Key), a.Value.String())
	}
	return &next
}

func (h *serviceHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = h.key(name)
	return &next
}

func (h *serviceHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
