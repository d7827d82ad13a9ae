package logger

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// SentryHandler wraps an slog.Handler and reports the "error" attribute of
// error level records to Sentry.
type SentryHandler struct {
	handler slog.Handler
	attrs   []slog.Attr
	capture func(err error, tags map[string]string)
}

func NewSentryHandler(handler slog.Handler) *SentryHandler {
	return &SentryHandler{handler: handler, capture: captureToHub}
}

func (h *SentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		var reported error
		tags := map[string]string{"message": r.Message}
		collect := func(a slog.Attr) bool {
			if err, ok := a.Value.Any().(error); ok && a.Key == "error" {
				reported = err
			} else if a.Key == "poll_id" || a.Key == "command" {
				tags[a.Key] = a.Value.String()
			}
			return true
		}
		for _, a := range h.attrs {
			collect(a)
		}
		r.Attrs(collect)
		if reported != nil {
			h.capture(reported, tags)
		}
	}
	return h.handler.Handle(ctx, r)
}

func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SentryHandler{
		handler: h.handler.WithAttrs(attrs),
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
		capture: h.capture,
	}
}

func (h *SentryHandler) WithGroup(name string) slog.Handler {
	return &SentryHandler{handler: h.handler.WithGroup(name), attrs: h.attrs, capture: h.capture}
}

func captureToHub(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
