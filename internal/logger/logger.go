package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

type Logger = *slog.Logger

func New(level slog.Leveler) Logger {
	return slog.New(newTint(os.Stderr, level))
}

// NewWithSentry creates a logger that also reports error records to Sentry.
func NewWithSentry(level slog.Leveler) Logger {
	return slog.New(NewSentryHandler(newTint(os.Stderr, level)))
}

func newTint(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
}
