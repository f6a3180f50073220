package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler builds the console handler: text output, no timestamp,
// TRACE level rendered by name.
func newTextHandler(w io.Writer, level slog.Level, _ *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				return renameLevel(a)
			}
			return a
		},
	})
}

// newJSONHandler builds the file handler: JSON output with RFC3339 timestamps
// in the configured timezone.
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.UTC
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
				}
			case slog.LevelKey:
				return renameLevel(a)
			}
			return a
		},
	})
}

func renameLevel(a slog.Attr) slog.Attr {
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
		return slog.String(slog.LevelKey, "TRACE")
	}
	return a
}
