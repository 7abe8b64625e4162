package logger

import (
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/lmittmann/tint"
)

func newHandler(w io.Writer, terminal bool) slog.Handler {
	if terminal {
		return tint.NewHandler(w, &tint.Options{
			NoColor:     runtime.GOOS == "windows",
			AddSource:   true,
			Level:       Level.lvl,
			ReplaceAttr: replaceAttr(true),
		})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       Level.lvl,
		ReplaceAttr: replaceAttr(false),
	})
}

// replaceAttr drops the timestamp when something else stamps the line (the
// terminal user, journald), keeps source locations for debug only and renders
// level names: short colored tags on a terminal, lower case otherwise.
func replaceAttr(terminal bool) func([]string, slog.Attr) slog.Attr {
	names := customLevels
	if terminal {
		names = customLevelsTerm
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if terminal || isJournal {
				return slog.Attr{}
			}
		case slog.SourceKey:
			if !Level.Enabled(slog.LevelDebug) {
				return slog.Attr{}
			}
		case slog.LevelKey:
			lvl, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			if s, ok := names[lvl]; ok {
				return slog.String(a.Key, s)
			}
			if !terminal {
				return slog.String(a.Key, strings.ToLower(lvl.String()))
			}
		}
		return a
	}
}
