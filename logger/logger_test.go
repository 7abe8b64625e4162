package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_SetByName(t *testing.T) {
	defer Level.Set(slog.LevelInfo)

	tests := map[string]struct {
		name    string
		ok      bool
		enabled []slog.Level
		off     []slog.Level
	}{
		"debug": {
			name: "debug", ok: true,
			enabled: []slog.Level{slog.LevelDebug, slog.LevelInfo},
		},
		"notice": {
			name: "NOTICE", ok: true,
			enabled: []slog.Level{levelNotice, slog.LevelWarn},
			off:     []slog.Level{slog.LevelInfo},
		},
		"warning alias": {
			name: "warning", ok: true,
			enabled: []slog.Level{slog.LevelWarn, slog.LevelError},
			off:     []slog.Level{levelNotice},
		},
		"err alias": {
			name: "err", ok: true,
			enabled: []slog.Level{slog.LevelError},
			off:     []slog.Level{slog.LevelWarn},
		},
		"off": {
			name: "off", ok: true,
			off: []slog.Level{slog.LevelError},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.ok, Level.SetByName(test.name))
			for _, lvl := range test.enabled {
				assert.Truef(t, Level.Enabled(lvl), "level %v", lvl)
			}
			for _, lvl := range test.off {
				assert.Falsef(t, Level.Enabled(lvl), "level %v", lvl)
			}
		})
	}
}

func TestLevel_SetByNameUnknownKeepsLevel(t *testing.T) {
	defer Level.Set(slog.LevelInfo)

	Level.Set(slog.LevelWarn)
	assert.False(t, Level.SetByName("verbose"))
	assert.Equal(t, slog.LevelWarn, Level.Level())
}

func TestNewText(t *testing.T) {
	defer Level.Set(slog.LevelInfo)
	Level.Set(slog.LevelInfo)

	var buf bytes.Buffer
	l := NewText(&buf)

	l.Debug("hidden")
	Notice(l, "proxy in use", "host", "proxy.local")
	l.Warn("test3")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=notice")
	assert.Contains(t, out, "host=proxy.local")
	assert.Contains(t, out, "level=warn")
	assert.Contains(t, out, "msg=test3")
}

func TestNewHandler_Terminal(t *testing.T) {
	defer Level.Set(slog.LevelInfo)
	Level.Set(slog.LevelInfo)

	var buf bytes.Buffer
	l := slog.New(newHandler(&buf, true))

	Notice(l, "proxy in use")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "NTC")
	assert.Contains(t, out, "proxy in use")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "logger_test.go")
}
