// Package logger builds the slog.Logger used by the dogapi command line tool.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

var isJournal = isStderrConnectedToJournal()

// New returns a logger writing to stderr: colored when stderr is a terminal,
// logfmt otherwise.
func New() *slog.Logger {
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return slog.New(newHandler(os.Stderr, true))
	}
	return slog.New(newHandler(os.Stderr, false))
}

// NewText returns a logfmt logger writing to w.
func NewText(w io.Writer) *slog.Logger {
	return slog.New(newHandler(w, false))
}

// Notice logs at the notice level, between info and warn.
func Notice(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), levelNotice, msg, args...)
}
