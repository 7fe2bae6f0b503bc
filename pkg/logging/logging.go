// Package logging builds the structured logger used across beam.
//
// Records fan out to a console handler (text on a terminal, JSON otherwise)
// and, when requested and available, the systemd journal.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures New.
type Options struct {
	// Writer receives console output. Defaults to os.Stderr.
	Writer io.Writer
	// Level controls the console handler. A nil Level logs at warn and
	// above. The journal keeps its own default level.
	Level *slog.LevelVar
	// JSON forces JSON console output even on a terminal.
	JSON bool
	// Journal adds a systemd journal handler. Failure to open the journal
	// is logged as a warning on the console handler.
	Journal bool
}

// New returns a logger for opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = new(slog.LevelVar)
		level.Set(slog.LevelWarn)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if !opts.JSON && isTerminal(w) {
		console = slog.NewTextHandler(w, handlerOpts)
	} else {
		console = slog.NewJSONHandler(w, handlerOpts)
	}
	handlers := []slog.Handler{console}

	if opts.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return journalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = journalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = console.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// journalKey converts an attribute key to a journal field name.
func journalKey(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(s))
}
