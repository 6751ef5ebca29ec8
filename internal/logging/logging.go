// Package logging builds the structured loggers used across the pipeline.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// New returns a logger at level ("debug", "info", ...) writing to w. Format
// "json" writes one JSON object per line; anything else writes a console
// rendering.
func New(level, format string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	var writer log.Writer
	if format == "json" {
		writer = &log.IOWriter{Writer: w}
	} else {
		writer = &log.ConsoleWriter{Writer: w, ColorOutput: w == os.Stderr, EndWithMessage: true}
	}

	return &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     writer,
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// With returns a copy of l whose entries carry the given key/value string
// pairs in addition to l's own context.
func With(l *log.Logger, kv ...string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	e := log.NewContext(append([]byte(nil), l.Context...))
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Str(kv[i], kv[i+1])
	}
	child := *l
	child.Context = e.Value()
	return &child
}

// Component returns a copy of l tagged with component.
func Component(l *log.Logger, component string) *log.Logger {
	return With(l, "component", component)
}
