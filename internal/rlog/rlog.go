// Package rlog provides a buffered, colorized structured logger for
// reporting progress of long-running cache and rules operations.
//
// A Logger is meant to be created once per unit of concurrent work (one per
// release worker, for example) and flushed when that unit finishes, so that
// messages from concurrent workers never interleave mid-line.
package rlog

import (
	"bytes"
	"io"
	"log"
	"os"
	"sync"

	"github.com/mgutz/ansi"
)

var flushMutex sync.Mutex

// Logger is a structured logger for terminal reporting.
type Logger struct {
	Debug   *log.Logger
	Info    *log.Logger
	Section *log.Logger
	Warning *log.Logger
	Error   *log.Logger

	buf bytes.Buffer
}

// New creates a Logger. When debug is false, Debug messages are discarded.
// When color is true, prefixes are ANSI-colorized.
func New(debug, color bool) *Logger {
	l := &Logger{}
	l.Debug = log.New(io.Discard, "@@ ", 0)
	l.Info = log.New(&l.buf, ":: ", 0)
	l.Section = log.New(&l.buf, "==> ", 0)
	l.Warning = log.New(&l.buf, ":: warning: ", 0)
	l.Error = log.New(&l.buf, ":: error: ", 0)

	if debug {
		l.Debug.SetOutput(&l.buf)
	}

	if color {
		l.Debug.SetPrefix(ansi.Color(l.Debug.Prefix(), "cyan+b"))
		l.Info.SetPrefix(ansi.Color(l.Info.Prefix(), "magenta+b"))
		l.Section.SetPrefix(ansi.Color(l.Section.Prefix(), "green+b"))
		l.Warning.SetPrefix(ansi.Color(l.Warning.Prefix(), "blue+b"))
		l.Error.SetPrefix(ansi.Color(l.Error.Prefix(), "red+b"))
	}

	return l
}

// Flush copies the buffer to stderr under a global lock and resets it.
func (l *Logger) Flush() {
	flushMutex.Lock()
	_, _ = io.Copy(os.Stderr, &l.buf)
	flushMutex.Unlock()
	l.buf.Reset()
}
