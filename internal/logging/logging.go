// Package logging wraps the standard library logger with the
// component-prefixed, printf-style idiom used throughout the
// laserstream SDK ("RECONNECT: Connection failed (attempt %d/%d): %v").
// No third-party logging library is exercised anywhere in the
// retrieval pack for a repo's own operational logging, so this core
// follows the same plain stdlib idiom rather than reaching for one.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a tiny leveled wrapper around *log.Logger, tagged with a
// component name that is prefixed onto every line.
type Logger struct {
	component string
	out       *log.Logger
}

// New returns a Logger that writes to os.Stderr, tagged with component.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter returns a Logger writing to w, for tests that want to
// capture output.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		component: component,
		out:       log.New(w, "", log.LstdFlags),
	}
}

// With returns a child Logger whose component is "parent.child".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "." + sub, out: l.out}
}

func (l *Logger) Infof(format string, args ...any) {
	l.out.Printf(l.component+": "+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.out.Printf(l.component+": WARN: "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.out.Printf(l.component+": ERROR: "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.out.Printf(l.component+": debug: "+format, args...)
}
