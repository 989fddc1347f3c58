// Package logging wraps the standard log package with leveled prefixes.
// Debug output is gated behind a flag so `--debug` on the relay/vaultsync
// CLIs can turn it on without recompiling.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a leveled wrapper around four *log.Logger instances sharing one
// output stream, one per level prefix. Debug is silent unless enabled.
type Logger struct {
	debug bool
	out   io.Writer

	debugLog *log.Logger
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
}

// New builds a Logger that writes "[component] LEVEL: message" lines to w.
// debugEnabled gates Debugf; the other levels always print.
func New(component string, w io.Writer, debugEnabled bool) *Logger {
	flags := log.LstdFlags
	mk := func(level string) *log.Logger {
		return log.New(w, "["+component+"] "+level+": ", flags)
	}
	return &Logger{
		debug:    debugEnabled,
		out:      w,
		debugLog: mk("DEBUG"),
		infoLog:  mk("INFO"),
		warnLog:  mk("WARN"),
		errorLog: mk("ERROR"),
	}
}

// NewStderr is the common case: log to os.Stderr with the given component
// prefix, matching cmd/relay and cmd/vaultsync's --debug flag.
func NewStderr(component string, debugEnabled bool) *Logger {
	return New(component, os.Stderr, debugEnabled)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.debug {
		l.debugLog.Printf(format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.infoLog.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.warnLog.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.errorLog.Printf(format, args...)
}

// Std returns a plain *log.Logger at INFO prefix, for packages (detector,
// relay, syncengine) whose Config structs accept a *log.Logger directly
// rather than this package's leveled wrapper.
func (l *Logger) Std() *log.Logger {
	return l.infoLog
}
