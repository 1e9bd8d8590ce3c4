// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// ANSI colours for level tags, used only when the output is a terminal.
var levelColors = map[string]string{
	"ERR": "\x1b[1;31m",
	"WRN": "\x1b[1;33m",
	"INF": "\x1b[1;32m",
	"VRB": "\x1b[1;34m",
	"DBG": "\x1b[2m",
}

const colorReset = "\x1b[0m"

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.
type Logger struct {
	level      LogLevel
	output     io.Writer
	mu         *sync.Mutex // shared with children created by With
	timestamps bool
	color      bool
	fields     string // pre-rendered key=value suffix from With
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).  Level tags
// are coloured when stderr is a terminal.
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		mu:         &sync.Mutex{},
		timestamps: verbosity >= 3,
		color:      term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// Discard returns a Logger that drops everything, for tests and callers
// that were handed no logger.
func Discard() *Logger {
	return &Logger{level: LogQuiet, output: io.Discard, mu: &sync.Mutex{}}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on }

// SetOutput overrides the output writer (default: os.Stderr).  Colour is
// disabled because the new writer is not known to be a terminal.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.color = false
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that appends key=value pairs to every
// line.  The child shares the parent's output and lock; later changes to
// the parent's output are not seen by existing children.
func (l *Logger) With(kv ...interface{}) *Logger {
	var suffix string
	for i := 0; i+1 < len(kv); i += 2 {
		suffix += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return &Logger{
		level:      l.level,
		output:     l.output,
		mu:         l.mu,
		timestamps: l.timestamps,
		color:      l.color,
		fields:     l.fields + suffix,
	}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tag := "[" + level + "]"
	if l.color {
		tag = levelColors[level] + tag + colorReset
	}

	msg := fmt.Sprintf(format, args...) + l.fields
	if l.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.output, "%s %s %s\n", ts, tag, msg)
	} else {
		fmt.Fprintf(l.output, "%s %s\n", tag, msg)
	}
}
