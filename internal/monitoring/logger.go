// Package monitoring holds the process-wide diagnostic logger used by the
// gesture packages.
package monitoring

import (
	"log"
	"strings"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles the per-sample debug output emitted through Debugf.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether per-sample debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Logger is a tagged logger. Every line is prefixed with the tags in
// brackets, e.g. "[arbiter][SmartIdentify] ".
type Logger struct {
	prefix string
}

// Tagged returns a Logger that prefixes each message with the given tags.
func Tagged(tags ...string) Logger {
	var b strings.Builder
	for _, t := range tags {
		b.WriteString("[")
		b.WriteString(t)
		b.WriteString("]")
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	return Logger{prefix: b.String()}
}

// With returns a child logger with an extra tag appended.
func (l Logger) With(tag string) Logger {
	p := strings.TrimSuffix(l.prefix, " ")
	return Logger{prefix: p + "[" + tag + "] "}
}

// Printf always logs.
func (l Logger) Printf(format string, v ...interface{}) {
	Logf(l.prefix+format, v...)
}

// Debugf logs only when SetDebug(true) has been called.
func (l Logger) Debugf(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	Logf(l.prefix+format, v...)
}
