// Package logger defines the minimal structured logging surface the engine
// depends on, plus adapters for common backends.
package logger

// Logger accepts a message and alternating key/value pairs. The interface is
// deliberately tiny so callers can wrap whatever logging stack they run.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc produces a correlation id attached to decision log lines.
// Implementations must be safe for concurrent use.
type TraceIDFunc func() string
