package logger

// Logger is the minimal structured logging interface the engine uses.
// Implementations accept alternating key/value pairs; odd trailing
// values are ignored.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
