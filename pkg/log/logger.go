package log

// Logger receives the events a device session emits: packets crossing the
// transport, codec state changes, settle waits and errors. Implementations
// must be safe for concurrent use; a handle may log from several goroutines.
type Logger interface {
	// Log records one event. It should return quickly; a slow Logger
	// stalls the write sequence it is attached to.
	Log(event Event)
}

// NoopLogger discards every event. The zero value is ready to use, so
// callers that take a Logger can default to NoopLogger{} when none is
// configured.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
