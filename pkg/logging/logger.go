package logging

// Logger is the logging interface shared by all CrowdRank services.
// Structured variants take alternating key/value tags, formatted variants
// follow fmt semantics.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)
	Fatal(msg string, tags ...any)

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})

	With(tags ...any) Logger
	WithTraceID(traceID string) Logger
}
