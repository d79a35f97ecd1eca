package logging

import (
	"os"
	"path/filepath"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of the Logger interface
type MockLogger struct {
	mock.Mock
}

// SetupDefaultExpectations sets up common logger mock expectations that accept any arguments.
// This is useful for tests where you don't care about specific logging calls.
// It allows all logger methods to be called with any arguments without causing test failures.
func (m *MockLogger) SetupDefaultExpectations() {
	m.On("Debug", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Debugf", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Info", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Infof", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Warn", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Warnf", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Error", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Errorf", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Fatal", mock.Anything, mock.Anything).Maybe().Return()
	m.On("Fatalf", mock.Anything, mock.Anything).Maybe().Return()
}

// Debug mocks the Debug method
func (m *MockLogger) Debug(msg string, keysAndValues ...interface{}) {
	m.Called(msg, keysAndValues)
}

// Info mocks the Info method
func (m *MockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.Called(msg, keysAndValues)
}

// Warn mocks the Warn method
func (m *MockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.Called(msg, keysAndValues)
}

// Error mocks the Error method
func (m *MockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.Called(msg, keysAndValues)
}

// Fatal mocks the Fatal method
func (m *MockLogger) Fatal(msg string, keysAndValues ...interface{}) {
	m.Called(msg, keysAndValues)
}

// Debugf mocks the Debugf method
func (m *MockLogger) Debugf(template string, args ...interface{}) {
	m.Called(template, args)
}

// Infof mocks the Infof method
func (m *MockLogger) Infof(template string, args ...interface{}) {
	m.Called(template, args)
}

// Warnf mocks the Warnf method
func (m *MockLogger) Warnf(template string, args ...interface{}) {
	m.Called(template, args)
}

// Errorf mocks the Errorf method
func (m *MockLogger) Errorf(template string, args ...interface{}) {
	m.Called(template, args)
}

// Fatalf mocks the Fatalf method
func (m *MockLogger) Fatalf(template string, args ...interface{}) {
	m.Called(template, args)
}

// With mocks the With method
func (m *MockLogger) With(tags ...any) Logger {
	args := m.Called(tags)
	if args.Get(0) == nil {
		return m
	}
	return args.Get(0).(Logger)
}

// WithTraceID mocks the WithTraceID method
func (m *MockLogger) WithTraceID(traceID string) Logger {
	args := m.Called(traceID)
	if args.Get(0) == nil {
		return m
	}
	return args.Get(0).(Logger)
}

// NewNoOpLogger creates a logger that does nothing (useful for tests that don't care about logging)
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// NoOpLogger is a logger implementation that does nothing
// Useful for tests where logging is not important
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Fatal(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Debugf(template string, args ...interface{})    {}
func (n *NoOpLogger) Infof(template string, args ...interface{})     {}
func (n *NoOpLogger) Warnf(template string, args ...interface{})     {}
func (n *NoOpLogger) Errorf(template string, args ...interface{})    {}
func (n *NoOpLogger) Fatalf(template string, args ...interface{})    {}
func (n *NoOpLogger) With(tags ...interface{}) Logger                { return n }
func (n *NoOpLogger) WithTraceID(traceID string) Logger              { return n }

// NewTestLogger creates a logger suitable for testing.
// It writes under the OS temp dir so tests leave no files behind in the repo.
func NewTestLogger() (Logger, error) {
	config := LoggerConfig{
		LogDir:        filepath.Join(os.TempDir(), "crowdrank-test"),
		ProcessName:   TestProcess,
		IsDevelopment: true,
	}
	return NewZapLogger(config)
}
