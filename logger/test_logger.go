package logger

import "testing"

var _ Logger = Test{}

// Test is a logger.Logger implementation that prints through a testing.TB,
// so that log lines are shown only for failing or verbose tests.
type Test struct{ tb testing.TB }

// NewTest returns a new logger using the provided testing.TB instance.
func NewTest(tb testing.TB) Test {
	return Test{tb: tb}
}

func (t Test) log(level, msg string, fields []Field) {
	t.tb.Helper()

	args := make(map[string]any, len(fields))
	for _, field := range fields {
		args[field.Key] = field.Value
	}

	t.tb.Logf("[%s] %s %v", level, msg, args)
}

// Debug implements logger.Logger.
func (t Test) Debug(msg string, fields ...Field) { t.log("debug", msg, fields) }

// Info implements logger.Logger.
func (t Test) Info(msg string, fields ...Field) { t.log("info", msg, fields) }

// Error implements logger.Logger.
func (t Test) Error(msg string, fields ...Field) { t.log("error", msg, fields) }
