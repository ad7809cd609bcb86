package zaplogger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/logger/zaplogger"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.Wrap(zap.New(core))

	errStorage := errors.New("storage failed")

	logger.Debug(l, "debug message", logger.With("stream", "dogs/1"))
	logger.Info(l, "info message", logger.With("version", 2))
	logger.Error(l, "error message", logger.Err(errStorage))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "dogs/1", entries[0].ContextMap()["stream"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.EqualValues(t, 2, entries[1].ContextMap()["version"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "storage failed", entries[2].ContextMap()["error"])
}

func TestNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.Info(nil, "nobody listens")
	})
}
