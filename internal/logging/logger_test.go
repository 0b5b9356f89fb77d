package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatText, ParseLogFormat("console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}

func TestLogger_FieldsAreCarried(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))

	logger.WithField("auction", "0xabc").
		WithFields(map[string]interface{}{"block": uint64(42)}).
		WithError(errors.New("boom")).
		Warn("bid scan failed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "bid scan failed", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "0xabc", fields["auction"])
	assert.Equal(t, uint64(42), fields["block"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLogger_ChildDoesNotMutateParent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	parent := NewFromZap(zap.New(core))

	_ = parent.WithField("child", true)
	parent.Info("parent message")

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["child"]
	assert.False(t, ok)
}

func TestLogger_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := NewFromZap(zap.New(core))

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "warn 3", logs.All()[0].Message)
	assert.Equal(t, "error 4", logs.All()[1].Message)
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewFromZap(zap.New(core)).WithField("request_id", "r-1")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("handled")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "r-1", logs.All()[0].ContextMap()["request_id"])

	assert.NotNil(t, FromContext(context.Background()))
}
