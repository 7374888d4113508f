package logging

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	helper := log.NewHelper(log.With(NewZapLogger(zap.New(core)), "module", "test"))

	helper.Debugf("debug %d", 1)
	helper.Infof("hello %s", "world")
	helper.Warn("careful")
	helper.Errorw(log.DefaultMessageKey, "failed", "status", 500)

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "hello world", entries[1].Message)
	assert.Equal(t, "test", entries[1].ContextMap()["module"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "failed", entries[3].Message)
	assert.EqualValues(t, 500, entries[3].ContextMap()["status"])
}

func TestZapLogger_OddKeyvals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	require.NoError(t, logger.Log(log.LevelInfo, "lonely"))
	require.Len(t, logs.All(), 1)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestWith_AddsTraceValuers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	helper := log.NewHelper(With(NewZapLogger(zap.New(core)), "pagpt"))

	helper.WithContext(context.Background()).Info("ok")

	require.Len(t, logs.All(), 1)
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "pagpt", fields["service.name"])
	assert.Contains(t, fields, "trace.id")
	assert.Contains(t, fields, "caller")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	_, _, err := NewLogger(Config{Level: "verbose"})
	assert.Error(t, err)

	_, _, err = NewLogger(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	logger, cleanup, err := NewLogger(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, logger)
	cleanup()
}
