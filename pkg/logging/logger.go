// Package logging 基于 zap 的 kratos 日志适配
package logging

import (
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	// Level debug/info/warn/error
	Level string `mapstructure:"level"`
	// Format json/console
	Format string `mapstructure:"format"`
	// ServiceName 写入每条日志的 service.name
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "pagptclient",
	}
}

var _ log.Logger = (*ZapLogger)(nil)

// ZapLogger 将 kratos log.Logger 接口桥接到 zap
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger 包装已有的 zap.Logger
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{log: l}
}

// Log 实现 kratos log.Logger
func (l *ZapLogger) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		l.log.Warn("keyvals must appear in pairs", zap.Any("keyvals", keyvals))
		return nil
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case log.LevelDebug:
		l.log.Debug(msg, fields...)
	case log.LevelInfo:
		l.log.Info(msg, fields...)
	case log.LevelWarn:
		l.log.Warn(msg, fields...)
	default:
		// kratos Helper 自己处理 Fatal 的退出
		l.log.Error(msg, fields...)
	}
	return nil
}

// Sync 刷新缓冲
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

// NewLogger 按配置创建 logger，返回值带 caller/trace.id/span.id 等通用字段
func NewLogger(cfg Config) (log.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	zl := NewZapLogger(zap.New(core))

	logger := With(zl, cfg.ServiceName)
	return logger, func() { _ = zl.Sync() }, nil
}

// With 附加通用字段
func With(logger log.Logger, serviceName string) log.Logger {
	return log.With(logger,
		"caller", log.DefaultCaller,
		"service.name", serviceName,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)
}
