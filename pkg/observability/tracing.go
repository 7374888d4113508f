package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName 客户端使用的 tracer 名称
const TracerName = "pagptclient"

// Exporter protocols
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// TracingConfig 追踪配置
type TracingConfig struct {
	// ServiceName 服务名称
	ServiceName string `mapstructure:"service_name"`
	// ServiceVersion 服务版本
	ServiceVersion string `mapstructure:"service_version"`
	// Environment 环境（dev/staging/prod）
	Environment string `mapstructure:"environment"`
	// Endpoint OTLP导出端点
	Endpoint string `mapstructure:"endpoint"`
	// Protocol 导出协议 grpc/http
	Protocol string `mapstructure:"protocol"`
	// SamplingRate 采样率 (0.0-1.0)
	SamplingRate float64 `mapstructure:"sampling_rate"`
	// Enabled 是否启用
	Enabled bool `mapstructure:"enabled"`
}

// DefaultTracingConfig 默认配置
func DefaultTracingConfig(serviceName string) TracingConfig {
	return TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		SamplingRate:   1.0,
		Enabled:        false,
	}
}

// InitTracing 初始化追踪，返回清理函数
func InitTracing(ctx context.Context, config TracingConfig) (func(context.Context) error, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	client, err := newExporterClient(config)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newExporterClient(config TracingConfig) (otlptrace.Client, error) {
	switch config.Protocol {
	case "", ProtocolGRPC:
		return otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithInsecure(),
		), nil
	case ProtocolHTTP:
		return otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(config.Endpoint),
			otlptracehttp.WithInsecure(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol: %s", config.Protocol)
	}
}

// StartSpan 开始一个新的span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// RecordError 记录错误
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent 添加事件
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceID 获取trace ID
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// CallAttributes 调用通用属性
type CallAttributes struct {
	SceneID   string
	SessionID string
	BatchSize int
}

// ToAttributes 转换为OpenTelemetry属性
func (a CallAttributes) ToAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if a.SceneID != "" {
		attrs = append(attrs, attribute.String("pagpt.scene_id", a.SceneID))
	}
	if a.SessionID != "" {
		attrs = append(attrs, attribute.String("pagpt.session_id", a.SessionID))
	}
	if a.BatchSize > 0 {
		attrs = append(attrs, attribute.Int("pagpt.batch_size", a.BatchSize))
	}
	return attrs
}
