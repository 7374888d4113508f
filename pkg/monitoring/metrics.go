package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Endpoint labels
const (
	EndpointToken  = "token"
	EndpointDialog = "dialog"
)

// ClientMetrics 开放平台客户端指标
type ClientMetrics struct {
	// RequestsTotal counts outbound requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration measures outbound request duration.
	RequestDuration *prometheus.HistogramVec
	// InflightRequests tracks requests currently on the wire.
	InflightRequests *prometheus.GaugeVec
	// CallsTotal counts inference calls by terminal state.
	CallsTotal *prometheus.CounterVec
}

// NewClientMetrics 在指定 Registerer 上注册指标
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)
	return &ClientMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagpt_requests_total",
				Help: "Total number of requests sent to the PATech OpenAPI gateway",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagpt_request_duration_seconds",
				Help:    "PATech OpenAPI request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),
		InflightRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pagpt_inflight_requests",
				Help: "Requests currently in flight to the PATech OpenAPI gateway",
			},
			[]string{"endpoint"},
		),
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagpt_calls_total",
				Help: "Inference calls by terminal state",
			},
			[]string{"result"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *ClientMetrics
)

// DefaultClientMetrics 注册到 prometheus.DefaultRegisterer 的共享指标
func DefaultClientMetrics() *ClientMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewClientMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Track 记录一次请求开始，返回结束回调
// status 为 0 表示未收到响应（网络错误或超时）
func (m *ClientMetrics) Track(endpoint string) func(status int) {
	if m == nil {
		return func(int) {}
	}
	start := time.Now()
	m.InflightRequests.WithLabelValues(endpoint).Inc()
	return func(status int) {
		m.InflightRequests.WithLabelValues(endpoint).Dec()
		m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		label := "error"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		m.RequestsTotal.WithLabelValues(endpoint, label).Inc()
	}
}

// ObserveCall 记录一次调用的终态
func (m *ClientMetrics) ObserveCall(result string) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(result).Inc()
}
