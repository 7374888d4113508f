package pagpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"

	pkgerrors "pagptclient/pkg/errors"
	"pagptclient/pkg/monitoring"
	"pagptclient/pkg/resilience"
)

// 响应体读取上限
const maxResponseBody = 10 << 20

// ErrCircuitOpen 对话接口熔断中
var ErrCircuitOpen = errors.New("dialog circuit breaker is open")

var errAuthRejected = errors.New("gateway rejected request signature")

// Doer 发送 HTTP 请求，*http.Client 即满足
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CircuitBreakerConfig 对话接口熔断配置，默认关闭
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	MinRequests      uint32        `mapstructure:"min_requests"`
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 0.6
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	return c
}

// rawResponse 网关原始响应
type rawResponse struct {
	status        int
	body          []byte
	requestHeader http.Header
}

func (r *rawResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

// gateway 签名请求的发送层：签名、发送、401 重签一次、指标与熔断
type gateway struct {
	endpoint  string
	doer      Doer
	metrics   *monitoring.ClientMetrics
	breaker   *gobreaker.CircuitBreaker
	retryAuth bool
	logger    *log.Helper
}

func newGateway(endpoint string, doer Doer, metrics *monitoring.ClientMetrics, retryAuth bool, logger log.Logger) *gateway {
	return &gateway{
		endpoint:  endpoint,
		doer:      doer,
		metrics:   metrics,
		retryAuth: retryAuth,
		logger:    log.NewHelper(log.With(logger, "module", "pagpt-gateway", "endpoint", endpoint)),
	}
}

// withBreaker 为该 gateway 开启熔断
func (g *gateway) withBreaker(cfg CircuitBreakerConfig) *gateway {
	if !cfg.Enabled {
		return g
	}
	cfg = cfg.withDefaults()

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pagpt-" + g.endpoint,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		// 本地签名失败与网关无关，不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsCryptoError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Infof("circuit breaker %s state change: %s -> %s", name, from, to)
		},
	})
	return g
}

// post 签名并发送请求
// 网关返回 401 时用新的时间戳重签并重试一次；非 2xx 响应不视为错误，由调用方处理
func (g *gateway) post(ctx context.Context, url string, sign func() (SignedHeaders, error), body []byte) (*rawResponse, error) {
	policy := resilience.RetryPolicy{}
	if g.retryAuth {
		policy = resilience.OncePolicy(func(err error) bool { return errors.Is(err, errAuthRejected) })
		policy.OnRetry = func(attempt int, err error, _ time.Duration) {
			g.logger.WithContext(ctx).Warnf("signature rejected, re-signing (attempt %d)", attempt)
		}
	}

	var last *rawResponse
	err := resilience.Retry(ctx, policy, func() error {
		last = nil
		resp, err := g.execute(ctx, url, sign, body)
		if err != nil {
			return err
		}
		last = resp
		if resp.status == http.StatusUnauthorized {
			return errAuthRejected
		}
		return nil
	})

	if last != nil && (err == nil || errors.Is(err, errAuthRejected)) {
		return last, nil
	}
	return nil, err
}

func (g *gateway) execute(ctx context.Context, url string, sign func() (SignedHeaders, error), body []byte) (*rawResponse, error) {
	if g.breaker == nil {
		return g.once(ctx, url, sign, body)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.once(ctx, url, sign, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*rawResponse), nil
}

// once 执行一次签名+发送
func (g *gateway) once(ctx context.Context, url string, sign func() (SignedHeaders, error), body []byte) (*rawResponse, error) {
	trackerFrom(ctx).enter(StateSign)
	headers, err := sign()
	if err != nil {
		return nil, err
	}
	trackerFrom(ctx).enter(stateFor(g.endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	headers.Apply(req.Header)

	done := g.metrics.Track(g.endpoint)
	resp, err := g.doer.Do(req)
	if err != nil {
		done(0)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		done(0)
		return nil, fmt.Errorf("read response: %w", err)
	}
	done(resp.StatusCode)

	return &rawResponse{
		status:        resp.StatusCode,
		body:          respBody,
		requestHeader: req.Header,
	}, nil
}

func stateFor(endpoint string) CallState {
	if endpoint == monitoring.EndpointToken {
		return StateFetchToken
	}
	return StateDialog
}

// newHTTPClient 默认 HTTP 客户端，超时由每个请求的 context 控制
func newHTTPClient(concurrent int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if concurrent > transport.MaxIdleConnsPerHost {
		transport.MaxIdleConnsPerHost = concurrent
	}
	return &http.Client{Transport: transport}
}
