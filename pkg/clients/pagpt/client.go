package pagpt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"pagptclient/pkg/auth"
	"pagptclient/pkg/config"
	pkgerrors "pagptclient/pkg/errors"
	"pagptclient/pkg/monitoring"
	"pagptclient/pkg/observability"
)

// ConfigKey 配置中客户端所在的 key
const ConfigKey = "pagpt"

// Config 客户端配置
type Config struct {
	APICredential    string               `mapstructure:"api_credential"`
	APIPrivateKeyHex string               `mapstructure:"api_private_key_hex"`
	AppKey           string               `mapstructure:"app_key"`
	AppSecret        string               `mapstructure:"app_secret"`
	SceneID          string               `mapstructure:"scene_id"`
	TokenURL         string               `mapstructure:"token_url"`
	DialogURL        string               `mapstructure:"dialog_url"`
	TokenRequestData TokenRequestData     `mapstructure:"token_request_data"`
	TokenTimeout     time.Duration        `mapstructure:"token_timeout"`
	DialogTimeout    time.Duration        `mapstructure:"dialog_timeout"`
	Concurrent       int                  `mapstructure:"concurrent"`
	RetryOnAuth      *bool                `mapstructure:"retry_on_auth_failure"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

func (c Config) normalize() Config {
	c.APICredential = strings.TrimSpace(c.APICredential)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.DialogURL = strings.TrimSpace(c.DialogURL)
	if c.AppKey == "" {
		c.AppKey = c.TokenRequestData.ClientID
	}
	if c.AppSecret == "" {
		c.AppSecret = c.TokenRequestData.ClientSecret
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = DefaultTokenTimeout
	}
	if c.DialogTimeout <= 0 {
		c.DialogTimeout = DefaultDialogTimeout
	}
	if c.Concurrent <= 0 {
		c.Concurrent = DefaultConcurrent
	}
	return c
}

func (c Config) validate() error {
	checks := []struct {
		key   string
		value string
		check func(string) error
	}{
		{"api_credential", c.APICredential, config.ValidateNotEmpty},
		{"api_private_key_hex", c.APIPrivateKeyHex, config.ValidateNotEmpty},
		{"token_url", c.TokenURL, config.ValidateURL},
		{"dialog_url", c.DialogURL, config.ValidateURL},
	}
	for _, ch := range checks {
		if err := ch.check(ch.value); err != nil {
			return pkgerrors.NewConfigError(err, fmt.Sprintf("invalid %s", ch.key))
		}
	}
	return nil
}

func (c Config) retryOnAuth() bool {
	return c.RetryOnAuth == nil || *c.RetryOnAuth
}

// ClientOption 客户端选项
type ClientOption func(*clientOptions)

type clientOptions struct {
	doer     Doer
	now      func() time.Time
	metrics  *monitoring.ClientMetrics
	observer StateObserver
}

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(doer Doer) ClientOption {
	return func(o *clientOptions) { o.doer = doer }
}

// WithClock 替换签名时间来源
func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) { o.now = now }
}

// WithMetrics 使用指定指标，默认注册到 prometheus.DefaultRegisterer
func WithMetrics(m *monitoring.ClientMetrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// WithStateObserver 订阅调用状态迁移
func WithStateObserver(observer StateObserver) ClientOption {
	return func(o *clientOptions) { o.observer = observer }
}

// Client 开放平台 GPT 客户端，可并发使用
type Client struct {
	cfg      Config
	tokens   *TokenFetcher
	dialog   *InferenceClient
	metrics  *monitoring.ClientMetrics
	observer StateObserver
	logger   *log.Helper
}

// NewClient 创建客户端，私钥在此解析一次
func NewClient(cfg Config, logger log.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = log.DefaultLogger
	}
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.doer == nil {
		o.doer = newHTTPClient(cfg.Concurrent)
	}
	if o.metrics == nil {
		o.metrics = monitoring.DefaultClientMetrics()
	}

	signer, err := auth.NewSigner(cfg.APIPrivateKeyHex)
	if err != nil {
		return nil, err
	}
	headers := NewHeaderBuilder(cfg.APICredential, signer, o.now)

	tokenGW := newGateway(monitoring.EndpointToken, o.doer, o.metrics, cfg.retryOnAuth(), logger)
	dialogGW := newGateway(monitoring.EndpointDialog, o.doer, o.metrics, cfg.retryOnAuth(), logger).
		withBreaker(cfg.CircuitBreaker)

	return &Client{
		cfg:      cfg,
		tokens:   newTokenFetcher(tokenGW, headers, cfg.TokenURL, cfg.AppKey, cfg.AppSecret, cfg.TokenTimeout, logger),
		dialog:   newInferenceClient(dialogGW, headers, cfg.DialogURL, logger),
		metrics:  o.metrics,
		observer: o.observer,
		logger:   log.NewHelper(log.With(logger, "module", "pagpt-client")),
	}, nil
}

// NewClientFromConfig 从统一配置的 pagpt 段创建客户端
func NewClientFromConfig(uc config.UnifiedConfig, logger log.Logger, opts ...ClientOption) (*Client, error) {
	validator := config.NewValidator().
		AddRule(ConfigKey+".api_credential", true, config.ValidateNotEmpty).
		AddRule(ConfigKey+".api_private_key_hex", true, config.ValidateNotEmpty).
		AddRule(ConfigKey+".token_url", true, config.ValidateURL).
		AddRule(ConfigKey+".dialog_url", true, config.ValidateURL)
	if err := validator.Validate(uc); err != nil {
		return nil, pkgerrors.NewConfigError(err, "invalid pagpt config")
	}

	var cfg Config
	if err := uc.UnmarshalKey(ConfigKey, &cfg); err != nil {
		return nil, pkgerrors.NewConfigError(err, "failed to unmarshal pagpt config")
	}
	return NewClient(cfg, logger, opts...)
}

// Credentials 返回凭证副本
func (c *Client) Credentials() Credentials {
	return Credentials{
		APICredential:    c.cfg.APICredential,
		APIPrivateKeyHex: c.cfg.APIPrivateKeyHex,
		AppKey:           c.cfg.AppKey,
		AppSecret:        c.cfg.AppSecret,
		SceneID:          c.cfg.SceneID,
	}
}

// Endpoints 返回网关地址
func (c *Client) Endpoints() Endpoints {
	return Endpoints{TokenURL: c.cfg.TokenURL, DialogURL: c.cfg.DialogURL}
}

// TokenRequestData 返回历史 token 请求配置
func (c *Client) TokenRequestData() TokenRequestData {
	return c.cfg.TokenRequestData
}

// FetchToken 获取一次 token
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	return c.tokens.FetchToken(ctx)
}

func (c *Client) resolveParams(opts []InferenceOption) (InferenceParams, error) {
	p := defaultParams(c.cfg)
	for _, opt := range opts {
		opt(&p)
	}
	if p.Timeout == 0 {
		p.Timeout = c.cfg.DialogTimeout
	}
	if p.Concurrent <= 0 {
		p.Concurrent = c.cfg.Concurrent
	}
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	return p, p.validate()
}

// Inference 单次对话：取 token 后发送一个请求
func (c *Client) Inference(ctx context.Context, prompt string, opts ...InferenceOption) (Reply, error) {
	p, err := c.resolveParams(opts)
	if err != nil {
		return nil, err
	}
	req := NewInferenceRequest(prompt, c.cfg.SceneID, p.SessionID, p)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	attrs := observability.CallAttributes{SceneID: c.cfg.SceneID, SessionID: p.SessionID}
	ctx, span := observability.StartSpan(ctx, "pagpt.inference", attrs.ToAttributes()...)
	defer span.End()

	tr := newCallTracker(uuid.NewString(), c.observer, c.metrics, span)
	ctx = withTracker(ctx, tr)

	reply, err := c.call(ctx, req, p.Timeout)
	tr.finish(err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return reply, nil
}

func (c *Client) call(ctx context.Context, req InferenceRequest, timeout time.Duration) (Reply, error) {
	token, err := c.tokens.FetchToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.dialog.Send(ctx, token, req, timeout)
}

// BatchInference 批量对话：共用一个 token 和会话 ID，结果与 prompts 按位置对齐
// 失败的位置为 nil，返回的 error 汇总所有失败
func (c *Client) BatchInference(ctx context.Context, prompts []string, opts ...InferenceOption) ([]Reply, error) {
	if len(prompts) == 0 {
		return []Reply{}, nil
	}

	p, err := c.resolveParams(opts)
	if err != nil {
		return nil, err
	}
	reqs := make([]InferenceRequest, len(prompts))
	for i, prompt := range prompts {
		reqs[i] = NewInferenceRequest(prompt, c.cfg.SceneID, p.SessionID, p)
		if err := reqs[i].Validate(); err != nil {
			return nil, err
		}
	}

	attrs := observability.CallAttributes{SceneID: c.cfg.SceneID, SessionID: p.SessionID, BatchSize: len(prompts)}
	ctx, span := observability.StartSpan(ctx, "pagpt.batch_inference", attrs.ToAttributes()...)
	defer span.End()

	tr := newBatchTracker(uuid.NewString(), c.observer, c.metrics, span)
	ctx = withTracker(ctx, tr)

	token, err := c.tokens.FetchToken(ctx)
	if err != nil {
		tr.finish(err)
		for range prompts {
			c.metrics.ObserveCall(string(StateFail))
		}
		observability.RecordError(span, err)
		return make([]Reply, len(prompts)), err
	}

	replies, errs := c.dialog.SendBatch(ctx, token, reqs, p.Timeout, p.Concurrent)

	var joined []error
	for i, e := range errs {
		if e != nil {
			joined = append(joined, fmt.Errorf("prompt %d: %w", i, e))
		}
	}
	err = errors.Join(joined...)
	tr.finish(err)
	if err != nil {
		observability.RecordError(span, err)
		c.logger.WithContext(ctx).Warnf("batch inference: %d of %d prompts failed", len(joined), len(prompts))
	}
	return replies, err
}
