package pagpt

import (
	"fmt"
	"time"

	pkgerrors "pagptclient/pkg/errors"
)

// InferenceParams 单次/批量调用参数
type InferenceParams struct {
	Temperature  float64
	TopP         float64
	SessionID    string
	OwnHistory   []string
	MaxNewTokens int
	// Timeout 单个对话请求超时
	Timeout time.Duration
	// Concurrent 批量调用的最大并发
	Concurrent int
}

func defaultParams(cfg Config) InferenceParams {
	return InferenceParams{
		Temperature:  DefaultTemperature,
		TopP:         DefaultTopP,
		MaxNewTokens: DefaultMaxNewTokens,
		Timeout:      cfg.DialogTimeout,
		Concurrent:   cfg.Concurrent,
	}
}

func (p InferenceParams) validate() error {
	if p.Timeout < 0 {
		return pkgerrors.NewInvalidParameter(fmt.Sprintf("timeout must not be negative, got %v", p.Timeout))
	}
	return nil
}

// InferenceOption 调用参数选项
type InferenceOption func(*InferenceParams)

// WithTemperature 设置 temperature，取值 [0, 2]
func WithTemperature(t float64) InferenceOption {
	return func(p *InferenceParams) { p.Temperature = t }
}

// WithTopP 设置 top_p，取值 (0, 1]
func WithTopP(topP float64) InferenceOption {
	return func(p *InferenceParams) { p.TopP = topP }
}

// WithSessionID 指定会话 ID，未指定时每次调用生成新的 UUID v4
func WithSessionID(id string) InferenceOption {
	return func(p *InferenceParams) { p.SessionID = id }
}

// WithOwnHistory 随请求携带历史对话
func WithOwnHistory(history ...string) InferenceOption {
	return func(p *InferenceParams) { p.OwnHistory = history }
}

// WithMaxNewTokens 设置最大生成 token 数
func WithMaxNewTokens(n int) InferenceOption {
	return func(p *InferenceParams) { p.MaxNewTokens = n }
}

// WithTimeout 设置单个对话请求超时
func WithTimeout(d time.Duration) InferenceOption {
	return func(p *InferenceParams) { p.Timeout = d }
}

// WithConcurrency 设置批量调用的最大并发
func WithConcurrency(n int) InferenceOption {
	return func(p *InferenceParams) { p.Concurrent = n }
}
