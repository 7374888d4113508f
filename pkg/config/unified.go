package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// UnifiedConfig 统一配置接口
type UnifiedConfig interface {
	// GetString 获取字符串配置
	GetString(key string) string
	// GetDuration 获取时间间隔配置
	GetDuration(key string) time.Duration
	// UnmarshalKey 解析指定key的配置到结构体
	UnmarshalKey(key string, rawVal interface{}) error
	// IsSet 检查key是否被设置
	IsSet(key string) bool
	// GetMode 获取配置模式
	GetMode() ConfigMode
	// Close 关闭配置管理器
	Close() error
}

var _ UnifiedConfig = (*Manager)(nil)

// LoaderOptions 配置加载选项
type LoaderOptions struct {
	// ConfigPath 配置文件路径
	ConfigPath string
	// ServiceName 服务名称
	ServiceName string
	// EnvPrefix 环境变量前缀（默认为服务名大写）
	EnvPrefix string
	// AllowEnvOverride 是否允许环境变量覆盖配置文件
	AllowEnvOverride bool
	// RequiredKeys 必需的配置键
	RequiredKeys []string
	// Logger 日志
	Logger log.Logger
}

// UnifiedConfigLoader 统一配置加载器
type UnifiedConfigLoader struct {
	manager *Manager
	options *LoaderOptions
}

// NewUnifiedConfigLoader 创建统一配置加载器
func NewUnifiedConfigLoader(opts *LoaderOptions) *UnifiedConfigLoader {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = strings.ToUpper(strings.ReplaceAll(opts.ServiceName, "-", "_"))
	}

	return &UnifiedConfigLoader{
		manager: NewManager(opts.Logger),
		options: opts,
	}
}

// Load 加载配置
func (l *UnifiedConfigLoader) Load() (UnifiedConfig, error) {
	// 先设置环境变量覆盖，ReadInConfig 之后的读取都会生效
	if l.options.AllowEnvOverride {
		l.manager.mu.Lock()
		l.manager.viper.SetEnvPrefix(l.options.EnvPrefix)
		l.manager.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		l.manager.viper.AutomaticEnv()
		l.manager.mu.Unlock()
	}

	if err := l.manager.LoadConfig(l.options.ConfigPath, l.options.ServiceName); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := l.validateRequiredKeys(); err != nil {
		return nil, err
	}

	return l.manager, nil
}

// validateRequiredKeys 验证必需的配置键
func (l *UnifiedConfigLoader) validateRequiredKeys() error {
	var missing []string
	for _, key := range l.options.RequiredKeys {
		if !l.manager.IsSet(key) {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config keys: %v", missing)
	}

	return nil
}

// ==================== Manager 实现 UnifiedConfig 接口 ====================

// GetDuration 获取时间间隔配置
func (m *Manager) GetDuration(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetDuration(key)
}

// IsSet 检查key是否被设置
func (m *Manager) IsSet(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.IsSet(key)
}

// ==================== 配置验证器 ====================

// Validator 配置验证器
type Validator struct {
	rules []ValidationRule
}

// ValidationRule 验证规则
type ValidationRule struct {
	Key       string
	Required  bool
	Validator func(value string) error
}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{
		rules: make([]ValidationRule, 0),
	}
}

// AddRule 添加验证规则
func (v *Validator) AddRule(key string, required bool, validator func(value string) error) *Validator {
	v.rules = append(v.rules, ValidationRule{
		Key:       key,
		Required:  required,
		Validator: validator,
	})
	return v
}

// Validate 验证配置
func (v *Validator) Validate(config UnifiedConfig) error {
	for _, rule := range v.rules {
		if rule.Required && !config.IsSet(rule.Key) {
			return fmt.Errorf("required config key '%s' is not set", rule.Key)
		}

		if config.IsSet(rule.Key) && rule.Validator != nil {
			if err := rule.Validator(config.GetString(rule.Key)); err != nil {
				return fmt.Errorf("validation failed for key '%s': %w", rule.Key, err)
			}
		}
	}
	return nil
}

// ==================== 常用验证器 ====================

// ValidateURL 验证 URL 格式
func ValidateURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL format: %s", value)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", value)
	}
	return nil
}

// ValidateNotEmpty 验证非空
func ValidateNotEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}
