package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/spf13/viper"
)

// ConfigMode 配置模式
type ConfigMode string

const (
	// ModeLocal 本地配置模式
	ModeLocal ConfigMode = "local"
	// ModeNacos Nacos配置中心模式
	ModeNacos ConfigMode = "nacos"
)

// NacosConfig Nacos配置
type NacosConfig struct {
	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`
	ServerPort uint64 `mapstructure:"server_port" yaml:"server_port"`
	Namespace  string `mapstructure:"namespace" yaml:"namespace"`
	Group      string `mapstructure:"group" yaml:"group"`
	DataID     string `mapstructure:"data_id" yaml:"data_id"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	LogDir     string `mapstructure:"log_dir" yaml:"log_dir"`
	CacheDir   string `mapstructure:"cache_dir" yaml:"cache_dir"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	TimeoutMs  uint64 `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// applyDefaults 环境变量覆盖并补齐默认值
func (c *NacosConfig) applyDefaults(serviceName string) {
	if addr := os.Getenv("NACOS_SERVER_ADDR"); addr != "" {
		c.ServerAddr = addr
	}
	if ns := os.Getenv("NACOS_NAMESPACE"); ns != "" {
		c.Namespace = ns
	}
	if group := os.Getenv("NACOS_GROUP"); group != "" {
		c.Group = group
	}
	if dataID := os.Getenv("NACOS_DATA_ID"); dataID != "" {
		c.DataID = dataID
	} else if c.DataID == "" {
		c.DataID = serviceName + ".yaml"
	}
	if username := os.Getenv("NACOS_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv("NACOS_PASSWORD"); password != "" {
		c.Password = password
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8848
	}
	if c.Group == "" {
		c.Group = "DEFAULT_GROUP"
	}
	if c.LogDir == "" {
		c.LogDir = "/tmp/nacos/log"
	}
	if c.CacheDir == "" {
		c.CacheDir = "/tmp/nacos/cache"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
}

// Manager 配置管理器
// viper 的读写由 mu 保护，Nacos 推送的变更在 SDK 的 goroutine 中写入
type Manager struct {
	mu          sync.RWMutex
	mode        ConfigMode
	nacosClient config_client.IConfigClient
	nacosConfig *NacosConfig
	viper       *viper.Viper
	logger      *log.Helper
}

// NewManager 创建配置管理器
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Manager{
		mode:   ModeLocal,
		viper:  viper.New(),
		logger: log.NewHelper(log.With(logger, "module", "config")),
	}
}

// LoadConfig 加载配置
// configPath: 本地配置文件路径（本地模式下为完整配置，Nacos 模式下只含 nacos 连接信息）
// serviceName: 服务名称（用作Nacos DataID的前缀）
func (m *Manager) LoadConfig(configPath, serviceName string) error {
	mode := os.Getenv("CONFIG_MODE")
	if mode == "" {
		mode = string(ModeLocal)
	}
	m.mode = ConfigMode(strings.ToLower(mode))

	switch m.mode {
	case ModeNacos:
		return m.loadFromNacos(configPath, serviceName)
	case ModeLocal:
		return m.loadFromLocal(configPath)
	default:
		return fmt.Errorf("unsupported config mode: %s", mode)
	}
}

// LoadReader 从内存内容加载配置，configType 为 yaml/json/toml 等
func (m *Manager) LoadReader(r io.Reader, configType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viper.SetConfigType(configType)
	if err := m.viper.ReadConfig(r); err != nil {
		return fmt.Errorf("parse %s config failed: %w", configType, err)
	}
	return nil
}

// loadFromLocal 从本地文件加载配置
func (m *Manager) loadFromLocal(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viper.SetConfigFile(configPath)
	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read local config failed: %w", err)
	}

	m.logger.Infof("loaded config from local file: %s", configPath)
	return nil
}

// loadFromNacos 从Nacos配置中心加载配置
func (m *Manager) loadFromNacos(configPath, serviceName string) error {
	localViper := viper.New()
	localViper.SetConfigFile(configPath)
	if err := localViper.ReadInConfig(); err != nil {
		return fmt.Errorf("read nacos connection config failed: %w", err)
	}

	m.nacosConfig = &NacosConfig{}
	if err := localViper.UnmarshalKey("nacos", m.nacosConfig); err != nil {
		return fmt.Errorf("unmarshal nacos config failed: %w", err)
	}
	m.nacosConfig.applyDefaults(serviceName)

	serverConfigs := []constant.ServerConfig{
		*constant.NewServerConfig(
			m.nacosConfig.ServerAddr,
			m.nacosConfig.ServerPort,
			constant.WithContextPath("/nacos"),
		),
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNamespaceId(m.nacosConfig.Namespace),
		constant.WithTimeoutMs(m.nacosConfig.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(m.nacosConfig.LogDir),
		constant.WithCacheDir(m.nacosConfig.CacheDir),
		constant.WithLogLevel(m.nacosConfig.LogLevel),
		constant.WithUsername(m.nacosConfig.Username),
		constant.WithPassword(m.nacosConfig.Password),
	)

	configClient, err := clients.NewConfigClient(
		vo.NacosClientParam{
			ClientConfig:  &clientConfig,
			ServerConfigs: serverConfigs,
		},
	)
	if err != nil {
		return fmt.Errorf("create nacos client failed: %w", err)
	}
	m.nacosClient = configClient

	content, err := configClient.GetConfig(vo.ConfigParam{
		DataId: m.nacosConfig.DataID,
		Group:  m.nacosConfig.Group,
	})
	if err != nil {
		return fmt.Errorf("get config from nacos failed: %w", err)
	}

	if err := m.LoadReader(strings.NewReader(content), "yaml"); err != nil {
		return err
	}

	m.logger.Infof("loaded config from nacos: %s/%s (namespace: %s)",
		m.nacosConfig.Group, m.nacosConfig.DataID, m.nacosConfig.Namespace)

	// 凭证轮换通过配置中心推送，客户端下次构造时生效
	if err := m.watchConfigChange(); err != nil {
		m.logger.Warnf("watch config change failed: %v", err)
	}

	return nil
}

// watchConfigChange 监听配置变更
func (m *Manager) watchConfigChange() error {
	return m.nacosClient.ListenConfig(vo.ConfigParam{
		DataId: m.nacosConfig.DataID,
		Group:  m.nacosConfig.Group,
		OnChange: m.onConfigChange,
	})
}

func (m *Manager) onConfigChange(namespace, group, dataId, data string) {
	m.logger.Infof("config changed: %s/%s", group, dataId)
	if err := m.LoadReader(strings.NewReader(data), "yaml"); err != nil {
		m.logger.Errorf("reload config failed: %v", err)
	}
}

// UnmarshalKey 解析指定key的配置到结构体
func (m *Manager) UnmarshalKey(key string, rawVal interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.UnmarshalKey(key, rawVal)
}

// GetString 获取字符串配置
func (m *Manager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.GetString(key)
}

// GetMode 获取配置模式
func (m *Manager) GetMode() ConfigMode {
	return m.mode
}

// Close 关闭配置管理器
func (m *Manager) Close() error {
	if m.nacosClient != nil {
		return m.nacosClient.CancelListenConfig(vo.ConfigParam{
			DataId: m.nacosConfig.DataID,
			Group:  m.nacosConfig.Group,
		})
	}
	return nil
}
