package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fixture struct {
	PAGPT struct {
		TokenURL  string `yaml:"token_url"`
		DialogURL string `yaml:"dialog_url"`
		SceneID   string `yaml:"scene_id"`
		Timeout   string `yaml:"dialog_timeout"`
	} `yaml:"pagpt"`
}

func writeFixture(t *testing.T, f fixture) string {
	t.Helper()
	data, err := yaml.Marshal(f)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pagpt.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newFixture() fixture {
	var f fixture
	f.PAGPT.TokenURL = "https://gateway.example.com/token"
	f.PAGPT.DialogURL = "https://gateway.example.com/dialog"
	f.PAGPT.SceneID = "scene-1"
	f.PAGPT.Timeout = "90s"
	return f
}

func TestUnifiedConfigLoader_Local(t *testing.T) {
	t.Setenv("CONFIG_MODE", "local")
	path := writeFixture(t, newFixture())

	cfg, err := NewUnifiedConfigLoader(&LoaderOptions{
		ConfigPath:   path,
		ServiceName:  "pagpt-client",
		RequiredKeys: []string{"pagpt.token_url", "pagpt.dialog_url"},
	}).Load()
	require.NoError(t, err)
	defer cfg.Close()

	assert.Equal(t, ModeLocal, cfg.GetMode())
	assert.Equal(t, "scene-1", cfg.GetString("pagpt.scene_id"))
	assert.Equal(t, 90*time.Second, cfg.GetDuration("pagpt.dialog_timeout"))

	var section struct {
		TokenURL string `mapstructure:"token_url"`
	}
	require.NoError(t, cfg.UnmarshalKey("pagpt", &section))
	assert.Equal(t, "https://gateway.example.com/token", section.TokenURL)
}

func TestUnifiedConfigLoader_EnvOverride(t *testing.T) {
	t.Setenv("CONFIG_MODE", "local")
	t.Setenv("PAGPT_CLIENT_PAGPT_SCENE_ID", "scene-from-env")
	path := writeFixture(t, newFixture())

	cfg, err := NewUnifiedConfigLoader(&LoaderOptions{
		ConfigPath:       path,
		ServiceName:      "pagpt-client",
		AllowEnvOverride: true,
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "scene-from-env", cfg.GetString("pagpt.scene_id"))
}

func TestUnifiedConfigLoader_MissingKeys(t *testing.T) {
	t.Setenv("CONFIG_MODE", "local")
	path := writeFixture(t, newFixture())

	_, err := NewUnifiedConfigLoader(&LoaderOptions{
		ConfigPath:   path,
		ServiceName:  "pagpt-client",
		RequiredKeys: []string{"pagpt.api_credential"},
	}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagpt.api_credential")
}

func TestManager_UnsupportedMode(t *testing.T) {
	t.Setenv("CONFIG_MODE", "etcd")
	err := NewManager(nil).LoadConfig("ignored.yaml", "pagpt-client")
	assert.Error(t, err)
}

func TestManager_LoadReader(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.LoadReader(strings.NewReader("pagpt:\n  scene_id: s2\n"), "yaml"))
	assert.Equal(t, "s2", m.GetString("pagpt.scene_id"))
	assert.True(t, m.IsSet("pagpt.scene_id"))
	assert.NoError(t, m.Close())
}

func TestManager_ConcurrentReload(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.LoadReader(strings.NewReader("pagpt:\n  scene_id: s0\n"), "yaml"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			m.onConfigChange("", "DEFAULT_GROUP", "pagpt.yaml", "pagpt:\n  scene_id: s1\n  token_url: https://gateway.example.com/token\n")
		}
	}()
	go func() {
		defer wg.Done()
		var section struct {
			SceneID string `mapstructure:"scene_id"`
		}
		for i := 0; i < 50; i++ {
			_ = m.GetString("pagpt.scene_id")
			_ = m.IsSet("pagpt.token_url")
			_ = m.GetDuration("pagpt.dialog_timeout")
			_ = m.UnmarshalKey("pagpt", &section)
		}
	}()
	wg.Wait()

	assert.Equal(t, "s1", m.GetString("pagpt.scene_id"))
	assert.True(t, m.IsSet("pagpt.token_url"))
}

func TestNacosConfig_Defaults(t *testing.T) {
	t.Setenv("NACOS_NAMESPACE", "prod")
	c := &NacosConfig{ServerAddr: "127.0.0.1"}
	c.applyDefaults("pagpt-client")

	assert.Equal(t, uint64(8848), c.ServerPort)
	assert.Equal(t, "DEFAULT_GROUP", c.Group)
	assert.Equal(t, "pagpt-client.yaml", c.DataID)
	assert.Equal(t, "prod", c.Namespace)
}

func TestValidator(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.LoadReader(strings.NewReader(`
pagpt:
  token_url: https://gateway.example.com/token
  dialog_url: "ftp://nope"
  scene_id: "  "
`), "yaml"))

	assert.NoError(t, NewValidator().AddRule("pagpt.token_url", true, ValidateURL).Validate(m))
	assert.Error(t, NewValidator().AddRule("pagpt.dialog_url", true, ValidateURL).Validate(m))
	assert.Error(t, NewValidator().AddRule("pagpt.scene_id", true, ValidateNotEmpty).Validate(m))
	assert.Error(t, NewValidator().AddRule("pagpt.app_key", true, nil).Validate(m))
	assert.NoError(t, NewValidator().AddRule("pagpt.app_key", false, ValidateNotEmpty).Validate(m))
}
