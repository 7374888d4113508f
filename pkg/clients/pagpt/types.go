package pagpt

import (
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "pagptclient/pkg/errors"
)

// 默认参数
const (
	DefaultTemperature   = 0.5
	DefaultTopP          = 0.5
	DefaultMaxNewTokens  = 1000
	DefaultDialogTimeout = 120 * time.Second
	DefaultTokenTimeout  = 30 * time.Second
	DefaultConcurrent    = 10
)

// Credentials 开放平台凭证，构造后只读
type Credentials struct {
	APICredential    string
	APIPrivateKeyHex string
	AppKey           string
	AppSecret        string
	SceneID          string
}

// Endpoints 网关地址，构造后只读
type Endpoints struct {
	TokenURL  string
	DialogURL string
}

// TokenRequestData 历史遗留的 token 请求配置
// 配置字段名沿用旧命名，内部按语义重命名
type TokenRequestData struct {
	GrantType    string `mapstructure:"grant_type" json:"grant_type"`
	ClientID     string `mapstructure:"user_mgmt_client_id" json:"user_mgmt_client_id"`
	Scope        string `mapstructure:"scope" json:"scope"`
	ClientSecret string `mapstructure:"user_mgmt_client_secret" json:"user_mgmt_client_secret"`
	B2CTenantID  string `mapstructure:"tenant_id" json:"tenant_id"`
	ExtensionID  string `mapstructure:"ext_app_client_id" json:"ext_app_client_id"`
}

// GenerateParam 采样参数
type GenerateParam struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// InferenceRequest 对话接口请求体
type InferenceRequest struct {
	Prompt        string        `json:"prompt"`
	SessionID     string        `json:"sessionId"`
	SceneID       string        `json:"sceneId"`
	UseOwnHistory bool          `json:"isUseOwnHistory"`
	OwnHistory    []string      `json:"ownHistory"`
	MaxNewTokens  int           `json:"max_new_tokens"`
	GenerateParam GenerateParam `json:"generateParam"`
}

// NewInferenceRequest 构建请求，isUseOwnHistory 由 ownHistory 是否为空决定
func NewInferenceRequest(prompt, sceneID, sessionID string, p InferenceParams) InferenceRequest {
	history := make([]string, len(p.OwnHistory))
	copy(history, p.OwnHistory)

	return InferenceRequest{
		Prompt:        prompt,
		SessionID:     sessionID,
		SceneID:       sceneID,
		UseOwnHistory: len(history) > 0,
		OwnHistory:    history,
		MaxNewTokens:  p.MaxNewTokens,
		GenerateParam: GenerateParam{
			Temperature: p.Temperature,
			TopP:        p.TopP,
		},
	}
}

// Validate 校验请求参数
func (r InferenceRequest) Validate() error {
	if r.GenerateParam.Temperature < 0 || r.GenerateParam.Temperature > 2 {
		return pkgerrors.NewInvalidParameter(fmt.Sprintf("temperature must be in [0, 2], got %v", r.GenerateParam.Temperature))
	}
	if r.GenerateParam.TopP <= 0 || r.GenerateParam.TopP > 1 {
		return pkgerrors.NewInvalidParameter(fmt.Sprintf("top_p must be in (0, 1], got %v", r.GenerateParam.TopP))
	}
	if r.MaxNewTokens < 1 {
		return pkgerrors.NewInvalidParameter(fmt.Sprintf("max_new_tokens must be >= 1, got %d", r.MaxNewTokens))
	}
	if r.UseOwnHistory != (len(r.OwnHistory) > 0) {
		return pkgerrors.NewInvalidParameter("isUseOwnHistory must match ownHistory")
	}
	return nil
}

// Reply 对话接口返回的 JSON 文档，校验合法后原样交给调用方
// 可以是任意 JSON 值，nil 表示没有结果
type Reply json.RawMessage

// Decode 将回复解析到 v
func (r Reply) Decode(v interface{}) error {
	return json.Unmarshal(r, v)
}

// Object 以 JSON 对象形式读取回复，回复不是对象时返回 false
func (r Reply) Object() (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal(r, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// MarshalJSON 原样输出回复
func (r Reply) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}
