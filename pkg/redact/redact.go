// Package redact 日志输出前的敏感信息脱敏
package redact

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Placeholder 脱敏占位符
const Placeholder = "[REDACTED]"

var (
	// 敏感请求头（小写比较）
	sensitiveHeaders = map[string]struct{}{
		"authorization":    {},
		"access_token":     {},
		"openapisignature": {},
		"cookie":           {},
	}

	// JSON 字段名包含以下片段时脱敏
	sensitiveFieldFragments = []string{"token", "secret", "authorization", "password", "signature"}
)

// Headers 返回脱敏后的请求头，便于结构化日志输出
func Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if IsSensitiveHeader(key) {
			out[key] = Placeholder
			continue
		}
		out[key] = strings.Join(values, ",")
	}
	return out
}

// HeaderString 以稳定顺序渲染脱敏后的请求头
func HeaderString(h http.Header) string {
	redacted := Headers(h)
	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(redacted[k])
	}
	return b.String()
}

// IsSensitiveHeader 判断请求头是否需要脱敏
func IsSensitiveHeader(key string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(key)]
	return ok
}

// Body 脱敏响应体
// JSON 响应按字段名递归脱敏，非 JSON 文本只替换已知的敏感值
func Body(body string, secrets ...string) string {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(body), &jsonData); err == nil {
		switch jsonData.(type) {
		case map[string]interface{}, []interface{}:
			redacted, _ := json.Marshal(redactJSON(jsonData, secrets))
			return string(redacted)
		}
	}
	return Secrets(body, secrets...)
}

// Secrets 替换文本中出现的敏感值
func Secrets(text string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, Placeholder)
	}
	return text
}

func redactJSON(data interface{}, secrets []string) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitiveField(key) {
				if _, ok := value.(string); ok {
					result[key] = Placeholder
					continue
				}
			}
			result[key] = redactJSON(value, secrets)
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = redactJSON(item, secrets)
		}
		return result

	case string:
		return Secrets(v, secrets...)

	default:
		return v
	}
}

func isSensitiveField(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, fragment := range sensitiveFieldFragments {
		if strings.Contains(lowerKey, fragment) {
			return true
		}
	}
	return false
}
