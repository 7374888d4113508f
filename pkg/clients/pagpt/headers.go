package pagpt

import (
	"net/http"
	"strconv"
	"time"

	"pagptclient/pkg/auth"
)

// 网关请求头，名称需与网关保持大小写一致
const (
	HeaderAuthType    = "X-Auth-Type"
	HeaderCredential  = "openApiCredential"
	HeaderRequestTime = "openApiRequestTime"
	HeaderSignature   = "openApiSignature"
	HeaderCode        = "openApiCode"
	HeaderContentType = "Content-Type"
	HeaderAccessToken = "access_token"
)

const (
	AuthTypeAppToken = "App_Token"

	// CodeToken token 接口编码
	CodeToken = "API026878"
	// CodeDialog 对话接口编码
	CodeDialog = "API026840"

	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

// SignedHeaders 单次请求的签名头，随请求创建、用完即弃
type SignedHeaders struct {
	AuthType     string
	Credential   string
	RequestTime  string
	Signature    string
	ContentType  string
	EndpointCode string
	AccessToken  string
}

// Apply 写入请求头
// 直接写 map 以保留 openApiXxx 的原始大小写
func (s SignedHeaders) Apply(h http.Header) {
	h[HeaderAuthType] = []string{s.AuthType}
	h[HeaderCredential] = []string{s.Credential}
	h[HeaderRequestTime] = []string{s.RequestTime}
	h[HeaderSignature] = []string{s.Signature}
	if s.EndpointCode != "" {
		h[HeaderCode] = []string{s.EndpointCode}
	}
	if s.ContentType != "" {
		h[HeaderContentType] = []string{s.ContentType}
	}
	if s.AccessToken != "" {
		h[HeaderAccessToken] = []string{s.AccessToken}
	}
}

// HeaderBuilder 生成各接口的签名头
type HeaderBuilder struct {
	credential string
	signer     *auth.Signer
	now        func() time.Time
}

// NewHeaderBuilder 创建 HeaderBuilder，now 为 nil 时使用 time.Now
func NewHeaderBuilder(credential string, signer *auth.Signer, now func() time.Time) *HeaderBuilder {
	if now == nil {
		now = time.Now
	}
	return &HeaderBuilder{
		credential: credential,
		signer:     signer,
		now:        now,
	}
}

// BaseHeaders 通用签名头：每次调用重新取毫秒时间戳并签名
func (b *HeaderBuilder) BaseHeaders() (SignedHeaders, error) {
	requestTime := strconv.FormatInt(b.now().UnixMilli(), 10)

	signature, err := b.signer.Sign(requestTime)
	if err != nil {
		return SignedHeaders{}, err
	}

	return SignedHeaders{
		AuthType:    AuthTypeAppToken,
		Credential:  b.credential,
		RequestTime: requestTime,
		Signature:   signature,
	}, nil
}

// TokenHeaders token 接口签名头
func (b *HeaderBuilder) TokenHeaders() (SignedHeaders, error) {
	h, err := b.BaseHeaders()
	if err != nil {
		return SignedHeaders{}, err
	}
	h.ContentType = ContentTypeForm
	h.EndpointCode = CodeToken
	return h, nil
}

// DialogHeaders 对话接口签名头
func (b *HeaderBuilder) DialogHeaders(token string) (SignedHeaders, error) {
	h, err := b.BaseHeaders()
	if err != nil {
		return SignedHeaders{}, err
	}
	h.ContentType = ContentTypeJSON
	h.EndpointCode = CodeDialog
	h.AccessToken = token
	return h, nil
}
