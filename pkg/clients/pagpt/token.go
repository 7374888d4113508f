package pagpt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	pkgerrors "pagptclient/pkg/errors"
	"pagptclient/pkg/observability"
	"pagptclient/pkg/redact"
)

type tokenResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// TokenFetcher 获取短期 access token，不做缓存
type TokenFetcher struct {
	gw        *gateway
	headers   *HeaderBuilder
	url       string
	appKey    string
	appSecret string
	timeout   time.Duration
	logger    *log.Helper
}

func newTokenFetcher(gw *gateway, headers *HeaderBuilder, tokenURL, appKey, appSecret string, timeout time.Duration, logger log.Logger) *TokenFetcher {
	return &TokenFetcher{
		gw:        gw,
		headers:   headers,
		url:       tokenURL,
		appKey:    appKey,
		appSecret: appSecret,
		timeout:   timeout,
		logger:    log.NewHelper(log.With(logger, "module", "pagpt-token")),
	}
}

// FetchToken 请求 token 接口
// 密钥/签名错误原样返回；其余失败统一为 TokenUnavailable
func (f *TokenFetcher) FetchToken(ctx context.Context) (string, error) {
	ctx, span := observability.StartSpan(ctx, "pagpt.fetch_token")
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("appKey", f.appKey)
	form.Set("appSecret", f.appSecret)

	resp, err := f.gw.post(ctx, f.url, f.headers.TokenHeaders, []byte(form.Encode()))
	if err != nil {
		observability.RecordError(span, err)
		if pkgerrors.IsCryptoError(err) {
			return "", err
		}
		f.logger.WithContext(ctx).Errorf("token request failed: %v", err)
		return "", pkgerrors.NewTokenUnavailable(err, "token request failed")
	}

	if !resp.ok() {
		f.logger.WithContext(ctx).Errorf("token request failed: status=%d headers=[%s] body=%s",
			resp.status, redact.HeaderString(resp.requestHeader), redact.Body(string(resp.body), f.appSecret))
		err := pkgerrors.NewTokenUnavailable(nil, fmt.Sprintf("token endpoint returned status %d", resp.status))
		observability.RecordError(span, err)
		return "", err
	}

	var parsed tokenResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil || parsed.Data.Token == "" {
		f.logger.WithContext(ctx).Errorf("token response unparseable: status=%d body=%s",
			resp.status, redact.Body(string(resp.body), f.appSecret))
		err := pkgerrors.NewTokenUnavailable(err, "token response has no data.token")
		observability.RecordError(span, err)
		return "", err
	}

	return parsed.Data.Token, nil
}
