package pagpt

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pagptclient/pkg/auth"
	"pagptclient/pkg/auth/authtest"
	"pagptclient/pkg/logging"
	"pagptclient/pkg/monitoring"
)

const (
	testCredential = "cred-123"
	testAppKey     = "app-key-1"
	testAppSecret  = "app-secret-XYZ"
	testSceneID    = "scene-7"
	testToken      = "tok-abc-123"
)

// fakeGateway 模拟开放平台 token 与对话接口
type fakeGateway struct {
	t      *testing.T
	signer *auth.Signer

	mu           sync.Mutex
	calls        []string
	tokenForms   []url.Values
	tokenRaw     []string
	dialogHeader []http.Header
	dialogBodies []InferenceRequest

	// tokenHandler 返回 token 接口的状态码和响应体
	tokenHandler func(n int) (int, string)
	// dialogHandler 返回对话接口的状态码和响应体
	dialogHandler func(req InferenceRequest) (int, string)
	dialogDelay   time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	signer, err := auth.NewSigner(authtest.KeyHex(t))
	require.NoError(t, err)

	return &fakeGateway{
		t:      t,
		signer: signer,
		tokenHandler: func(int) (int, string) {
			return http.StatusOK, `{"data":{"token":"` + testToken + `"}}`
		},
		dialogHandler: func(req InferenceRequest) (int, string) {
			body, _ := json.Marshal(map[string]interface{}{"answer": req.Prompt})
			return http.StatusOK, string(body)
		},
	}
}

func (g *fakeGateway) start() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", g.handleToken)
	mux.HandleFunc("/dialog", g.handleDialog)
	srv := httptest.NewServer(mux)
	g.t.Cleanup(srv.Close)
	return srv
}

func (g *fakeGateway) verify(r *http.Request) bool {
	return g.signer.Verify(r.Header.Get(HeaderRequestTime), r.Header.Get(HeaderSignature)) == nil
}

func (g *fakeGateway) handleToken(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	g.mu.Lock()
	g.calls = append(g.calls, "token")
	g.tokenForms = append(g.tokenForms, form)
	g.tokenRaw = append(g.tokenRaw, string(raw))
	n := len(g.tokenForms)
	g.mu.Unlock()

	if !g.verify(r) || r.Header.Get(HeaderCode) != CodeToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	status, body := g.tokenHandler(n)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (g *fakeGateway) handleDialog(w http.ResponseWriter, r *http.Request) {
	cur := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		prev := g.maxInflight.Load()
		if cur <= prev || g.maxInflight.CompareAndSwap(prev, cur) {
			break
		}
	}

	var req InferenceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	g.mu.Lock()
	g.calls = append(g.calls, "dialog")
	g.dialogHeader = append(g.dialogHeader, r.Header.Clone())
	g.dialogBodies = append(g.dialogBodies, req)
	g.mu.Unlock()

	if g.dialogDelay > 0 {
		time.Sleep(g.dialogDelay)
	}
	if !g.verify(r) || r.Header.Get(HeaderAccessToken) != testToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	status, body := g.dialogHandler(req)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func testConfig(srv *httptest.Server, keyHex string) Config {
	return Config{
		APICredential:    testCredential,
		APIPrivateKeyHex: keyHex,
		AppKey:           testAppKey,
		AppSecret:        testAppSecret,
		SceneID:          testSceneID,
		TokenURL:         srv.URL + "/token",
		DialogURL:        srv.URL + "/dialog",
	}
}

type testEnv struct {
	gw      *fakeGateway
	client  *Client
	logs    *observer.ObservedLogs
	metrics *monitoring.ClientMetrics
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...ClientOption) *testEnv {
	t.Helper()
	gw := newFakeGateway(t)
	srv := gw.start()

	cfg := testConfig(srv, authtest.KeyHex(t))
	if mutate != nil {
		mutate(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := log.Logger(logging.NewZapLogger(zap.New(core)))
	metrics := monitoring.NewClientMetrics(prometheus.NewRegistry())

	client, err := NewClient(cfg, logger, append([]ClientOption{WithMetrics(metrics)}, opts...)...)
	require.NoError(t, err)

	return &testEnv{gw: gw, client: client, logs: logs, metrics: metrics}
}

// recordingDoer 记录发出的请求，原样返回预设响应
type recordingDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	status   int
	body     string
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, string(raw))
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	rec.WriteHeader(d.status)
	_, _ = rec.WriteString(d.body)
	return rec.Result(), nil
}
