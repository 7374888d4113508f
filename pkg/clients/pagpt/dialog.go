package pagpt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"

	pkgerrors "pagptclient/pkg/errors"
	"pagptclient/pkg/observability"
	"pagptclient/pkg/redact"
)

// InferenceClient 对话接口客户端
type InferenceClient struct {
	gw      *gateway
	headers *HeaderBuilder
	url     string
	logger  *log.Helper
}

func newInferenceClient(gw *gateway, headers *HeaderBuilder, dialogURL string, logger log.Logger) *InferenceClient {
	return &InferenceClient{
		gw:      gw,
		headers: headers,
		url:     dialogURL,
		logger:  log.NewHelper(log.With(logger, "module", "pagpt-dialog")),
	}
}

// Send 发送单个对话请求
func (c *InferenceClient) Send(ctx context.Context, token string, req InferenceRequest, timeout time.Duration) (Reply, error) {
	ctx, span := observability.StartSpan(ctx, "pagpt.dialog",
		attribute.String("pagpt.session_id", req.SessionID),
	)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.NewInvalidParameter(fmt.Sprintf("marshal dialog request: %v", err))
	}

	sign := func() (SignedHeaders, error) { return c.headers.DialogHeaders(token) }
	resp, err := c.gw.post(ctx, c.url, sign, body)
	if err != nil {
		observability.RecordError(span, err)
		if pkgerrors.IsCryptoError(err) {
			return nil, err
		}
		c.logger.WithContext(ctx).Errorf("dialog request failed: %s", redact.Secrets(err.Error(), token))
		return nil, pkgerrors.NewDialogTransport(err, "dialog request failed")
	}

	if !resp.ok() {
		c.logger.WithContext(ctx).Errorf("dialog request rejected: status=%d headers=[%s] body=%s",
			resp.status, redact.HeaderString(resp.requestHeader), redact.Body(string(resp.body), token))
		err := pkgerrors.NewDialogRejected(resp.status, fmt.Sprintf("dialog endpoint returned status %d", resp.status))
		observability.RecordError(span, err)
		return nil, err
	}

	if !json.Valid(resp.body) {
		c.logger.WithContext(ctx).Errorf("dialog response unparseable: status=%d body=%s",
			resp.status, redact.Body(string(resp.body), token))
		err := pkgerrors.NewDialogRejected(resp.status, "dialog response is not valid JSON")
		observability.RecordError(span, err)
		return nil, err
	}
	reply := make(Reply, len(resp.body))
	copy(reply, resp.body)

	return reply, nil
}

// SendBatch 并发发送对话请求，同一时刻在途请求不超过 concurrent
// 返回结果与 reqs 按位置对齐，单个失败不影响其他请求
func (c *InferenceClient) SendBatch(ctx context.Context, token string, reqs []InferenceRequest, timeout time.Duration, concurrent int) ([]Reply, []error) {
	if concurrent <= 0 {
		concurrent = DefaultConcurrent
	}

	replies := make([]Reply, len(reqs))
	errs := make([]error, len(reqs))
	semaphore := make(chan struct{}, concurrent)
	parent := trackerFrom(ctx)

	var wg sync.WaitGroup
	launched := 0
dispatch:
	for launched < len(reqs) {
		if ctx.Err() != nil {
			break
		}
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-semaphore
			break
		}
		i := launched
		launched++
		wg.Add(1)

		go func(index int) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			itemCtx := ctx
			tr := parent.fork(parent.childID(index), nil)
			if tr != nil {
				itemCtx = withTracker(ctx, tr)
			}

			reply, err := c.Send(itemCtx, token, reqs[index], timeout)
			tr.finish(err)
			replies[index] = reply
			errs[index] = err
		}(i)
	}
	wg.Wait()

	// 取消后未发出的请求
	for i := launched; i < len(reqs); i++ {
		errs[i] = pkgerrors.NewDialogTransport(ctx.Err(), "batch cancelled before request was sent")
		parent.fork(parent.childID(i), nil).finish(errs[i])
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	c.logger.WithContext(ctx).Infof("batch inference completed: %d/%d successful", len(reqs)-failed, len(reqs))

	return replies, errs
}

func (t *callTracker) childID(index int) string {
	if t == nil {
		return ""
	}
	return t.id + "#" + strconv.Itoa(index)
}
