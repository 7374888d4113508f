package pagpt

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pagptclient/pkg/monitoring"
	"pagptclient/pkg/observability"
)

// CallState 单次调用的状态
//
//	IDLE → SIGN → FETCH_TOKEN → SIGN → DIALOG → SUCCESS
//	任一阶段失败 → FAIL
type CallState string

const (
	StateIdle       CallState = "IDLE"
	StateSign       CallState = "SIGN"
	StateFetchToken CallState = "FETCH_TOKEN"
	StateDialog     CallState = "DIALOG"
	StateSuccess    CallState = "SUCCESS"
	StateFail       CallState = "FAIL"
)

// StateObserver 状态迁移回调，批量调用时会被并发调用
type StateObserver func(callID string, from, to CallState)

// callTracker 记录一次调用的状态迁移，不在 goroutine 间共享
type callTracker struct {
	id       string
	state    CallState
	observer StateObserver
	metrics  *monitoring.ClientMetrics

	// forkMetrics 子调用使用的指标
	forkMetrics *monitoring.ClientMetrics
	span        trace.Span
}

func newCallTracker(id string, observer StateObserver, metrics *monitoring.ClientMetrics, span trace.Span) *callTracker {
	return &callTracker{
		id:          id,
		state:       StateIdle,
		observer:    observer,
		metrics:     metrics,
		forkMetrics: metrics,
		span:        span,
	}
}

// newBatchTracker 批次本身不计入指标，由每个子调用计数
func newBatchTracker(id string, observer StateObserver, metrics *monitoring.ClientMetrics, span trace.Span) *callTracker {
	t := newCallTracker(id, observer, nil, span)
	t.forkMetrics = metrics
	return t
}

func (t *callTracker) enter(s CallState) {
	if t == nil {
		return
	}
	from := t.state
	t.state = s
	if t.span != nil {
		observability.AddEvent(t.span, "pagpt.state",
			attribute.String("from", string(from)),
			attribute.String("to", string(s)),
		)
	}
	if t.observer != nil {
		t.observer(t.id, from, s)
	}
}

// finish 进入终态并计数
func (t *callTracker) finish(err error) {
	if t == nil {
		return
	}
	if err != nil {
		t.enter(StateFail)
	} else {
		t.enter(StateSuccess)
	}
	t.metrics.ObserveCall(string(t.state))
}

// fork 为批量中的单个请求复制一份当前状态
func (t *callTracker) fork(id string, span trace.Span) *callTracker {
	if t == nil {
		return nil
	}
	return &callTracker{
		id:          id,
		state:       t.state,
		observer:    t.observer,
		metrics:     t.forkMetrics,
		forkMetrics: t.forkMetrics,
		span:        span,
	}
}

type trackerKey struct{}

func withTracker(ctx context.Context, t *callTracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

func trackerFrom(ctx context.Context) *callTracker {
	t, _ := ctx.Value(trackerKey{}).(*callTracker)
	return t
}
