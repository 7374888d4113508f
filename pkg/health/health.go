package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status 健康状态
type Status string

const (
	// StatusHealthy 健康
	StatusHealthy Status = "healthy"
	// StatusUnhealthy 不健康
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded 降级
	StatusDegraded Status = "degraded"
)

// CheckResult 检查结果
type CheckResult struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Checker 健康检查器接口
type Checker interface {
	// Check 执行健康检查
	Check(ctx context.Context) CheckResult
	// Name 检查器名称
	Name() string
}

// HealthChecker 健康检查管理器
type HealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	results  map[string]CheckResult
}

// NewHealthChecker 创建健康检查管理器
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checkers: make(map[string]Checker),
		results:  make(map[string]CheckResult),
	}
}

// Register 注册检查器
func (h *HealthChecker) Register(checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[checker.Name()] = checker
}

// Check 并发执行所有检查
func (h *HealthChecker) Check(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	checkers := make([]Checker, 0, len(h.checkers))
	for _, checker := range h.checkers {
		checkers = append(checkers, checker)
	}
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := c.Check(ctx)
			h.mu.Lock()
			h.results[c.Name()] = result
			results[c.Name()] = result
			h.mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// LastResult 上一次检查结果
func (h *HealthChecker) LastResult(name string) (CheckResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.results[name]
	return r, ok
}

// GetStatus 获取整体状态
func (h *HealthChecker) GetStatus(ctx context.Context) Status {
	status := StatusHealthy
	for _, result := range h.Check(ctx) {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// ProbeChecker 外部依赖探活，超过阈值视为降级
type ProbeChecker struct {
	name      string
	probe     func(context.Context) error
	threshold time.Duration
	degraded  func() bool
}

// NewProbeChecker 创建探活检查器
// degraded 不为 nil 且返回 true 时，即使探活成功也报告降级
func NewProbeChecker(name string, probe func(context.Context) error, threshold time.Duration, degraded func() bool) *ProbeChecker {
	return &ProbeChecker{
		name:      name,
		probe:     probe,
		threshold: threshold,
		degraded:  degraded,
	}
}

// Name 返回检查器名称
func (p *ProbeChecker) Name() string {
	return p.name
}

// Check 执行检查
func (p *ProbeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := p.probe(ctx)
	duration := time.Since(start)

	result := CheckResult{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Duration:  duration,
	}

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	case p.threshold > 0 && duration > p.threshold:
		result.Status = StatusDegraded
		result.Details = map[string]interface{}{
			"threshold": p.threshold.String(),
			"actual":    duration.String(),
		}
		result.Error = fmt.Sprintf("response time exceeds threshold: %v > %v", duration, p.threshold)
	case p.degraded != nil && p.degraded():
		result.Status = StatusDegraded
	}
	return result
}
