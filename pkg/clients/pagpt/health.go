package pagpt

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"pagptclient/pkg/health"
)

// HealthCheckName 网关健康检查名称
const HealthCheckName = "pagpt-gateway"

// HealthChecker 以一次 token 请求探测网关
// 对话接口熔断打开时报告降级
func (c *Client) HealthChecker(threshold time.Duration) health.Checker {
	probe := func(ctx context.Context) error {
		_, err := c.tokens.FetchToken(ctx)
		return err
	}
	return health.NewProbeChecker(HealthCheckName, probe, threshold, c.dialogCircuitOpen)
}

func (c *Client) dialogCircuitOpen() bool {
	b := c.dialog.gw.breaker
	return b != nil && b.State() == gobreaker.StateOpen
}
