package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// slowPing Redis 往返超过该值时降级，去重与链路缓存都在收包路径上
const slowPing = 200 * time.Millisecond

// RedisChecker Redis 检查：往返时延与连接池超时
type RedisChecker struct {
	client *redisstorage.Client
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(client *redisstorage.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}
	rtt := time.Since(start)

	stats := c.client.PoolStats()
	status, message := StatusHealthy, "ok"
	if rtt > slowPing {
		status, message = StatusDegraded, "slow round trip"
	}
	if stats.Timeouts > 0 && stats.IdleConns == 0 {
		status, message = StatusDegraded, "pool wait timeouts"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"rtt":         rtt.String(),
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"timeouts":    stats.Timeouts,
		},
		Latency: rtt,
	}
}
