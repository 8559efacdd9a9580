package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// poolSaturation 连接池占用超过该比例时降级
const poolSaturation = 0.9

// DatabaseChecker 历史库检查：连通性、连接池占用、已应用的迁移版本
type DatabaseChecker struct {
	pool *pgxpool.Pool
}

// NewDatabaseChecker 创建数据库健康检查器
func NewDatabaseChecker(pool *pgxpool.Pool) *DatabaseChecker {
	return &DatabaseChecker{pool: pool}
}

// Name 返回检查器名称
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check 执行健康检查
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var version int64
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("schema query failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()
	used := 0.0
	if stats.MaxConns() > 0 {
		used = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}

	status, message := StatusHealthy, "ok"
	switch {
	case version == 0:
		status, message = StatusDegraded, "no migrations applied"
	case used >= 1.0:
		status, message = StatusUnhealthy, "connection pool exhausted"
	case used > poolSaturation:
		status, message = StatusDegraded, "connection pool near limit"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"schema_version": version,
			"acquired_conns": stats.AcquiredConns(),
			"max_conns":      stats.MaxConns(),
			"pool_used":      fmt.Sprintf("%.1f%%", used*100),
		},
		Latency: time.Since(start),
	}
}
