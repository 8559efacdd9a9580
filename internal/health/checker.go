package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 收发仍可用，但存储/推送等辅助组件受损
	StatusUnhealthy Status = "unhealthy" // 无法与模组通信
)

// CheckResult 健康检查结果
type CheckResult struct {
	Status   Status                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Latency  time.Duration          `json:"latency"`
	Optional bool                   `json:"optional,omitempty"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Optional 包装辅助组件：其不健康只使整体降级。
// 网关离开数据库、Redis 仍能收发，只是丢失历史与队列持久化。
func Optional(c Checker) Checker { return optionalChecker{c} }

type optionalChecker struct{ Checker }

func (o optionalChecker) Check(ctx context.Context) CheckResult {
	res := o.Checker.Check(ctx)
	res.Optional = true
	if res.Status == StatusUnhealthy {
		res.Status = StatusDegraded
	}
	return res
}
