package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// QueueStatser 发送队列统计（outbound.Worker 实现）
type QueueStatser interface {
	QueueStats(ctx context.Context) (redisstorage.QueueStats, error)
}

// TxQueueChecker 发送队列检查：积压或新增死信时降级
type TxQueueChecker struct {
	queue      QueueStatser
	maxPending int64

	mu          sync.Mutex
	lastDead    int64
	initialized bool
}

// NewTxQueueChecker maxPending<=0 时不检查积压
func NewTxQueueChecker(queue QueueStatser, maxPending int64) *TxQueueChecker {
	return &TxQueueChecker{queue: queue, maxPending: maxPending}
}

// Name 返回检查器名称
func (c *TxQueueChecker) Name() string {
	return "tx_queue"
}

// Check 执行健康检查。死信数与上次检查相比增长时降级一次
func (c *TxQueueChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	s, err := c.queue.QueueStats(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("queue stats failed: %v", err),
			Latency: time.Since(start),
		}
	}

	status, message := StatusHealthy, "ok"
	if c.maxPending > 0 && s.Pending > c.maxPending {
		status, message = StatusDegraded, "tx backlog above limit"
	}
	c.mu.Lock()
	if c.initialized && s.Dead > c.lastDead {
		status, message = StatusDegraded, fmt.Sprintf("%d new dead letters", s.Dead-c.lastDead)
	}
	c.lastDead, c.initialized = s.Dead, true
	c.mu.Unlock()

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"pending":    s.Pending,
			"processing": s.Processing,
			"dead":       s.Dead,
		},
		Latency: time.Since(start),
	}
}
