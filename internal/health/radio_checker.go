package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/rui3-gateway/internal/atclient"
	"github.com/taoyao-code/rui3-gateway/internal/radio"
)

// RadioProbe 模组探活（gateway.Service 实现）
type RadioProbe interface {
	Ping(ctx context.Context) error
	Signal() radio.Signal
}

// LinkBreaker 串口熔断状态（atclient.Breaker 实现）
type LinkBreaker interface {
	State() atclient.BreakerState
	Trips() int64
}

// RadioChecker 串口链路与模组健康检查器
type RadioChecker struct {
	probe   RadioProbe
	breaker LinkBreaker
	timeout time.Duration
	// staleAfter 超过该时长未收到任何信号报告时降级，0 表示不检查
	staleAfter time.Duration
}

// NewRadioChecker 创建射频检查器
func NewRadioChecker(probe RadioProbe, breaker LinkBreaker, staleAfter time.Duration) *RadioChecker {
	return &RadioChecker{probe: probe, breaker: breaker, timeout: 2 * time.Second, staleAfter: staleAfter}
}

// Name 返回检查器名称
func (c *RadioChecker) Name() string {
	return "radio"
}

// Check 执行健康检查。熔断打开时不再下发 AT，避免加重串口负担
func (c *RadioChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]interface{}{}

	if c.breaker != nil {
		state := c.breaker.State()
		details["breaker_state"] = state.String()
		details["breaker_trips"] = c.breaker.Trips()
		if state == atclient.BreakerOpen {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "serial link circuit open",
				Details: details,
				Latency: time.Since(start),
			}
		}
	}

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.probe.Ping(pctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}

	status := StatusHealthy
	message := "ok"

	sig := c.probe.Signal()
	if !sig.UpdatedAt.IsZero() {
		age := time.Since(sig.UpdatedAt)
		details["rssi"] = sig.RSSI
		details["snr"] = sig.SNR
		details["signal_age"] = age.Round(time.Second).String()
		if c.staleAfter > 0 && age > c.staleAfter {
			status = StatusDegraded
			message = "no peer traffic recently"
		}
	}
	if c.breaker != nil && c.breaker.State() == atclient.BreakerHalfOpen {
		status = StatusDegraded
		message = "serial link recovering"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
