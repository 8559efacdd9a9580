package atclient

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常，允许命令通过
	BreakerOpen                         // 熔断，串口连续无响应
	BreakerHalfOpen                     // 半开，放行一条试探命令
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen 串口熔断中，命令未发出
var ErrBreakerOpen = errors.New("atclient: serial link circuit open")

// Breaker 串口熔断器：连续 threshold 次传输失败后打开，cooldown 后半开试探。
// 设备返回的 AT_* 错误码说明链路正常，不计为失败。
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	openedAt     time.Time
	trips        int64
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	onTransition []func(from, to BreakerState)
}

// NewBreaker 创建熔断器；threshold <= 0 时关闭熔断功能
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// OnTransition 追加状态变化回调，按注册顺序同步调用，不可阻塞
func (b *Breaker) OnTransition(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = append(b.onTransition, fn)
}

// Allow 发送前检查
func (b *Breaker) Allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.transition(BreakerHalfOpen)
		return nil
	default:
		return nil
	}
}

// Record 记录一次命令结果；linkFailed 仅在 I/O 错误或超时时为 true
func (b *Breaker) Record(linkFailed bool) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !linkFailed {
		b.failures = 0
		b.transition(BreakerClosed)
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.trips++
		}
		b.transition(BreakerOpen)
	}
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 累计熔断次数
func (b *Breaker) Trips() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	for _, fn := range b.onTransition {
		fn(from, to)
	}
}
