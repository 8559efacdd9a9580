package atclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"go.uber.org/zap"
)

// ErrReplyTimeout 在超时前未收到结束码
var ErrReplyTimeout = errors.New("atclient: reply timeout")

// Options 命令收发参数
type Options struct {
	Timeout          time.Duration // 默认单条命令超时，描述符可覆盖
	Retries          int           // SendCommandRetrying 的额外重发次数
	Backoff          time.Duration // 重发退避基数，按次数线性增长
	BreakerThreshold int           // 连续传输失败次数阈值，0 关闭熔断
	BreakerCooldown  time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Timeout:          time.Second,
		Retries:          3,
		Backoff:          200 * time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  10 * time.Second,
	}
}

// Client AT 命令收发器：写命令行，按描述符超时等待回复并解码。
// 同一时刻只有一条命令在途。
type Client struct {
	w       io.Writer
	q       *Queues
	opts    Options
	breaker *Breaker
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	mu sync.Mutex
	// owed 已超时但结束码可能迟到的命令数
	owed int
}

// New 创建命令客户端；w 通常为串口，q 由 Ingress 填充
func New(w io.Writer, q *Queues, opts Options, logger *zap.Logger, m *metrics.AppMetrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	c := &Client{
		w:       w,
		q:       q,
		opts:    opts,
		breaker: NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		logger:  logger,
		metrics: m,
	}
	c.breaker.OnTransition(func(from, to BreakerState) {
		logger.Warn("serial link breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	return c
}

// Resync 模组复位后丢弃队列中的旧回复，并清零迟到计数
func (c *Client) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainStale()
	c.owed = 0
}

// Breaker 暴露熔断器给健康检查
func (c *Client) Breaker() *Breaker { return c.breaker }

// TryTakeNotification 非阻塞取出一条待处理的 URC 行
func (c *Client) TryTakeNotification() (string, bool) {
	select {
	case line := <-c.q.Notifications:
		return line, true
	default:
		return "", false
	}
}

// Pending 通知队列中待取的行数
func (c *Client) Pending() int { return len(c.q.Notifications) }

// SendCommand 发送一条命令并等待结束码，不重试
func (c *Client) SendCommand(ctx context.Context, cmd rui3.Command) (rui3.Reply, error) {
	text, err := cmd.Encode()
	if err != nil {
		return rui3.Reply{}, err
	}
	d := cmd.Descriptor()
	label := d.Label()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.breaker.Allow(); err != nil {
		c.observe(label, "breaker_open", 0)
		return rui3.Reply{}, &rui3.TransportError{Op: label, Err: err}
	}

	start := time.Now()
	resp, err := c.exchange(ctx, text, d)
	elapsed := time.Since(start)

	if err != nil {
		c.breaker.Record(true)
		result := "io_error"
		if errors.Is(err, ErrReplyTimeout) {
			result = "timeout"
		}
		c.observe(label, result, elapsed)
		c.logger.Warn("at command failed", zap.String("cmd", text), zap.Duration("elapsed", elapsed), zap.Error(err))
		return rui3.Reply{}, &rui3.TransportError{Op: label, Err: err}
	}
	c.breaker.Record(false)

	if d.NoFinalCode {
		c.observe(label, "ok", elapsed)
		return rui3.Reply{Kind: cmd.Kind}, nil
	}
	if !resp.OK() {
		c.observe(label, "device_error", elapsed)
		c.logger.Warn("at command rejected", zap.String("cmd", text), zap.String("code", resp.Code))
		return rui3.Reply{}, &rui3.DeviceError{Command: label, Code: resp.Code}
	}

	reply, err := rui3.DecodeReply(cmd, resp.Lines)
	if err != nil {
		c.observe(label, "shape_error", elapsed)
		c.logger.Warn("at reply shape mismatch", zap.String("cmd", text), zap.Strings("lines", resp.Lines), zap.Error(err))
		return rui3.Reply{}, err
	}
	c.observe(label, "ok", elapsed)
	return reply, nil
}

// SendCommandRetrying 对可重试的传输错误有限次重发，退避随次数增长
func (c *Client) SendCommandRetrying(ctx context.Context, cmd rui3.Command) (rui3.Reply, error) {
	label := cmd.Descriptor().Label()
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.CommandRetries.WithLabelValues(label).Inc()
			}
			c.logger.Info("resending at command",
				zap.String("cmd", label),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return rui3.Reply{}, &rui3.TransportError{Op: label, Err: ctx.Err()}
			case <-time.After(c.opts.Backoff * time.Duration(attempt)):
			}
		}

		reply, err := c.SendCommand(ctx, cmd)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !rui3.IsRetryable(err) || errors.Is(err, ErrBreakerOpen) || ctx.Err() != nil {
			return rui3.Reply{}, err
		}
	}
	return rui3.Reply{}, fmt.Errorf("%s: gave up after %d attempts: %w", label, c.opts.Retries+1, lastErr)
}

// exchange 清掉残留回复，写命令行，等待结束码
func (c *Client) exchange(ctx context.Context, text string, d rui3.Descriptor) (Response, error) {
	c.drainStale()

	c.logger.Debug("tx command", zap.String("cmd", text))
	if _, err := io.WriteString(c.w, text+"\r\n"); err != nil {
		return Response{}, fmt.Errorf("write: %w", err)
	}
	if d.NoFinalCode {
		return Response{}, nil
	}

	timeout := c.opts.Timeout
	if d.Timeout > 0 {
		timeout = d.Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// 先吃掉迟到的旧回复；旧回复始终没到时，最后跳过的那条就是本命令的
	var skipped *Response
	for {
		select {
		case resp := <-c.q.Responses:
			if c.owed > 0 && !claims(resp, d) {
				c.owed--
				c.logger.Debug("discarding late reply", zap.String("code", resp.Code), zap.Strings("lines", resp.Lines))
				skipped = &resp
				continue
			}
			return resp, nil
		case <-timer.C:
			if skipped != nil {
				c.owed = 0
				return *skipped, nil
			}
			c.owed++
			return Response{}, fmt.Errorf("%w after %s", ErrReplyTimeout, timeout)
		case <-ctx.Done():
			c.owed++
			return Response{}, ctx.Err()
		}
	}
}

// claims 带回显的查询回复可确认归属
func claims(resp Response, d rui3.Descriptor) bool {
	if !d.HasReply() || d.Mnemonic == "" || !resp.OK() {
		return false
	}
	for _, l := range resp.Lines {
		if strings.HasPrefix(l, "AT"+d.Mnemonic+"=") || strings.HasPrefix(l, d.Mnemonic+":") {
			return true
		}
	}
	return false
}

func (c *Client) drainStale() {
	for {
		select {
		case old := <-c.q.Responses:
			if c.owed > 0 {
				c.owed--
			}
			c.logger.Debug("discarding stale reply", zap.String("code", old.Code), zap.Strings("lines", old.Lines))
		default:
			return
		}
	}
}

func (c *Client) observe(label, result string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.CommandsTotal.WithLabelValues(label, result).Inc()
	if elapsed > 0 {
		c.metrics.CommandDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	}
}
