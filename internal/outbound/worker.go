package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// Transmitter 负责把一条载荷发到空口
type Transmitter interface {
	Transmit(ctx context.Context, payload []byte) error
}

// Result 一次发送尝试的结果
type Result struct {
	Msg      *redisstorage.TxMessage
	Err      error
	Duration time.Duration
	Dead     bool // 已放弃并进入死信
}

// Options Worker 参数
type Options struct {
	Throttle        time.Duration // 轮询间隔
	RetryMax        int
	DutyCyclePerSec float64 // <=0 不限速
	DutyCycleBurst  int
}

// Worker 发送队列消费者：按优先级出队，经占空比限速后交给 Transmitter
type Worker struct {
	queue    Queue
	tx       Transmitter
	limiter  *rate.Limiter
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.AppMetrics
	onResult func(Result)

	stopC    chan struct{}
	stopOnce sync.Once

	sent      atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	deadCount atomic.Int64
}

// NewWorker 创建 Worker
func NewWorker(queue Queue, tx Transmitter, opts Options, logger *zap.Logger, m *metrics.AppMetrics) *Worker {
	if opts.Throttle <= 0 {
		opts.Throttle = 100 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 1
	}
	limit := rate.Inf
	if opts.DutyCyclePerSec > 0 {
		limit = rate.Limit(opts.DutyCyclePerSec)
	}
	burst := opts.DutyCycleBurst
	if burst <= 0 {
		burst = 1
	}
	return &Worker{
		queue:   queue,
		tx:      tx,
		limiter: rate.NewLimiter(limit, burst),
		opts:    opts,
		logger:  logger,
		metrics: m,
		stopC:   make(chan struct{}),
	}
}

// OnResult 安装结果回调（落库、推送），须在 Start 前调用
func (w *Worker) OnResult(fn func(Result)) { w.onResult = fn }

// Submit 校验并入队，返回消息 ID
func (w *Worker) Submit(ctx context.Context, payload []byte, priority int, source string) (string, error) {
	if len(payload) == 0 || len(payload) > rui3.MaxPayloadLen {
		return "", fmt.Errorf("%w: payload length %d out of 1..%d", rui3.ErrInvalidArgument, len(payload), rui3.MaxPayloadLen)
	}
	msg := &redisstorage.TxMessage{
		ID:        uuid.NewString(),
		Payload:   append([]byte(nil), payload...),
		Priority:  ClampPriority(priority),
		Source:    source,
		MaxRetry:  w.opts.RetryMax,
		CreatedAt: time.Now(),
	}
	if err := w.queue.Enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	w.logger.Debug("tx message queued",
		zap.String("msg_id", msg.ID),
		zap.Int("priority", msg.Priority),
		zap.Int("bytes", len(payload)))
	return msg.ID, nil
}

// Start 阻塞运行直到 ctx 结束或 Stop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("tx worker started",
		zap.Duration("throttle", w.opts.Throttle),
		zap.Float64("duty_cycle_per_sec", w.opts.DutyCyclePerSec))

	ticker := time.NewTicker(w.opts.Throttle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("tx worker stopping")
			return
		case <-w.stopC:
			w.logger.Info("tx worker stopped")
			return
		case <-ticker.C:
			w.processOne(ctx)
		}
	}
}

// Stop 停止 Worker，可重复调用
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopC) })
}

// processOne 处理一条消息，返回是否取到消息
func (w *Worker) processOne(ctx context.Context) bool {
	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.logger.Error("dequeue failed", zap.Error(err))
		return false
	}
	w.refreshDepth(ctx)
	if msg == nil {
		return false
	}

	if err := w.queue.MarkProcessing(ctx, msg); err != nil {
		w.logger.Error("mark processing failed", zap.String("msg_id", msg.ID), zap.Error(err))
	}

	if err := w.limiter.Wait(ctx); err != nil {
		// ctx 结束，放回队列等待下次启动
		w.countTx("throttled")
		_, _ = w.queue.MarkFailed(context.WithoutCancel(ctx), msg, "duty cycle wait aborted", true)
		return true
	}

	start := time.Now()
	err = w.tx.Transmit(ctx, msg.Payload)
	res := Result{Msg: msg, Err: err, Duration: time.Since(start)}

	if err == nil {
		if err := w.queue.MarkSuccess(ctx, msg); err != nil {
			w.logger.Error("mark success failed", zap.String("msg_id", msg.ID), zap.Error(err))
		}
		w.sent.Add(1)
		w.logger.Info("tx message sent",
			zap.String("msg_id", msg.ID),
			zap.Int("bytes", len(msg.Payload)),
			zap.Duration("elapsed", res.Duration))
		w.emit(res)
		return true
	}

	w.failed.Add(1)
	retry := rui3.IsRetryable(err) && !errors.Is(err, context.Canceled)
	dead, markErr := w.queue.MarkFailed(ctx, msg, err.Error(), retry)
	if markErr != nil {
		w.logger.Error("mark failed error", zap.String("msg_id", msg.ID), zap.Error(markErr))
	}
	res.Dead = dead
	if dead {
		w.deadCount.Add(1)
		w.logger.Warn("tx message moved to dead queue",
			zap.String("msg_id", msg.ID),
			zap.Int("retries", msg.Retries),
			zap.Error(err))
	} else {
		w.retried.Add(1)
		w.logger.Debug("tx message retrying",
			zap.String("msg_id", msg.ID),
			zap.Int("retry", msg.Retries),
			zap.Error(err))
	}
	w.emit(res)
	return true
}

func (w *Worker) emit(res Result) {
	if w.onResult != nil {
		w.onResult(res)
	}
}

func (w *Worker) countTx(result string) {
	if w.metrics != nil {
		w.metrics.TxPacketsTotal.WithLabelValues(result).Inc()
	}
}

func (w *Worker) refreshDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	if s, err := w.queue.Stats(ctx); err == nil {
		w.metrics.TxQueueDepth.Set(float64(s.Pending))
	}
}

// Stats Worker 统计
type Stats struct {
	Sent    int64                   `json:"sent"`
	Failed  int64                   `json:"failed"`
	Retried int64                   `json:"retried"`
	Dead    int64                   `json:"dead"`
	Queue   redisstorage.QueueStats `json:"queue"`
}

// Stats 获取统计信息
func (w *Worker) Stats(ctx context.Context) Stats {
	q, _ := w.queue.Stats(ctx)
	return Stats{
		Sent:    w.sent.Load(),
		Failed:  w.failed.Load(),
		Retried: w.retried.Load(),
		Dead:    w.deadCount.Load(),
		Queue:   q,
	}
}

// QueueStats 队列统计
func (w *Worker) QueueStats(ctx context.Context) (redisstorage.QueueStats, error) {
	return w.queue.Stats(ctx)
}
