package thirdparty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	eventQueueKey = "rui3:webhook:queue"
	eventDLQKey   = "rui3:webhook:dlq"
	eventRetryKey = "rui3:webhook:retry:%s"

	maxRetries = 5
	retryTTL   = 24 * time.Hour
)

// Publisher 事件发布端
type Publisher interface {
	Publish(ctx context.Context, ev *StandardEvent) error
}

// deliver 推送一次，返回是否应重试
func deliver(ctx context.Context, pusher *Pusher, endpoint string, ev *StandardEvent, m *Metrics) (retry bool, err error) {
	pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	code, body, err := pusher.SendEvent(pushCtx, endpoint, ev)
	m.observeDuration(ev.EventType, time.Since(start).Seconds())
	switch {
	case err != nil || code >= 500:
		if err == nil {
			err = fmt.Errorf("http %d", code)
		}
		return true, err
	case code >= 400:
		return false, fmt.Errorf("client error %d: %s", code, body)
	default:
		return false, nil
	}
}

// EventQueue 基于 Redis List 的异步事件队列，失败事件退避重投，超限进入死信
type EventQueue struct {
	redis    redis.UniversalClient
	logger   *zap.Logger
	pusher   *Pusher
	endpoint string
	metrics  *Metrics
}

// NewEventQueue 创建事件队列
func NewEventQueue(client redis.UniversalClient, pusher *Pusher, endpoint string, logger *zap.Logger, m *Metrics) *EventQueue {
	return &EventQueue{redis: client, logger: logger, pusher: pusher, endpoint: endpoint, metrics: m}
}

// Publish 入队（不阻塞业务）
func (q *EventQueue) Publish(ctx context.Context, ev *StandardEvent) error {
	if q == nil || q.redis == nil {
		return errors.New("event queue not initialized")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.redis.RPush(ctx, eventQueueKey, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// StartWorker 启动 n 个消费协程
func (q *EventQueue) StartWorker(ctx context.Context, n int) {
	q.logger.Info("starting webhook workers", zap.Int("workers", n), zap.String("endpoint", q.endpoint))
	for i := 0; i < n; i++ {
		go q.worker(ctx, i+1)
	}
}

func (q *EventQueue) worker(ctx context.Context, id int) {
	logger := q.logger.With(zap.Int("worker_id", id))
	for {
		if ctx.Err() != nil {
			logger.Info("webhook worker stopped")
			return
		}
		result, err := q.redis.BLPop(ctx, 5*time.Second, eventQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error("redis blpop error", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}
		q.process(ctx, result[1], logger)
		if n, err := q.redis.LLen(ctx, eventQueueKey).Result(); err == nil {
			q.metrics.setQueueSize("main", n)
		}
	}
}

func (q *EventQueue) process(ctx context.Context, raw string, logger *zap.Logger) {
	var ev StandardEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		logger.Error("failed to unmarshal event", zap.Error(err))
		return
	}

	retryKey := fmt.Sprintf(eventRetryKey, ev.EventID)
	retries, _ := q.redis.Get(ctx, retryKey).Int()
	if retries >= maxRetries {
		q.moveToDLQ(ctx, raw, "max_retries_exceeded", ev.EventType)
		return
	}

	retry, err := deliver(ctx, q.pusher, q.endpoint, &ev, q.metrics)
	if err == nil {
		q.metrics.recordPush(ev.EventType, "success")
		q.redis.Del(ctx, retryKey)
		logger.Debug("event pushed", zap.String("event_id", ev.EventID), zap.String("event_type", string(ev.EventType)))
		return
	}
	if !retry {
		logger.Warn("event rejected by webhook", zap.String("event_id", ev.EventID), zap.Error(err))
		q.moveToDLQ(ctx, raw, err.Error(), ev.EventType)
		return
	}

	q.metrics.recordPush(ev.EventType, "retry")
	logger.Warn("event push failed, will retry",
		zap.String("event_id", ev.EventID),
		zap.Int("retry_count", retries+1),
		zap.Error(err))
	pipe := q.redis.TxPipeline()
	pipe.Incr(ctx, retryKey)
	pipe.Expire(ctx, retryKey, retryTTL)
	_, _ = pipe.Exec(ctx)

	sleepCtx(ctx, time.Duration(1<<uint(retries))*time.Second)
	if err := q.redis.RPush(ctx, eventQueueKey, raw).Err(); err != nil {
		q.moveToDLQ(ctx, raw, "re_enqueue_failed", ev.EventType)
	}
}

func (q *EventQueue) moveToDLQ(ctx context.Context, raw, reason string, t EventType) {
	q.metrics.recordPush(t, "dlq")
	rec, _ := json.Marshal(map[string]any{"event_data": raw, "reason": reason, "timestamp": time.Now().Unix()})
	if err := q.redis.RPush(ctx, eventDLQKey, rec).Err(); err != nil {
		q.logger.Error("failed to move event to DLQ", zap.Error(err))
	}
	if n, err := q.redis.LLen(ctx, eventDLQKey).Result(); err == nil {
		q.metrics.setQueueSize("dlq", n)
	}
}

// DLQLength 死信数量
func (q *EventQueue) DLQLength(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, eventDLQKey).Result()
}

// AsyncPublisher 未启用 Redis 时的进程内推送：有界缓冲，满时丢弃
type AsyncPublisher struct {
	ch       chan *StandardEvent
	pusher   *Pusher
	endpoint string
	logger   *zap.Logger
	metrics  *Metrics
	wg       sync.WaitGroup
}

// NewAsyncPublisher buffer<=0 时取 256
func NewAsyncPublisher(pusher *Pusher, endpoint string, buffer int, logger *zap.Logger, m *Metrics) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncPublisher{
		ch:       make(chan *StandardEvent, buffer),
		pusher:   pusher,
		endpoint: endpoint,
		logger:   logger,
		metrics:  m,
	}
}

// Publish 非阻塞入缓冲
func (p *AsyncPublisher) Publish(_ context.Context, ev *StandardEvent) error {
	select {
	case p.ch <- ev:
		return nil
	default:
		p.metrics.recordPush(ev.EventType, "failed")
		return errors.New("webhook buffer full")
	}
}

// Start 启动 n 个推送协程，ctx 结束后退出
func (p *AsyncPublisher) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-p.ch:
					p.deliverWithRetry(ctx, ev)
				}
			}
		}()
	}
}

// Wait 等待推送协程退出
func (p *AsyncPublisher) Wait() { p.wg.Wait() }

func (p *AsyncPublisher) deliverWithRetry(ctx context.Context, ev *StandardEvent) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		retry, err := deliver(ctx, p.pusher, p.endpoint, ev, p.metrics)
		if err == nil {
			p.metrics.recordPush(ev.EventType, "success")
			return
		}
		if !retry || ctx.Err() != nil {
			p.metrics.recordPush(ev.EventType, "failed")
			p.logger.Warn("event push dropped", zap.String("event_id", ev.EventID), zap.Error(err))
			return
		}
		p.metrics.recordPush(ev.EventType, "retry")
		sleepCtx(ctx, time.Duration(1<<uint(attempt))*200*time.Millisecond)
	}
	p.metrics.recordPush(ev.EventType, "failed")
	p.logger.Warn("event push gave up", zap.String("event_id", ev.EventID))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
