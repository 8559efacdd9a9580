package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	txQueueKey      = "rui3:tx:queue"      // 待发送（Sorted Set，按优先级+时间排序）
	txProcessingKey = "rui3:tx:processing" // 发送中（Hash，msg_id -> JSON）
	txDeadKey       = "rui3:tx:dead"       // 死信（List）

	// priorityWeight 保证优先级差异压过入队时间（毫秒时间戳 < 1e13）
	priorityWeight = 1e13
)

// TxMessage 待发送的射频载荷
type TxMessage struct {
	ID        string    `json:"id"`
	Payload   []byte    `json:"payload"`
	Priority  int       `json:"priority"` // 数值越小越先发
	Source    string    `json:"source,omitempty"`
	Retries   int       `json:"retries"`
	MaxRetry  int       `json:"max_retry"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeadLetter 死信记录
type DeadLetter struct {
	Message  *TxMessage `json:"message"`
	Error    string     `json:"error"`
	FailedAt time.Time  `json:"failed_at"`
}

// TxQueue Redis 发送队列
type TxQueue struct {
	client redis.UniversalClient
	// processingTTL 进程崩溃后发送中记录的保留时间
	processingTTL time.Duration
}

// NewTxQueue 创建发送队列
func NewTxQueue(client redis.UniversalClient) *TxQueue {
	return &TxQueue{client: client, processingTTL: 10 * time.Minute}
}

func score(msg *TxMessage) float64 {
	return float64(msg.Priority)*priorityWeight + float64(msg.CreatedAt.UnixMilli())
}

// Enqueue 入队
func (q *TxQueue) Enqueue(ctx context.Context, msg *TxMessage) error {
	if msg.ID == "" {
		return errors.New("tx message id is empty")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.client.ZAdd(ctx, txQueueKey, redis.Z{
		Score:  score(msg),
		Member: msg.ID + ":" + string(data),
	}).Err()
}

// Dequeue 取出一条待发送消息；队列为空时返回 nil, nil
func (q *TxQueue) Dequeue(ctx context.Context) (*TxMessage, error) {
	result, err := q.client.ZPopMin(ctx, txQueueKey, 1).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	member, ok := result[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", result[0].Member)
	}
	msg, err := parseMessage(member)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

// MarkProcessing 标记为发送中
func (q *TxQueue) MarkProcessing(ctx context.Context, msg *TxMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	pipe.HSet(ctx, txProcessingKey, msg.ID, data)
	pipe.Expire(ctx, txProcessingKey, q.processingTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkSuccess 发送成功，移出发送中
func (q *TxQueue) MarkSuccess(ctx context.Context, msg *TxMessage) error {
	return q.client.HDel(ctx, txProcessingKey, msg.ID).Err()
}

// MarkFailed 发送失败：retry 为 true 且未超过次数时重新入队，否则进入死信。
// 返回 true 表示已进入死信。
func (q *TxQueue) MarkFailed(ctx context.Context, msg *TxMessage, errMsg string, retry bool) (bool, error) {
	if err := q.client.HDel(ctx, txProcessingKey, msg.ID).Err(); err != nil {
		return false, err
	}

	msg.Retries++
	msg.LastError = errMsg
	if retry && msg.Retries < msg.MaxRetry {
		return false, q.Enqueue(ctx, msg)
	}

	data, err := json.Marshal(DeadLetter{Message: msg, Error: errMsg, FailedAt: time.Now()})
	if err != nil {
		return true, err
	}
	return true, q.client.LPush(ctx, txDeadKey, data).Err()
}

// Pending 待发送数量
func (q *TxQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, txQueueKey).Result()
}

// Processing 发送中数量
func (q *TxQueue) Processing(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, txProcessingKey).Result()
}

// DeadCount 死信数量
func (q *TxQueue) DeadCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, txDeadKey).Result()
}

// DeadLetters 最近 n 条死信
func (q *TxQueue) DeadLetters(ctx context.Context, n int64) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, txDeadKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, s := range raw {
		var d DeadLetter
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// QueueStats 队列统计
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// Stats 获取队列统计信息
func (q *TxQueue) Stats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	var err error
	if s.Pending, err = q.Pending(ctx); err != nil {
		return s, err
	}
	if s.Processing, err = q.Processing(ctx); err != nil {
		return s, err
	}
	s.Dead, err = q.DeadCount(ctx)
	return s, err
}

// parseMessage 解析 "ID:JSON" 格式的成员
func parseMessage(member string) (*TxMessage, error) {
	_, data, ok := strings.Cut(member, ":")
	if !ok {
		return nil, errors.New("invalid message format")
	}
	var msg TxMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
