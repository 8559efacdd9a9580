package outbound

import (
	"container/heap"
	"context"
	"sync"
	"time"

	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// Queue 发送队列；Redis 与内存实现语义一致
type Queue interface {
	Enqueue(ctx context.Context, msg *redisstorage.TxMessage) error
	Dequeue(ctx context.Context) (*redisstorage.TxMessage, error)
	MarkProcessing(ctx context.Context, msg *redisstorage.TxMessage) error
	MarkSuccess(ctx context.Context, msg *redisstorage.TxMessage) error
	MarkFailed(ctx context.Context, msg *redisstorage.TxMessage, errMsg string, retry bool) (bool, error)
	Stats(ctx context.Context) (redisstorage.QueueStats, error)
}

var _ Queue = (*redisstorage.TxQueue)(nil)

// MemoryQueue 未启用 Redis 时使用的进程内队列，死信只保留最近 deadCap 条
type MemoryQueue struct {
	mu         sync.Mutex
	items      txHeap
	seq        uint64
	processing map[string]*redisstorage.TxMessage
	dead       []redisstorage.DeadLetter
	deadCap    int
}

// NewMemoryQueue deadCap<=0 时取 100
func NewMemoryQueue(deadCap int) *MemoryQueue {
	if deadCap <= 0 {
		deadCap = 100
	}
	return &MemoryQueue{processing: make(map[string]*redisstorage.TxMessage), deadCap: deadCap}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *redisstorage.TxMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.items, txItem{msg: msg, seq: q.seq})
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*redisstorage.TxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, nil
	}
	return heap.Pop(&q.items).(txItem).msg, nil
}

func (q *MemoryQueue) MarkProcessing(_ context.Context, msg *redisstorage.TxMessage) error {
	q.mu.Lock()
	q.processing[msg.ID] = msg
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) MarkSuccess(_ context.Context, msg *redisstorage.TxMessage) error {
	q.mu.Lock()
	delete(q.processing, msg.ID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, msg *redisstorage.TxMessage, errMsg string, retry bool) (bool, error) {
	q.mu.Lock()
	delete(q.processing, msg.ID)
	msg.Retries++
	msg.LastError = errMsg
	if retry && msg.Retries < msg.MaxRetry {
		q.mu.Unlock()
		return false, q.Enqueue(ctx, msg)
	}
	q.dead = append(q.dead, redisstorage.DeadLetter{Message: msg, Error: errMsg, FailedAt: time.Now()})
	if len(q.dead) > q.deadCap {
		q.dead = q.dead[len(q.dead)-q.deadCap:]
	}
	q.mu.Unlock()
	return true, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (redisstorage.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return redisstorage.QueueStats{
		Pending:    int64(q.items.Len()),
		Processing: int64(len(q.processing)),
		Dead:       int64(len(q.dead)),
	}, nil
}

// DeadLetters 最近的死信，新的在前
func (q *MemoryQueue) DeadLetters() []redisstorage.DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]redisstorage.DeadLetter, 0, len(q.dead))
	for i := len(q.dead) - 1; i >= 0; i-- {
		out = append(out, q.dead[i])
	}
	return out
}

type txItem struct {
	msg *redisstorage.TxMessage
	seq uint64
}

// txHeap 优先级小者先出，同优先级按入队顺序
type txHeap []txItem

func (h txHeap) Len() int { return len(h) }
func (h txHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority < h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}
func (h txHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *txHeap) Push(x any)   { *h = append(*h, x.(txItem)) }
func (h *txHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
