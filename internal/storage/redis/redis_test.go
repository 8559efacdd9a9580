package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 需要 TEST_REDIS_ADDR，不可用时跳过；使用 15 号库并在结束时清空
func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR 未设置，跳过测试")
	}
	c := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		t.Skipf("redis 不可用: %v", err)
	}
	require.NoError(t, c.FlushDB(ctx).Err())
	t.Cleanup(func() {
		c.FlushDB(context.Background())
		_ = c.Close()
	})
	return c
}

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage(`abc:{"id":"abc","payload":"AQI=","priority":2}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, []byte{1, 2}, msg.Payload)
	assert.Equal(t, 2, msg.Priority)

	_, err = parseMessage("no-separator")
	assert.Error(t, err)
	_, err = parseMessage("abc:{broken")
	assert.Error(t, err)
}

func TestScore_PriorityDominatesTime(t *testing.T) {
	old := &TxMessage{Priority: 3, CreatedAt: time.Now().Add(-time.Hour)}
	urgent := &TxMessage{Priority: 1, CreatedAt: time.Now()}
	assert.Less(t, score(urgent), score(old))

	first := &TxMessage{Priority: 3, CreatedAt: time.Now().Add(-time.Second)}
	second := &TxMessage{Priority: 3, CreatedAt: time.Now()}
	assert.Less(t, score(first), score(second))
}

func TestTxQueue(t *testing.T) {
	c := newTestClient(t)
	q := NewTxQueue(c)
	ctx := context.Background()

	t.Run("按优先级出队", func(t *testing.T) {
		low := &TxMessage{ID: uuid.NewString(), Payload: []byte{1}, Priority: 4, MaxRetry: 3}
		high := &TxMessage{ID: uuid.NewString(), Payload: []byte{2}, Priority: 1, MaxRetry: 3}
		require.NoError(t, q.Enqueue(ctx, low))
		require.NoError(t, q.Enqueue(ctx, high))

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, high.ID, got.ID)
		got, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, low.ID, got.ID)

		got, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("失败重试后进入死信", func(t *testing.T) {
		msg := &TxMessage{ID: uuid.NewString(), Payload: []byte{9}, MaxRetry: 2}
		require.NoError(t, q.MarkProcessing(ctx, msg))
		n, err := q.Processing(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		dead, err := q.MarkFailed(ctx, msg, "AT_BUSY_ERROR", true)
		require.NoError(t, err)
		assert.False(t, dead)
		pending, _ := q.Pending(ctx)
		assert.Equal(t, int64(1), pending)

		again, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Retries)
		dead, err = q.MarkFailed(ctx, again, "AT_BUSY_ERROR", true)
		require.NoError(t, err)
		assert.True(t, dead)

		letters, err := q.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, letters, 1)
		assert.Equal(t, msg.ID, letters[0].Message.ID)
		assert.Equal(t, "AT_BUSY_ERROR", letters[0].Error)
	})

	t.Run("不可重试直接进入死信", func(t *testing.T) {
		msg := &TxMessage{ID: uuid.NewString(), Payload: []byte{7}, MaxRetry: 5}
		dead, err := q.MarkFailed(ctx, msg, "AT_PARAM_ERROR", false)
		require.NoError(t, err)
		assert.True(t, dead)

		s, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.Dead)
	})
}

func TestLinkCache(t *testing.T) {
	c := newTestClient(t)
	lc := NewLinkCache(c, time.Minute)
	ctx := context.Background()

	_, err := lc.Get(ctx, "SN1")
	assert.ErrorIs(t, err, ErrNoLink)

	at := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, lc.UpdateSignal(ctx, "SN1", -42, 7, at))
	require.NoError(t, lc.IncrRx(ctx, "SN1"))
	require.NoError(t, lc.IncrRx(ctx, "SN1"))

	s, err := lc.Get(ctx, "SN1")
	require.NoError(t, err)
	assert.Equal(t, int16(-42), s.RSSI)
	assert.Equal(t, int16(7), s.SNR)
	assert.True(t, at.Equal(s.UpdatedAt))
	assert.Equal(t, int64(2), s.RxPackets)
}
