package thirdparty

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDeduper(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR 未设置，跳过测试")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis 不可用: %v", err)
	}

	d := NewDeduper(c, zaptest.NewLogger(t), time.Minute)
	ctx := context.Background()
	key := PacketKey("SN-dedup", []byte{1, 2, 3})
	t.Cleanup(func() { _ = d.Delete(ctx, key) })

	dup, err := d.IsDuplicate(ctx, key)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = d.IsDuplicate(ctx, key)
	require.NoError(t, err)
	assert.True(t, dup)

	_, err = d.IsDuplicate(ctx, "")
	assert.Error(t, err)
}

func TestDeduper_Nil(t *testing.T) {
	var d *Deduper
	_, err := d.IsDuplicate(context.Background(), "k")
	assert.Error(t, err)
}
