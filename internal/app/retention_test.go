package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakePruner struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePruner) PruneRxPackets(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestRetentionCleaner(t *testing.T) {
	t.Run("按保留期计算截止时间", func(t *testing.T) {
		p := &fakePruner{n: 3}
		c := NewRetentionCleaner(p, 7, zaptest.NewLogger(t))
		c.cleanOnce(context.Background())

		assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), p.before, time.Minute)
		assert.Equal(t, int64(3), c.statsCleaned)
	})

	t.Run("失败不计数", func(t *testing.T) {
		p := &fakePruner{n: 3, err: errors.New("db down")}
		c := NewRetentionCleaner(p, 7, zaptest.NewLogger(t))
		c.cleanOnce(context.Background())
		assert.Zero(t, c.statsCleaned)
	})

	t.Run("ctx结束后退出", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := NewRetentionCleaner(&fakePruner{}, 1, zaptest.NewLogger(t))
		done := make(chan struct{})
		go func() {
			c.Start(ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("cleaner did not stop")
		}
	})
}
