package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

type mockChecker struct {
	name   string
	status Status
	delay  time.Duration
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
		}
	}
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		want      Status
		wantReady bool
	}{
		{"全部健康", []Checker{&mockChecker{name: "radio", status: StatusHealthy}, &mockChecker{name: "database", status: StatusHealthy}}, StatusHealthy, true},
		{"部分降级", []Checker{&mockChecker{name: "radio", status: StatusHealthy}, &mockChecker{name: "redis", status: StatusDegraded}}, StatusDegraded, true},
		{"模组不健康", []Checker{&mockChecker{name: "radio", status: StatusUnhealthy}, &mockChecker{name: "database", status: StatusHealthy}}, StatusUnhealthy, false},
		{"辅助组件不健康只降级", []Checker{&mockChecker{name: "radio", status: StatusHealthy}, Optional(&mockChecker{name: "database", status: StatusUnhealthy})}, StatusDegraded, true},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(tt.checkers...)
			assert.Equal(t, tt.want, agg.OverallStatus(context.Background()))
			assert.Equal(t, tt.wantReady, agg.Ready(context.Background()))
		})
	}
}

func TestAggregatorCheckAll(t *testing.T) {
	agg := NewAggregator(&mockChecker{name: "radio", status: StatusHealthy})
	agg.AddChecker(Optional(&mockChecker{name: "redis", status: StatusUnhealthy}))

	results := agg.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.False(t, results["radio"].Optional)
	assert.True(t, results["redis"].Optional)
	assert.Equal(t, StatusDegraded, results["redis"].Status)

	report := agg.Report(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.False(t, report.Timestamp.IsZero())
}

func TestAggregatorTimeout(t *testing.T) {
	agg := NewAggregator(&mockChecker{name: "radio", status: StatusHealthy, delay: time.Second})
	agg.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	results := agg.CheckAll(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, results["radio"].Status)
	assert.Equal(t, "check timed out", results["radio"].Message)
}

type fakeQueue struct {
	stats redisstorage.QueueStats
	err   error
}

func (q *fakeQueue) QueueStats(context.Context) (redisstorage.QueueStats, error) { return q.stats, q.err }

func TestTxQueueChecker(t *testing.T) {
	q := &fakeQueue{stats: redisstorage.QueueStats{Pending: 3, Dead: 2}}
	c := NewTxQueueChecker(q, 10)

	// 首次检查只记录已有死信
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.EqualValues(t, 2, res.Details["dead"])

	q.stats.Dead = 4
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "2 new dead letters", res.Message)

	res = c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	q.stats.Pending = 11
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "tx backlog above limit", res.Message)

	q.err = errors.New("connection refused")
	res = c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}
