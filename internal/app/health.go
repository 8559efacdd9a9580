package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/rui3-gateway/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器；未配置数据库时不添加数据库检查
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	agg := health.NewAggregator()
	if dbpool != nil {
		agg.AddChecker(health.Optional(health.NewDatabaseChecker(dbpool)))
	}
	return agg
}

// AddRadioChecker 添加模组检查器
func AddRadioChecker(aggregator *health.Aggregator, probe health.RadioProbe, breaker health.LinkBreaker, staleAfter time.Duration) {
	aggregator.AddChecker(health.NewRadioChecker(probe, breaker, staleAfter))
}

// AddTxQueueChecker 添加发送队列检查器
func AddTxQueueChecker(aggregator *health.Aggregator, queue health.QueueStatser, maxPending int64) {
	aggregator.AddChecker(health.Optional(health.NewTxQueueChecker(queue, maxPending)))
}
