package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RxPruner 删除早于 before 的接收记录（pg.Repository 实现）
type RxPruner interface {
	PruneRxPackets(ctx context.Context, before time.Time) (int64, error)
}

// RetentionCleaner 接收记录清理器：定期删除超过保留期的记录
type RetentionCleaner struct {
	repo          RxPruner
	retention     time.Duration
	logger        *zap.Logger
	checkInterval time.Duration // 检查间隔

	// 统计
	statsCleaned int64
}

// NewRetentionCleaner 创建清理器
func NewRetentionCleaner(repo RxPruner, retentionDays int, logger *zap.Logger) *RetentionCleaner {
	return &RetentionCleaner{
		repo:          repo,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		logger:        logger,
		checkInterval: 1 * time.Hour, // 每小时清理一次
	}
}

// Start 启动清理器，阻塞直到 ctx 结束
func (c *RetentionCleaner) Start(ctx context.Context) {
	c.logger.Info("rx retention cleaner started",
		zap.Duration("retention", c.retention),
		zap.Duration("check_interval", c.checkInterval))

	c.cleanOnce(ctx)
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("rx retention cleaner stopped",
				zap.Int64("total_cleaned", c.statsCleaned))
			return
		case <-ticker.C:
			c.cleanOnce(ctx)
		}
	}
}

func (c *RetentionCleaner) cleanOnce(ctx context.Context) {
	cutoff := time.Now().Add(-c.retention)
	n, err := c.repo.PruneRxPackets(ctx, cutoff)
	if err != nil {
		c.logger.Error("prune rx packets failed", zap.Error(err))
		return
	}
	if n > 0 {
		c.statsCleaned += n
		c.logger.Info("pruned expired rx packets",
			zap.Int64("cleaned", n),
			zap.Time("cutoff", cutoff),
			zap.Int64("total_cleaned", c.statsCleaned))
	}
}
