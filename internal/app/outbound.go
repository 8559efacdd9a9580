package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rui3-gateway/internal/config"
	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/outbound"
	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// deadLetterCap 内存队列保留的死信条数
const deadLetterCap = 100

// StartOutbound 启动发送队列 Worker：有 Redis 时使用持久队列，否则使用内存队列
func StartOutbound(ctx context.Context, cfg cfgpkg.GatewayConfig, redisClient *redisstorage.Client, tx outbound.Transmitter, onResult func(outbound.Result), logger *zap.Logger, appm *metrics.AppMetrics) *outbound.Worker {
	var q outbound.Queue
	if redisClient != nil {
		q = redisstorage.NewTxQueue(redisClient)
	} else {
		q = outbound.NewMemoryQueue(deadLetterCap)
	}
	w := outbound.NewWorker(q, tx, outbound.Options{
		Throttle:        time.Duration(cfg.ThrottleMs) * time.Millisecond,
		RetryMax:        cfg.RetryMax,
		DutyCyclePerSec: cfg.DutyCyclePerSec,
		DutyCycleBurst:  cfg.DutyCycleBurst,
	}, logger, appm)
	w.OnResult(onResult)
	go w.Start(ctx)
	logger.Info("tx queue backend selected", zap.Bool("redis", redisClient != nil))
	return w
}
