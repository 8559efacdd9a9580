package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rui3-gateway/internal/config"
	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
	"github.com/taoyao-code/rui3-gateway/internal/thirdparty"
)

const eventWorkers = 2

// NewEventPublisher 按配置创建事件推送：有 Redis 时走持久队列，否则进程内缓冲。
// 未配置 Webhook 时返回 nil。start 在主上下文上启动推送协程。
func NewEventPublisher(cfg cfgpkg.PushConfig, redisClient *redisstorage.Client, logger *zap.Logger, m *thirdparty.Metrics) (pub thirdparty.Publisher, start func(ctx context.Context)) {
	if cfg.WebhookURL == "" {
		logger.Info("webhook push disabled")
		return nil, func(context.Context) {}
	}
	pusher := thirdparty.NewPusher(&http.Client{Timeout: cfg.Timeout}, "", cfg.Secret)

	if redisClient != nil {
		q := thirdparty.NewEventQueue(redisClient, pusher, cfg.WebhookURL, logger, m)
		logger.Info("webhook push via redis event queue", zap.String("url", cfg.WebhookURL))
		return q, func(ctx context.Context) { q.StartWorker(ctx, eventWorkers) }
	}
	p := thirdparty.NewAsyncPublisher(pusher, cfg.WebhookURL, 0, logger, m)
	logger.Info("webhook push via in-process buffer", zap.String("url", cfg.WebhookURL))
	return p, func(ctx context.Context) { p.Start(ctx, eventWorkers) }
}
