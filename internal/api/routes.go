package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/rui3-gateway/internal/api/middleware"
)

// RegisterRadioRoutes 注册射频控制与历史查询路由
func RegisterRadioRoutes(
	r *gin.Engine,
	radioHandler *RadioHandler,
	historyHandler *HistoryHandler,
	authCfg middleware.AuthConfig,
	rateCfg middleware.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || radioHandler == nil {
		return
	}

	api := r.Group("/api")
	api.Use(middleware.RequestTracing())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	api.Use(middleware.RateLimit(rateCfg))

	rg := api.Group("/radio")
	rg.GET("/config", radioHandler.GetConfig)
	rg.PUT("/config", radioHandler.PutConfig)
	rg.GET("/profiles", radioHandler.ListProfiles)
	rg.POST("/profiles/:name", radioHandler.ApplyProfile)
	rg.POST("/send", radioHandler.Send)
	rg.POST("/tx", radioHandler.Enqueue)
	rg.POST("/receive", radioHandler.Receive)
	rg.GET("/link", radioHandler.Link)
	rg.GET("/info", radioHandler.Info)
	rg.POST("/reset", radioHandler.Reset)
	rg.GET("/recent", radioHandler.Recent)
	rg.GET("/stream", radioHandler.Stream)
	rg.POST("/restore-defaults", radioHandler.RestoreDefaults)
	rg.PUT("/alias", radioHandler.SetAlias)
	rg.GET("/tuning", radioHandler.GetTuning)
	rg.PATCH("/tuning", radioHandler.PatchTuning)

	api.GET("/tx/stats", radioHandler.TxStats)

	endpoints := 17
	if historyHandler != nil {
		rg.GET("/config/latest", historyHandler.LatestConfig)
		api.GET("/packets", historyHandler.ListPackets)
		api.GET("/packets/count", historyHandler.CountPackets)
		api.GET("/tx", historyHandler.ListTx)
		api.GET("/tx/:id", historyHandler.GetTx)
		endpoints += 5
	}

	logger.Info("radio routes registered", zap.Int("endpoints", endpoints))
}
