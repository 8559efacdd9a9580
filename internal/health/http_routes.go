package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查路由：
//
//	GET /health        完整报告，不健康时 503
//	GET /health/ready  模组可通信时 200
//	GET /health/live   进程存活
func RegisterHTTPRoutes(r gin.IRoutes, aggregator *Aggregator) {
	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		c.JSON(statusCode(report.Status), report)
	})

	r.GET("/health/ready", func(c *gin.Context) {
		status := aggregator.OverallStatus(c.Request.Context())
		c.JSON(statusCode(status), gin.H{
			"status": status,
			"ready":  status != StatusUnhealthy,
		})
	})

	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})
}

// statusCode 降级仍返回 200
func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
