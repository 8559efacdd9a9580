// Package middleware 提供HTTP中间件
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthConfig API认证配置。
// ReadOnlyKeys 只能访问 GET/HEAD，写射频参数、发包、复位须使用 APIKeys。
type AuthConfig struct {
	APIKeys      []string `json:"api_keys"`
	ReadOnlyKeys []string `json:"read_only_keys"`
	Enabled      bool     `json:"enabled"`
}

// 上下文键
const (
	CtxAuthenticated = "authenticated"
	CtxKeyScope      = "api_key_scope"
)

// 授权范围
const (
	ScopeFull     = "full"
	ScopeReadOnly = "read_only"
)

// APIKeyAuth API Key认证中间件，Key 可放在 X-API-Key 或 Authorization: Bearer 中
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		apiKey := extractKey(c)
		if apiKey == "" {
			logger.Warn("api auth: missing api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()))
			abort(c, http.StatusUnauthorized, "missing api key")
			return
		}

		scope := ""
		switch {
		case containsKey(cfg.APIKeys, apiKey):
			scope = ScopeFull
		case containsKey(cfg.ReadOnlyKeys, apiKey):
			scope = ScopeReadOnly
		}
		if scope == "" {
			logger.Warn("api auth: invalid api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("api_key_prefix", maskAPIKey(apiKey)))
			abort(c, http.StatusForbidden, "invalid api key")
			return
		}
		if scope == ScopeReadOnly && !isReadMethod(c.Request.Method) {
			logger.Warn("api auth: read-only key used for write",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("api_key_prefix", maskAPIKey(apiKey)))
			abort(c, http.StatusForbidden, "api key is read-only")
			return
		}

		logger.Debug("api auth: authenticated",
			zap.String("path", c.Request.URL.Path),
			zap.String("scope", scope),
			zap.String("api_key_prefix", maskAPIKey(apiKey)))
		c.Set(CtxAuthenticated, true)
		c.Set(CtxKeyScope, scope)
		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k
	}
	if k, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(k)
	}
	return ""
}

// containsKey 逐个常量时间比较
func containsKey(keys []string, key string) bool {
	found := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = true
		}
	}
	return found
}

func isReadMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead
}

// abort 与 api 包的 StandardResponse 保持同一外形
func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":       status,
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

// maskAPIKey 脱敏API Key（仅显示前4位和后4位）
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
