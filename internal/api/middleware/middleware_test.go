package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	return r
}

func do(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := AuthConfig{Enabled: true, APIKeys: []string{"sk_live_0123456789"}}
	r := newEngine(APIKeyAuth(cfg, zaptest.NewLogger(t)))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"缺少Key", nil, http.StatusUnauthorized},
		{"无效Key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"X-API-Key", map[string]string{"X-API-Key": "sk_live_0123456789"}, http.StatusOK},
		{"Bearer", map[string]string{"Authorization": "Bearer sk_live_0123456789"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(r, tt.header).Code)
		})
	}
}

func TestAPIKeyAuth_ReadOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := AuthConfig{Enabled: true, APIKeys: []string{"sk_live_full0001"}, ReadOnlyKeys: []string{"sk_live_read0001"}}
	r := gin.New()
	r.Use(APIKeyAuth(cfg, zaptest.NewLogger(t)))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxKeyScope)) })
	r.POST("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxKeyScope)) })

	tests := []struct {
		name      string
		method    string
		key       string
		want      int
		wantScope string
	}{
		{"只读Key读取", http.MethodGet, "sk_live_read0001", http.StatusOK, ScopeReadOnly},
		{"只读Key写入", http.MethodPost, "sk_live_read0001", http.StatusForbidden, ""},
		{"完整Key写入", http.MethodPost, "sk_live_full0001", http.StatusOK, ScopeFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/x", nil)
			req.Header.Set("X-API-Key", tt.key)
			r.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, tt.wantScope, rr.Body.String())
			}
		})
	}
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	r := newEngine(APIKeyAuth(AuthConfig{}, zaptest.NewLogger(t)))
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_l****6789", maskAPIKey("sk_live_0123456789"))
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 2}))
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, nil).Code)

	off := newEngine(RateLimit(RateLimitConfig{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(off, nil).Code)
	}
}

func TestRequestTracing(t *testing.T) {
	r := newEngine(RequestTracing())

	rr := do(r, map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", rr.Body.String())
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))

	rr = do(r, nil)
	assert.Len(t, rr.Body.String(), 36)
}
