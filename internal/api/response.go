package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/rui3-gateway/internal/atclient"
	"github.com/taoyao-code/rui3-gateway/internal/gateway"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
)

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, StandardResponse{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

func respondError(c *gin.Context, status int, message string, data map[string]interface{}) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

// respondRadioError 按错误类别映射 HTTP 状态码
func respondRadioError(c *gin.Context, err error) {
	status := errorStatus(err)
	var data map[string]interface{}
	var devErr *rui3.DeviceError
	if errors.As(err, &devErr) {
		data = map[string]interface{}{"device_code": devErr.Code, "command": devErr.Command}
	}
	_ = c.Error(err)
	respondError(c, status, err.Error(), data)
}

func errorStatus(err error) int {
	var devErr *rui3.DeviceError
	switch {
	case errors.Is(err, rui3.ErrInvalidArgument), errors.Is(err, rui3.ErrMalformedHex):
		return http.StatusBadRequest
	case errors.Is(err, atclient.ErrBreakerOpen), errors.Is(err, gateway.ErrNotAttached):
		return http.StatusServiceUnavailable
	case errors.As(err, &devErr), errors.Is(err, rui3.ErrReplyShapeMismatch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, rui3.ErrTransport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
