package rui3

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport 串口/命令层错误（I/O、超时、设备返回 AT_* 错误码）
	ErrTransport = errors.New("rui3: transport error")
	// ErrReplyShapeMismatch 设备回复与命令描述符的回复形状不一致
	ErrReplyShapeMismatch = errors.New("rui3: reply shape mismatch")
	// ErrMalformedHex 十六进制负载非法（奇数长度或非 hex 字符）
	ErrMalformedHex = errors.New("rui3: malformed hex")
	// ErrParseFailure URC 行无法识别（由解析器吞掉，不向上传播）
	ErrParseFailure = errors.New("rui3: unrecognized notification")
	// ErrInvalidArgument 本地参数非法（负载过长、密钥超长等）
	ErrInvalidArgument = errors.New("rui3: invalid argument")
)

// TransportError 包装底层 I/O 或超时错误
type TransportError struct {
	Op  string // 出错时正在执行的命令，如 "AT+PSEND"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rui3: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// 设备最终结果码
const (
	CodeOK                = "OK"
	CodeError             = "AT_ERROR"
	CodeParamError        = "AT_PARAM_ERROR"
	CodeBusyError         = "AT_BUSY_ERROR"
	CodeParamOverflow     = "AT_TEST_PARAM_OVERFLOW"
	CodeNoClassBEnable    = "AT_NO_CLASSB_ENABLE"
	CodeNoNetworkJoined   = "AT_NO_NETWORK_JOINED"
	CodeRXError           = "AT_RX_ERROR"
	CodeModeNoSupport     = "AT_MODE_NO_SUPPORT"
	CodeCommandNotFound   = "AT_COMMAND_NOT_FOUND"
	CodeUnsupportedBand   = "AT_UNSUPPORTED_BAND"
	CodeDutyCycleRestrict = "AT_DUTYCYCLE_RESTRICTED"
)

// IsFinalCode 判断一行是否为命令结束码
func IsFinalCode(line string) bool {
	switch line {
	case CodeOK, CodeError, CodeParamError, CodeBusyError, CodeParamOverflow,
		CodeNoClassBEnable, CodeNoNetworkJoined, CodeRXError, CodeModeNoSupport,
		CodeCommandNotFound, CodeUnsupportedBand, CodeDutyCycleRestrict:
		return true
	}
	return false
}

// DeviceError 设备以 AT_* 错误码拒绝了命令
type DeviceError struct {
	Command string
	Code    string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("rui3: %s rejected by device: %s", e.Command, e.Code)
}

// Is 设备错误归入 transport 类：调用方据此区分"设备/链路问题"与"本地数据问题"
func (e *DeviceError) Is(target error) bool { return target == ErrTransport }

// Retryable 参数类错误重发也不会成功
func (e *DeviceError) Retryable() bool {
	switch e.Code {
	case CodeParamError, CodeCommandNotFound, CodeModeNoSupport, CodeParamOverflow, CodeUnsupportedBand:
		return false
	}
	return true
}

// ShapeError 描述回复形状不匹配的细节
type ShapeError struct {
	Command string
	Reason  string
	Raw     string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("rui3: %s reply %q: %s", e.Command, e.Raw, e.Reason)
}

func (e *ShapeError) Is(target error) bool { return target == ErrReplyShapeMismatch }

// IsRetryable 判断错误是否值得通过重发恢复
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return errors.Is(err, ErrTransport)
}

// IsLocalDataError 本地输入问题（应修正输入而不是重试）
func IsLocalDataError(err error) bool {
	return errors.Is(err, ErrMalformedHex) ||
		errors.Is(err, ErrReplyShapeMismatch) ||
		errors.Is(err, ErrInvalidArgument)
}
