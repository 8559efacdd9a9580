package thirdparty

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// EventPacketReceived 收到对端数据
	EventPacketReceived EventType = "radio.packet_received"

	// EventTxResult 发送队列中一条消息的最终结果
	EventTxResult EventType = "radio.tx_result"

	// EventConfigApplied 射频参数下发完成
	EventConfigApplied EventType = "radio.config_applied"

	// EventLinkStateChanged 串口链路熔断状态变化
	EventLinkStateChanged EventType = "radio.link_state_changed"
)

// StandardEvent 标准事件结构
type StandardEvent struct {
	EventID   string         `json:"event_id"`  // 事件唯一ID（用于去重）
	EventType EventType      `json:"event_type"`
	DeviceSN  string         `json:"device_sn"` // 模组序列号
	Timestamp int64          `json:"timestamp"` // Unix 秒
	Nonce     string         `json:"nonce"`
	Data      map[string]any `json:"data"`
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, deviceSN string, data map[string]any) *StandardEvent {
	id := uuid.New()
	return &StandardEvent{
		EventID:   id.String(),
		EventType: eventType,
		DeviceSN:  deviceSN,
		Timestamp: time.Now().Unix(),
		Nonce:     fmt.Sprintf("%08x", id.ID()),
		Data:      data,
	}
}

// PacketReceivedData 收包事件数据
func PacketReceivedData(kind string, payloadHex string, rssi, snr int16, hasSignal bool) map[string]any {
	d := map[string]any{
		"kind":        kind,
		"payload_hex": payloadHex,
	}
	if hasSignal {
		d["rssi"] = rssi
		d["snr"] = snr
	}
	return d
}

// TxResultData 发送结果事件数据
func TxResultData(msgID string, success bool, retries int, errMsg string) map[string]any {
	d := map[string]any{
		"msg_id":  msgID,
		"success": success,
		"retries": retries,
	}
	if errMsg != "" {
		d["error"] = errMsg
	}
	return d
}
