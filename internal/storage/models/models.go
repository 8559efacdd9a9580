package models

import (
	"time"
)

// 注意：
// - 与 db/migrations 保持对齐
// - 不使用 gorm.Model，显式声明每个字段

// RxPacket 映射 rx_packets 表
type RxPacket struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceSN string `gorm:"column:device_sn;type:text;not null;index:idx_rx_packets_device_time,priority:1"`
	// peer_data | peer_message
	Kind    string `gorm:"column:kind;type:text;not null"`
	Payload []byte `gorm:"column:payload;not null"`
	// 信号质量，旧版通知可能缺失
	RSSI       *int16    `gorm:"column:rssi"`
	SNR        *int16    `gorm:"column:snr"`
	ReceivedAt time.Time `gorm:"column:received_at;not null;index:idx_rx_packets_device_time,priority:2,sort:desc"`
}

func (RxPacket) TableName() string { return "rx_packets" }

// TxLog 映射 tx_log 表
type TxLog struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MsgID      string    `gorm:"column:msg_id;type:text;not null;uniqueIndex"`
	DeviceSN   string    `gorm:"column:device_sn;type:text;not null"`
	Payload    []byte    `gorm:"column:payload;not null"`
	Success    bool      `gorm:"column:success;not null;default:false"`
	Attempts   int32     `gorm:"column:attempts;not null;default:0"`
	Error      *string   `gorm:"column:error;type:text"`
	DurationMs int32     `gorm:"column:duration_ms;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TxLog) TableName() string { return "tx_log" }

// RadioConfig 映射 radio_configs 表（参数下发历史）
type RadioConfig struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceSN  string    `gorm:"column:device_sn;type:text;not null"`
	Source    string    `gorm:"column:source;type:text;not null"` // startup | api | profile:<name>
	Config    string    `gorm:"column:config;type:jsonb;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;autoCreateTime"`
}

func (RadioConfig) TableName() string { return "radio_configs" }
