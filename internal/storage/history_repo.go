package storage

import (
	"context"
	"time"

	"github.com/taoyao-code/rui3-gateway/internal/storage/models"
)

// 列表查询默认与上限条数
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// PacketFilter 收发记录查询条件；零值字段不参与过滤
type PacketFilter struct {
	DeviceSN string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Normalize 规整分页参数
func (f PacketFilter) Normalize() PacketFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// HistoryRepo 收发历史的查询端。
// 写入由 pg.Repository 负责，查询统一走本接口。
type HistoryRepo interface {
	// ListRxPackets 按接收时间倒序返回接收记录
	ListRxPackets(ctx context.Context, f PacketFilter) ([]models.RxPacket, error)
	// ListTxLog 按创建时间倒序返回发送流水
	ListTxLog(ctx context.Context, f PacketFilter) ([]models.TxLog, error)
	// GetTxLog 按消息 ID 查询单条发送流水
	GetTxLog(ctx context.Context, msgID string) (*models.TxLog, error)
	// LatestRadioConfig 最近一次参数下发记录，不存在时返回 gorm.ErrRecordNotFound
	LatestRadioConfig(ctx context.Context, deviceSN string) (*models.RadioConfig, error)
	// CountRxSince 统计 since 之后的接收条数
	CountRxSince(ctx context.Context, deviceSN string, since time.Time) (int64, error)
}
