package gormrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taoyao-code/rui3-gateway/internal/storage"
	"github.com/taoyao-code/rui3-gateway/internal/storage/models"
)

// Open 基于已有 pgx 连接池创建 *gorm.DB，两者共享连接
func Open(pool *pgxpool.Pool) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
}

// Repository 基于 GORM 的 HistoryRepo 实现
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 HistoryRepo
func New(db *gorm.DB) storage.HistoryRepo {
	return &Repository{db: db}
}

// scoped 应用设备与时间窗过滤
func (r *Repository) scoped(ctx context.Context, f storage.PacketFilter, timeCol string) *gorm.DB {
	q := r.db.WithContext(ctx)
	if f.DeviceSN != "" {
		q = q.Where("device_sn = ?", f.DeviceSN)
	}
	if !f.Since.IsZero() {
		q = q.Where(timeCol+" >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where(timeCol+" < ?", f.Until)
	}
	return q
}

// ListRxPackets 按 received_at 倒序分页。
func (r *Repository) ListRxPackets(ctx context.Context, f storage.PacketFilter) ([]models.RxPacket, error) {
	f = f.Normalize()
	var rows []models.RxPacket
	err := r.scoped(ctx, f, "received_at").
		Order("received_at DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListTxLog 按 created_at 倒序分页。
func (r *Repository) ListTxLog(ctx context.Context, f storage.PacketFilter) ([]models.TxLog, error) {
	f = f.Normalize()
	var rows []models.TxLog
	err := r.scoped(ctx, f, "created_at").
		Order("created_at DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetTxLog 按消息 ID 查询。
func (r *Repository) GetTxLog(ctx context.Context, msgID string) (*models.TxLog, error) {
	var row models.TxLog
	if err := r.db.WithContext(ctx).Where("msg_id = ?", msgID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestRadioConfig 最近一次参数下发。
func (r *Repository) LatestRadioConfig(ctx context.Context, deviceSN string) (*models.RadioConfig, error) {
	var row models.RadioConfig
	err := r.db.WithContext(ctx).
		Where("device_sn = ?", deviceSN).
		Order("applied_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &row, err
}

// CountRxSince 统计接收条数。
func (r *Repository) CountRxSince(ctx context.Context, deviceSN string, since time.Time) (int64, error) {
	var n int64
	err := r.scoped(ctx, storage.PacketFilter{DeviceSN: deviceSN, Since: since}, "received_at").
		Model(&models.RxPacket{}).
		Count(&n).Error
	return n, err
}
