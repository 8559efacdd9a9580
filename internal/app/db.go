package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taoyao-code/rui3-gateway/db"
	cfgpkg "github.com/taoyao-code/rui3-gateway/internal/config"
	"github.com/taoyao-code/rui3-gateway/internal/migrate"
	"github.com/taoyao-code/rui3-gateway/internal/storage"
	"github.com/taoyao-code/rui3-gateway/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/rui3-gateway/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行内嵌迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := (migrate.Runner{FS: db.Migrations, Logger: log}).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			return dbpool, err
		}
		log.Info("db migrations applied", zap.Int("applied", n))
	}
	return dbpool, nil
}

// NewHistoryRepo 在同一连接池上打开 GORM 查询端
func NewHistoryRepo(pool *pgxpool.Pool) (storage.HistoryRepo, *gorm.DB, error) {
	gdb, err := gormrepo.Open(pool)
	if err != nil {
		return nil, nil, err
	}
	return gormrepo.New(gdb), gdb, nil
}
