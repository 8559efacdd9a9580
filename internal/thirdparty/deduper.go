package thirdparty

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dedupKeyPrefix = "rui3:dedup"

	// DefaultDedupTTL 对端重传通常在数秒内完成
	DefaultDedupTTL = 30 * time.Second
)

// Deduper 基于 Redis SETNX 的去重器，多实例共享
type Deduper struct {
	redis  redis.UniversalClient
	logger *zap.Logger
	ttl    time.Duration
}

// NewDeduper ttl 为零时取 DefaultDedupTTL
func NewDeduper(client redis.UniversalClient, logger *zap.Logger, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduper{redis: client, logger: logger, ttl: ttl}
}

// PacketKey 同一模组同一载荷映射到同一 key
func PacketKey(deviceSN string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(deviceSN))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// IsDuplicate 首次出现返回 false 并占位，TTL 内再次出现返回 true
func (d *Deduper) IsDuplicate(ctx context.Context, key string) (bool, error) {
	if d == nil || d.redis == nil {
		return false, errors.New("deduper not initialized")
	}
	if key == "" {
		return false, errors.New("dedup key is empty")
	}

	ok, err := d.redis.SetNX(ctx, d.buildKey(key), "1", d.ttl).Result()
	if err != nil {
		d.logger.Error("dedup check failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		d.logger.Debug("duplicate packet detected", zap.String("key", key))
	}
	return !ok, nil
}

// Delete 删除去重标记
func (d *Deduper) Delete(ctx context.Context, key string) error {
	if d == nil || d.redis == nil {
		return errors.New("deduper not initialized")
	}
	return d.redis.Del(ctx, d.buildKey(key)).Err()
}

func (d *Deduper) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", dedupKeyPrefix, key)
}
