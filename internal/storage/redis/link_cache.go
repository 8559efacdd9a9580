package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const linkKeyPrefix = "rui3:link:"

// LinkSnapshot 最近一次链路质量
type LinkSnapshot struct {
	RSSI      int16     `json:"rssi"`
	SNR       int16     `json:"snr"`
	UpdatedAt time.Time `json:"updated_at"`
	RxPackets int64     `json:"rx_packets"`
}

// ErrNoLink 尚无链路记录
var ErrNoLink = errors.New("no link snapshot")

// LinkCache 按模组序列号缓存链路质量，供多实例查询
type LinkCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLinkCache ttl<=0 时取 24h
func NewLinkCache(client redis.UniversalClient, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkCache{client: client, ttl: ttl}
}

// UpdateSignal 写入信号质量
func (c *LinkCache) UpdateSignal(ctx context.Context, deviceSN string, rssi, snr int16, at time.Time) error {
	key := linkKeyPrefix + deviceSN
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"rssi":       rssi,
		"snr":        snr,
		"updated_at": at.UnixMilli(),
	})
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// IncrRx 接收计数加一
func (c *LinkCache) IncrRx(ctx context.Context, deviceSN string) error {
	key := linkKeyPrefix + deviceSN
	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "rx_packets", 1)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get 读取链路快照
func (c *LinkCache) Get(ctx context.Context, deviceSN string) (LinkSnapshot, error) {
	m, err := c.client.HGetAll(ctx, linkKeyPrefix+deviceSN).Result()
	if err != nil {
		return LinkSnapshot{}, err
	}
	if len(m) == 0 {
		return LinkSnapshot{}, ErrNoLink
	}
	var s LinkSnapshot
	if v, err := strconv.ParseInt(m["rssi"], 10, 16); err == nil {
		s.RSSI = int16(v)
	}
	if v, err := strconv.ParseInt(m["snr"], 10, 16); err == nil {
		s.SNR = int16(v)
	}
	if v, err := strconv.ParseInt(m["updated_at"], 10, 64); err == nil {
		s.UpdatedAt = time.UnixMilli(v)
	}
	if v, err := strconv.ParseInt(m["rx_packets"], 10, 64); err == nil {
		s.RxPackets = v
	}
	return s, nil
}
