package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/rui3-gateway/internal/atclient"
	cfgpkg "github.com/taoyao-code/rui3-gateway/internal/config"
	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"github.com/taoyao-code/rui3-gateway/internal/radio"
	"github.com/taoyao-code/rui3-gateway/internal/serialport"
)

// RadioStack 串口链路 + AT 客户端 + 射频会话
type RadioStack struct {
	Link    *serialport.Link
	Ingress *atclient.Ingress
	Client  *atclient.Client
	Radio   *radio.Radio
}

// Resync 模组复位后清空行缓冲与回复队列
func (s *RadioStack) Resync() {
	s.Ingress.Reset()
	s.Client.Resync()
}

// OpenRadio 打开串口并组装会话；读循环在 ctx 上运行，退出时通过 pumpErr 返回
func OpenRadio(ctx context.Context, cfg *cfgpkg.Config, onPacket func(radio.Packet), logger *zap.Logger, appm *metrics.AppMetrics) (*RadioStack, <-chan error, error) {
	rev, err := rui3.ParseRevision(cfg.Radio.Revision)
	if err != nil {
		return nil, nil, err
	}
	link, err := serialport.Open(serialport.Config{
		Device:      cfg.Serial.Device,
		BaudRate:    cfg.Serial.BaudRate,
		ReadTimeout: cfg.Serial.ReadTimeout,
		FlushOnOpen: cfg.Serial.FlushOnOpen,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	q := atclient.NewQueues(cfg.Session.ResponseQueue, cfg.Session.NotificationQueue)
	ingress := atclient.NewIngress(q, logger, appm)
	client := atclient.New(link, q, atclient.Options{
		Timeout:          cfg.Session.CommandTimeout,
		Retries:          cfg.Session.Retries,
		Backoff:          cfg.Session.RetryBackoff,
		BreakerThreshold: cfg.Session.BreakerThreshold,
		BreakerCooldown:  cfg.Session.BreakerCooldown,
	}, logger, appm)

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- link.Pump(ctx, ingress) }()

	r := radio.New(client, client, radio.Options{
		Revision:     rev,
		PollInterval: cfg.Session.PollInterval,
		OnPacket:     onPacket,
	}, logger, appm)

	logger.Info("radio session ready",
		zap.String("device", link.Name()),
		zap.Stringer("revision", rev))
	return &RadioStack{Link: link, Ingress: ingress, Client: client, Radio: r}, pumpErr, nil
}

// ResolveConfiguration 计算启动参数：指定了 profile 时使用命名参数集，否则使用 radio.* 字段
func ResolveConfiguration(rc cfgpkg.RadioConfig) (rui3.Configuration, *radio.Profiles, error) {
	profiles, err := radio.LoadProfiles(rc.ProfilesPath)
	if err != nil {
		return rui3.Configuration{}, nil, err
	}
	if rc.Profile != "" {
		cfg, ok := profiles.Get(rc.Profile)
		if !ok {
			return rui3.Configuration{}, profiles, fmt.Errorf("radio profile %q not found in %q", rc.Profile, rc.ProfilesPath)
		}
		return cfg, profiles, nil
	}

	cfg := rui3.Configuration{
		Frequency:         rc.Frequency,
		SpreadingFactor:   rc.SpreadingFactor,
		PreambleLength:    rc.PreambleLength,
		TxPower:           rc.TxPower,
		EncryptionEnabled: rc.Encryption,
		EncryptionKey:     rc.EncryptionKey,
	}
	if err := cfg.Mode.UnmarshalText([]byte(rc.Mode)); err != nil {
		return cfg, profiles, err
	}
	if err := cfg.Bandwidth.UnmarshalText([]byte(rc.Bandwidth)); err != nil {
		return cfg, profiles, err
	}
	if err := cfg.CodeRate.UnmarshalText([]byte(rc.CodeRate)); err != nil {
		return cfg, profiles, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, profiles, err
	}
	return cfg, profiles, nil
}
