package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/rui3-gateway/internal/outbound"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"github.com/taoyao-code/rui3-gateway/internal/radio"
	"github.com/taoyao-code/rui3-gateway/internal/storage/pg"
	"github.com/taoyao-code/rui3-gateway/internal/thirdparty"
)

// maxDrainPerTick 单次轮询最多处理的通知数，避免长时间占用模组锁
const maxDrainPerTick = 64

// ErrNotAttached 尚未绑定射频会话
var ErrNotAttached = errors.New("gateway: radio not attached")

// Store 收发流水持久化（pg.Repository 实现）
type Store interface {
	InsertRxPacket(ctx context.Context, p pg.RxPacket) (int64, error)
	InsertTxLog(ctx context.Context, t pg.TxRecord) error
	InsertRadioConfig(ctx context.Context, deviceSN, source string, config any) error
}

// LinkCache 链路质量缓存（redis.LinkCache 实现）
type LinkCache interface {
	UpdateSignal(ctx context.Context, deviceSN string, rssi, snr int16, at time.Time) error
	IncrRx(ctx context.Context, deviceSN string) error
}

// Deduper 对端重传去重（thirdparty.Deduper 实现）
type Deduper interface {
	IsDuplicate(ctx context.Context, key string) (bool, error)
}

// Deps 可选依赖，nil 表示未启用
type Deps struct {
	Store       Store
	Links       LinkCache
	Dedup       Deduper
	Publisher   thirdparty.Publisher
	PushMetrics *thirdparty.Metrics
}

// Resyncer 复位后清理串口行缓冲与待取回复
type Resyncer interface {
	Resync()
}

// Options 服务参数
type Options struct {
	PollInterval time.Duration
	RecentSize   int // 内存中保留的最近收包条数
	SinkBuffer   int
}

// Service 网关服务：独占一路模组，串行化所有 AT 访问，
// 持续泵出收到的数据并分发到存储、缓存与 Webhook。
type Service struct {
	mu     sync.Mutex // 模组访问互斥
	radio  *radio.Radio
	resync Resyncer

	deps   Deps
	opts   Options
	logger *zap.Logger

	sink chan radio.Packet

	stateMu  sync.RWMutex
	deviceSN string
	info     radio.DeviceInfo
	config   rui3.Configuration
	hasCfg   bool
	recent   []RecentPacket

	subMu sync.Mutex
	subs  map[chan RecentPacket]struct{}
}

// RecentPacket 对外展示的收包记录
type RecentPacket struct {
	Kind       string    `json:"kind"`
	PayloadHex string    `json:"payload_hex"`
	RSSI       *int16    `json:"rssi,omitempty"`
	SNR        *int16    `json:"snr,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Duplicate  bool      `json:"duplicate,omitempty"`
}

// New 创建服务；射频会话需用 HandlePacket 作为 OnPacket 回调创建后 Attach
func New(deps Deps, opts Options, logger *zap.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.RecentSize <= 0 {
		opts.RecentSize = 100
	}
	if opts.SinkBuffer <= 0 {
		opts.SinkBuffer = 256
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger,
		sink:   make(chan radio.Packet, opts.SinkBuffer),
		subs:   make(map[chan RecentPacket]struct{}),
	}
}

// Attach 绑定射频会话
func (s *Service) Attach(r *radio.Radio) {
	s.mu.Lock()
	s.radio = r
	s.mu.Unlock()
}

// SetResyncer 绑定复位后的链路清理
func (s *Service) SetResyncer(r Resyncer) {
	s.mu.Lock()
	s.resync = r
	s.mu.Unlock()
}

// HandlePacket 作为 radio.Options.OnPacket 使用；不阻塞，缓冲满时丢弃
func (s *Service) HandlePacket(p radio.Packet) {
	select {
	case s.sink <- p:
	default:
		s.logger.Warn("packet sink full, dropping", zap.Int("bytes", len(p.Data)))
	}
}

// withRadio 在互斥下访问模组
func (s *Service) withRadio(fn func(r *radio.Radio) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.radio == nil {
		return ErrNotAttached
	}
	return fn(s.radio)
}

// Init 握手、读取设备信息，按需下发参数并打开持续接收
func (s *Service) Init(ctx context.Context, cfg rui3.Configuration, apply bool) error {
	err := s.withRadio(func(r *radio.Radio) error {
		if err := r.Ping(ctx); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		info, err := r.DeviceInfo(ctx)
		if err != nil {
			return fmt.Errorf("device info: %w", err)
		}
		s.stateMu.Lock()
		s.info = info
		s.deviceSN = info.SerialNumber
		s.stateMu.Unlock()

		if apply {
			if err := r.Configure(ctx, cfg); err != nil {
				return err
			}
		} else if cfg, err = r.ReadConfiguration(ctx); err != nil {
			return err
		}
		s.setConfig(cfg)
		return r.StartListening(ctx)
	})
	if err != nil {
		return err
	}
	s.logger.Info("radio initialized",
		zap.String("device_sn", s.DeviceSN()),
		zap.Bool("applied", apply),
		zap.Uint32("frequency", cfg.Frequency),
		zap.Uint8("sf", cfg.SpreadingFactor),
		zap.Stringer("bandwidth", cfg.Bandwidth))
	if apply {
		s.afterConfigure(ctx, cfg, "startup")
	}
	return nil
}

// Run 泵出数据并分发，阻塞直到 ctx 结束
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchLoop(ctx)
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain 一次取完积压的通知；数据经 OnPacket 进入 sink
func (s *Service) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.radio == nil {
		return
	}
	for i := 0; i < maxDrainPerTick; i++ {
		s.radio.PollPacket()
		if !s.radio.Backlogged() {
			return
		}
	}
}

func (s *Service) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-s.sink:
			s.dispatch(ctx, p)
		}
	}
}

// dispatch 去重、落库、缓存、推送；各环节失败只记日志
func (s *Service) dispatch(ctx context.Context, p radio.Packet) {
	sn := s.DeviceSN()
	rec := RecentPacket{
		Kind:       p.Kind.String(),
		PayloadHex: rui3.EncodeHex(p.Data),
		ReceivedAt: p.ReceivedAt,
	}
	if p.HasSignal {
		rssi, snr := p.RSSI, p.SNR
		rec.RSSI, rec.SNR = &rssi, &snr
	}

	if s.deps.Dedup != nil {
		dup, err := s.deps.Dedup.IsDuplicate(ctx, thirdparty.PacketKey(sn, p.Data))
		if err != nil {
			s.logger.Warn("dedup check failed", zap.Error(err))
		} else if dup {
			s.deps.PushMetrics.RecordDedupHit()
			rec.Duplicate = true
			s.remember(rec)
			return
		}
	}
	s.remember(rec)
	s.broadcast(rec)

	if s.deps.Store != nil {
		if _, err := s.deps.Store.InsertRxPacket(ctx, pg.RxPacket{
			DeviceSN: sn, Kind: rec.Kind, Payload: p.Data,
			RSSI: rec.RSSI, SNR: rec.SNR, ReceivedAt: p.ReceivedAt,
		}); err != nil {
			s.logger.Error("persist rx packet failed", zap.Error(err))
		}
	}
	if s.deps.Links != nil {
		if p.HasSignal {
			if err := s.deps.Links.UpdateSignal(ctx, sn, p.RSSI, p.SNR, p.ReceivedAt); err != nil {
				s.logger.Warn("update link cache failed", zap.Error(err))
			}
		}
		if err := s.deps.Links.IncrRx(ctx, sn); err != nil {
			s.logger.Warn("update link cache failed", zap.Error(err))
		}
	}
	s.publish(ctx, thirdparty.NewEvent(thirdparty.EventPacketReceived, sn,
		thirdparty.PacketReceivedData(rec.Kind, rec.PayloadHex, p.RSSI, p.SNR, p.HasSignal)))

	s.logger.Debug("packet received",
		zap.String("kind", rec.Kind),
		zap.Int("bytes", len(p.Data)),
		zap.Int16("rssi", p.RSSI),
		zap.Int16("snr", p.SNR))
}

func (s *Service) publish(ctx context.Context, ev *thirdparty.StandardEvent) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
	}
}

func (s *Service) remember(rec RecentPacket) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.recent = append(s.recent, rec)
	if len(s.recent) > s.opts.RecentSize {
		s.recent = s.recent[len(s.recent)-s.opts.RecentSize:]
	}
}

// Recent 最近 n 条收包，新的在前
func (s *Service) Recent(n int) []RecentPacket {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]RecentPacket, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Subscribe 订阅后续收包；取消函数必须调用，调用后通道关闭。
// 订阅方消费过慢时新包被丢弃，不阻塞分发。
func (s *Service) Subscribe() (<-chan RecentPacket, func()) {
	ch := make(chan RecentPacket, 8)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) broadcast(rec RecentPacket) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Transmit 发送一包数据，实现 outbound.Transmitter
func (s *Service) Transmit(ctx context.Context, payload []byte) error {
	return s.withRadio(func(r *radio.Radio) error { return r.Send(ctx, payload) })
}

var _ outbound.Transmitter = (*Service)(nil)

// ReceiveWindow 独占模组按窗口接收，结束后恢复持续接收
func (s *Service) ReceiveWindow(ctx context.Context, w rui3.ReceiveWindow) ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.withRadio(func(r *radio.Radio) error {
		var err error
		data, err = r.ReceiveWindow(ctx, w)
		if w.Mode == rui3.WindowContinuous || w.Mode == rui3.WindowStop {
			return err
		}
		if rearm := r.StartListening(context.WithoutCancel(ctx)); rearm != nil {
			s.logger.Warn("re-enable continuous receive failed", zap.Error(rearm))
			if err == nil {
				err = rearm
			}
		}
		return err
	})
	return data, err
}

// Configure 下发参数并记录
func (s *Service) Configure(ctx context.Context, cfg rui3.Configuration, source string) error {
	err := s.withRadio(func(r *radio.Radio) error { return r.Configure(ctx, cfg) })
	if err != nil {
		return err
	}
	s.setConfig(cfg)
	s.afterConfigure(ctx, cfg, source)
	return nil
}

func (s *Service) afterConfigure(ctx context.Context, cfg rui3.Configuration, source string) {
	sn := s.DeviceSN()
	// 密钥不出本进程
	if cfg.EncryptionKey != "" {
		cfg.EncryptionKey = "****"
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.InsertRadioConfig(ctx, sn, source, cfg); err != nil {
			s.logger.Error("persist radio config failed", zap.Error(err))
		}
	}
	s.publish(ctx, thirdparty.NewEvent(thirdparty.EventConfigApplied, sn, map[string]any{
		"source": source,
		"config": cfg,
	}))
	s.logger.Info("radio configuration applied", zap.String("source", source))
}

func (s *Service) setConfig(cfg rui3.Configuration) {
	s.stateMu.Lock()
	s.config, s.hasCfg = cfg, true
	s.stateMu.Unlock()
}

// ReadConfiguration 从模组读取当前参数
func (s *Service) ReadConfiguration(ctx context.Context) (rui3.Configuration, error) {
	var cfg rui3.Configuration
	err := s.withRadio(func(r *radio.Radio) error {
		var err error
		cfg, err = r.ReadConfiguration(ctx)
		return err
	})
	if err == nil {
		s.setConfig(cfg)
	}
	return cfg, err
}

// Configuration 最近一次下发或读取的参数
func (s *Service) Configuration() (rui3.Configuration, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.config, s.hasCfg
}

// DeviceSN 模组序列号，Init 之前为空
func (s *Service) DeviceSN() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.deviceSN
}

// DeviceInfo 缓存的设备信息
func (s *Service) DeviceInfo() radio.DeviceInfo {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.info
}

// Signal 最近信号质量
func (s *Service) Signal() radio.Signal {
	s.mu.Lock()
	r := s.radio
	s.mu.Unlock()
	if r == nil {
		return radio.Signal{}
	}
	return r.Signal()
}

// Ping 模组握手，供健康检查使用
func (s *Service) Ping(ctx context.Context) error {
	return s.withRadio(func(r *radio.Radio) error { return r.Ping(ctx) })
}

// Reset 软复位模组；复位后重新下发最近参数并打开接收
func (s *Service) Reset(ctx context.Context, settle time.Duration) error {
	return s.withRadio(func(r *radio.Radio) error {
		if err := r.Reset(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
		// 丢弃启动横幅和复位前残留的半截回复
		if s.resync != nil {
			s.resync.Resync()
		}
		s.stateMu.RLock()
		cfg, ok := s.config, s.hasCfg
		s.stateMu.RUnlock()
		if ok {
			if err := r.Configure(ctx, cfg); err != nil {
				return fmt.Errorf("reapply after reset: %w", err)
			}
		}
		return r.StartListening(ctx)
	})
}

// RestoreDefaults 恢复出厂参数，读回后作为当前参数记录并重新打开接收
func (s *Service) RestoreDefaults(ctx context.Context) (rui3.Configuration, error) {
	var cfg rui3.Configuration
	err := s.withRadio(func(r *radio.Radio) error {
		if err := r.RestoreDefaults(ctx); err != nil {
			return err
		}
		var err error
		if cfg, err = r.ReadConfiguration(ctx); err != nil {
			return fmt.Errorf("read back after restore: %w", err)
		}
		s.setConfig(cfg)
		return r.StartListening(ctx)
	})
	if err != nil {
		return cfg, err
	}
	s.afterConfigure(ctx, cfg, "restore_defaults")
	return cfg, nil
}

// SetAlias 修改模组别名并更新缓存的设备信息
func (s *Service) SetAlias(ctx context.Context, alias string) error {
	err := s.withRadio(func(r *radio.Radio) error { return r.SetAlias(ctx, alias) })
	if err != nil {
		return err
	}
	s.stateMu.Lock()
	s.info.Alias = alias
	s.stateMu.Unlock()
	s.logger.Info("radio alias changed", zap.String("alias", alias))
	return nil
}

// Tuning 读取调谐项
func (s *Service) Tuning(ctx context.Context) (radio.Tuning, error) {
	var t radio.Tuning
	err := s.withRadio(func(r *radio.Radio) error {
		var err error
		t, err = r.ReadTuning(ctx)
		return err
	})
	return t, err
}

// ApplyTuning 下发调谐项并读回
func (s *Service) ApplyTuning(ctx context.Context, u radio.TuningUpdate) (radio.Tuning, error) {
	var t radio.Tuning
	err := s.withRadio(func(r *radio.Radio) error {
		if err := r.ApplyTuning(ctx, u); err != nil {
			return err
		}
		var err error
		t, err = r.ReadTuning(ctx)
		return err
	})
	if err != nil {
		return t, err
	}
	s.publish(ctx, thirdparty.NewEvent(thirdparty.EventConfigApplied, s.DeviceSN(), map[string]any{
		"source": "tuning",
		"tuning": t,
	}))
	s.logger.Info("radio tuning applied",
		zap.Bool("iq_inversion", t.IQInversion),
		zap.Stringer("sync_word", t.SyncWord),
		zap.Uint8("symbol_timeout", t.SymbolTimeout))
	return t, nil
}

// P2PParameters 一次性读取 P2P 参数元组
func (s *Service) P2PParameters(ctx context.Context) (radio.P2PParameters, error) {
	var p radio.P2PParameters
	err := s.withRadio(func(r *radio.Radio) error {
		var err error
		p, err = r.P2PParameters(ctx)
		return err
	})
	return p, err
}

// RecordTxResult 作为 outbound.Worker 的结果回调：落库并推送最终结果
func (s *Service) RecordTxResult(res outbound.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sn := s.DeviceSN()
	success := res.Err == nil
	var errMsg string
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if s.deps.Store != nil {
		rec := pg.TxRecord{
			MsgID: res.Msg.ID, DeviceSN: sn, Payload: res.Msg.Payload,
			Success: success, Attempts: res.Msg.Retries + 1, DurationMs: int32(res.Duration.Milliseconds()),
		}
		if !success {
			rec.Attempts = res.Msg.Retries
			rec.ErrMsg = &errMsg
		}
		if err := s.deps.Store.InsertTxLog(ctx, rec); err != nil {
			s.logger.Error("persist tx log failed", zap.String("msg_id", res.Msg.ID), zap.Error(err))
		}
	}
	if success || res.Dead {
		s.publish(ctx, thirdparty.NewEvent(thirdparty.EventTxResult, sn,
			thirdparty.TxResultData(res.Msg.ID, success, res.Msg.Retries, errMsg)))
	}
}

// NotifyLinkState 串口熔断状态变化时推送
func (s *Service) NotifyLinkState(from, to string) {
	level := s.logger.Info
	if to == "open" {
		level = s.logger.Warn
	}
	level("serial link state changed", zap.String("from", from), zap.String("to", to))
	s.publish(context.Background(), thirdparty.NewEvent(thirdparty.EventLinkStateChanged, s.DeviceSN(), map[string]any{
		"from": from,
		"to":   to,
	}))
}
