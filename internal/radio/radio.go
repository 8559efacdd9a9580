package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"go.uber.org/zap"
)

// Commander 命令收发（atclient.Client 实现）
type Commander interface {
	SendCommand(ctx context.Context, cmd rui3.Command) (rui3.Reply, error)
	SendCommandRetrying(ctx context.Context, cmd rui3.Command) (rui3.Reply, error)
}

// NotificationSource 非阻塞取 URC 行（atclient.Client 实现）
type NotificationSource interface {
	TryTakeNotification() (string, bool)
}

// Options 会话参数
type Options struct {
	Revision     rui3.Revision
	PollInterval time.Duration // 阻塞接收时两次轮询的间隔
	// OnPacket 每交付一包数据调用一次（含 Receive 路径），在调用方 goroutine 中执行
	OnPacket func(Packet)
}

// Signal 最近一次收包的链路质量
type Signal struct {
	RSSI      int16     `json:"rssi"`
	SNR       int16     `json:"snr"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Radio 一条物理链路上的射频会话。
// 除 Signal 外的方法不可并发调用，调用方负责串行化。
type Radio struct {
	cmd     Commander
	urc     NotificationSource
	opts    Options
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	mu     sync.RWMutex
	signal Signal
}

// New 创建射频会话
func New(cmd Commander, urc NotificationSource, opts Options, logger *zap.Logger, m *metrics.AppMetrics) *Radio {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	return &Radio{cmd: cmd, urc: urc, opts: opts, logger: logger, metrics: m}
}

// Revision 协议版本
func (r *Radio) Revision() rui3.Revision { return r.opts.Revision }

// Signal 最近缓存的 RSSI/SNR，可在其他 goroutine 读取
func (r *Radio) Signal() Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signal
}

func (r *Radio) updateSignal(rssi, snr int16) {
	r.mu.Lock()
	r.signal = Signal{RSSI: rssi, SNR: snr, UpdatedAt: time.Now()}
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.LinkRSSI.Set(float64(rssi))
		r.metrics.LinkSNR.Set(float64(snr))
	}
}

// Send 发送一包数据：先关闭接收，发送（可重发），再恢复持续接收。
// 任一步失败即返回，后续步骤不再执行；窗口切换命令失败不重试。
func (r *Radio) Send(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", rui3.ErrInvalidArgument)
	}
	if len(data) > rui3.MaxPayloadLen {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", rui3.ErrInvalidArgument, len(data), rui3.MaxPayloadLen)
	}
	payload := rui3.EncodeHex(data)

	if _, err := r.cmd.SendCommand(ctx, rui3.ReceiveData(rui3.Stop)); err != nil {
		r.countTx("error")
		return fmt.Errorf("disable receive before send: %w", err)
	}
	if _, err := r.cmd.SendCommandRetrying(ctx, rui3.SendData(payload)); err != nil {
		r.countTx("error")
		r.logger.Warn("p2p send failed, receive left disabled", zap.Int("bytes", len(data)), zap.Error(err))
		return fmt.Errorf("send payload: %w", err)
	}
	if _, err := r.cmd.SendCommand(ctx, rui3.ReceiveData(rui3.Continuous)); err != nil {
		r.countTx("error")
		return fmt.Errorf("re-enable receive after send: %w", err)
	}
	r.countTx("ok")
	r.logger.Debug("p2p payload sent", zap.Int("bytes", len(data)))
	return nil
}

func (r *Radio) countTx(result string) {
	if r.metrics != nil {
		r.metrics.TxPacketsTotal.WithLabelValues(result).Inc()
	}
}

// Packet 一包对端数据及其到达时的信号质量
type Packet struct {
	Kind       rui3.EventKind
	Data       []byte
	RSSI       int16
	SNR        int16
	HasSignal  bool // 旧版 +EVT:<hex> 不带信号
	ReceivedAt time.Time
}

// Poll 最多消费一条待处理通知：信号报告更新缓存，数据包返回负载。
// 无通知或通知无法解析时返回 false。
func (r *Radio) Poll() ([]byte, bool) {
	p, ok := r.PollPacket()
	if !ok {
		return nil, false
	}
	return p.Data, true
}

// PollPacket 同 Poll，但返回完整的数据包信息
func (r *Radio) PollPacket() (Packet, bool) {
	line, ok := r.urc.TryTakeNotification()
	if !ok {
		return Packet{}, false
	}
	ev, err := rui3.DecodeNotification(line)
	if err != nil {
		r.countNotification("unknown")
		r.logger.Debug("notification ignored", zap.String("line", line), zap.Error(err))
		return Packet{}, false
	}
	r.countNotification(ev.Kind.String())

	switch ev.Kind {
	case rui3.EventPeerInfo:
		r.updateSignal(ev.RSSI, ev.SNR)
	case rui3.EventPeerMessage:
		r.updateSignal(ev.RSSI, ev.SNR)
		return r.delivered(Packet{Kind: ev.Kind, Data: ev.Data, RSSI: ev.RSSI, SNR: ev.SNR, HasSignal: true})
	case rui3.EventPeerData:
		return r.delivered(Packet{Kind: ev.Kind, Data: ev.Data})
	}
	return Packet{}, false
}

func (r *Radio) delivered(p Packet) (Packet, bool) {
	if len(p.Data) == 0 {
		return Packet{}, false
	}
	p.ReceivedAt = time.Now()
	if !p.HasSignal {
		// 旧版固件先报信号再报数据，取最近一次信号报告
		if sig := r.Signal(); !sig.UpdatedAt.IsZero() && p.ReceivedAt.Sub(sig.UpdatedAt) < time.Second {
			p.RSSI, p.SNR, p.HasSignal = sig.RSSI, sig.SNR, true
		}
	}
	if r.metrics != nil {
		r.metrics.RxPacketsTotal.Inc()
		r.metrics.RxBytesTotal.Add(float64(len(p.Data)))
	}
	if r.opts.OnPacket != nil {
		r.opts.OnPacket(p)
	}
	return p, true
}

func (r *Radio) countNotification(kind string) {
	if r.metrics != nil {
		r.metrics.NotificationsTotal.WithLabelValues(kind).Inc()
	}
}

// StartListening 打开持续接收但不等待，数据通过 Poll/PollPacket 取走
func (r *Radio) StartListening(ctx context.Context) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.ReceiveData(rui3.Continuous)); err != nil {
		return fmt.Errorf("enable continuous receive: %w", err)
	}
	return nil
}

// Receive 打开持续接收，阻塞直到收到一包数据、出错或 ctx 结束
func (r *Radio) Receive(ctx context.Context) ([]byte, error) {
	if err := r.StartListening(ctx); err != nil {
		return nil, err
	}
	return r.awaitPayload(ctx)
}

// ReceiveWindow 按窗口接收：
// 毫秒窗口在时限内轮询，超时返回空；单包窗口阻塞到第一包；
// 持续窗口同 Receive；停止窗口关闭接收并返回空。
func (r *Radio) ReceiveWindow(ctx context.Context, w rui3.ReceiveWindow) ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	switch w.Mode {
	case rui3.WindowContinuous:
		return r.Receive(ctx)
	case rui3.WindowStop:
		if _, err := r.cmd.SendCommand(ctx, rui3.ReceiveData(rui3.Stop)); err != nil {
			return nil, fmt.Errorf("disable receive: %w", err)
		}
		return nil, nil
	}

	if _, err := r.cmd.SendCommand(ctx, rui3.ReceiveData(w)); err != nil {
		return nil, fmt.Errorf("arm receive window %s: %w", w, err)
	}
	if w.Mode == rui3.WindowOnePacket {
		return r.awaitPayload(ctx)
	}

	wctx, cancel := context.WithTimeout(ctx, time.Duration(w.Millis)*time.Millisecond)
	defer cancel()
	data, err := r.awaitPayload(wctx)
	if err != nil && ctx.Err() == nil {
		// 窗口自然结束
		return nil, nil
	}
	return data, err
}

// awaitPayload 轮询直到拿到负载或 ctx 结束
func (r *Radio) awaitPayload(ctx context.Context) ([]byte, error) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		// 一次性处理完已积压的通知
		for {
			data, ok := r.Poll()
			if ok {
				return data, nil
			}
			if !r.hasPending() {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Backlogged 通知源是否还有积压
func (r *Radio) Backlogged() bool { return r.hasPending() }

// hasPending 可选能力：通知源可报告队列长度时用于加速排空
func (r *Radio) hasPending() bool {
	if p, ok := r.urc.(interface{ Pending() int }); ok {
		return p.Pending() > 0
	}
	return false
}
