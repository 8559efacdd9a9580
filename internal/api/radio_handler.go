package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/rui3-gateway/internal/gateway"
	"github.com/taoyao-code/rui3-gateway/internal/outbound"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"github.com/taoyao-code/rui3-gateway/internal/radio"
	redisstorage "github.com/taoyao-code/rui3-gateway/internal/storage/redis"
)

// 接口超时上限
const (
	defaultCommandTimeout = 10 * time.Second
	maxReceiveTimeout     = 65 * time.Second
	resetSettle           = 2 * time.Second
	streamHeartbeat       = 15 * time.Second
)

// RadioService 模组操作（gateway.Service 实现）
type RadioService interface {
	Configure(ctx context.Context, cfg rui3.Configuration, source string) error
	ReadConfiguration(ctx context.Context) (rui3.Configuration, error)
	Configuration() (rui3.Configuration, bool)
	Transmit(ctx context.Context, payload []byte) error
	ReceiveWindow(ctx context.Context, w rui3.ReceiveWindow) ([]byte, error)
	Reset(ctx context.Context, settle time.Duration) error
	DeviceInfo() radio.DeviceInfo
	DeviceSN() string
	Signal() radio.Signal
	Recent(n int) []gateway.RecentPacket
	Subscribe() (<-chan gateway.RecentPacket, func())
	RestoreDefaults(ctx context.Context) (rui3.Configuration, error)
	SetAlias(ctx context.Context, alias string) error
	Tuning(ctx context.Context) (radio.Tuning, error)
	ApplyTuning(ctx context.Context, u radio.TuningUpdate) (radio.Tuning, error)
	P2PParameters(ctx context.Context) (radio.P2PParameters, error)
}

// TxSubmitter 发送队列（outbound.Worker 实现）
type TxSubmitter interface {
	Submit(ctx context.Context, payload []byte, priority int, source string) (string, error)
	Stats(ctx context.Context) outbound.Stats
}

// ProfileSource 命名参数集（radio.Profiles 实现）
type ProfileSource interface {
	Get(name string) (rui3.Configuration, bool)
	Names() []string
}

// LinkReader 多实例共享的链路快照（redis.LinkCache 实现）
type LinkReader interface {
	Get(ctx context.Context, deviceSN string) (redisstorage.LinkSnapshot, error)
}

// RadioHandler 射频控制 API
type RadioHandler struct {
	svc      RadioService
	tx       TxSubmitter
	profiles ProfileSource
	links    LinkReader
	revision rui3.Revision
	logger   *zap.Logger
}

// NewRadioHandler 创建处理器；tx/profiles/links 可为 nil
func NewRadioHandler(svc RadioService, tx TxSubmitter, profiles ProfileSource, links LinkReader, revision rui3.Revision, logger *zap.Logger) *RadioHandler {
	return &RadioHandler{svc: svc, tx: tx, profiles: profiles, links: links, revision: revision, logger: logger}
}

// configView 对外展示的参数，密钥脱敏
func configView(cfg rui3.Configuration) rui3.Configuration {
	if cfg.EncryptionKey != "" {
		cfg.EncryptionKey = "****"
	}
	return cfg
}

// GetConfig 查询射频参数
// @Summary 查询射频参数
// @Description 默认返回最近下发/读取的参数；source=device 时从模组实时读取
// @Tags 射频
// @Produce json
// @Param source query string false "cache|device"
// @Success 200 {object} StandardResponse
// @Router /api/radio/config [get]
func (h *RadioHandler) GetConfig(c *gin.Context) {
	if c.Query("source") == "device" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
		defer cancel()
		cfg, err := h.svc.ReadConfiguration(ctx)
		if err != nil {
			respondRadioError(c, err)
			return
		}
		respondOK(c, http.StatusOK, configView(cfg))
		return
	}
	cfg, ok := h.svc.Configuration()
	if !ok {
		respondError(c, http.StatusNotFound, "configuration not loaded yet", nil)
		return
	}
	respondOK(c, http.StatusOK, configView(cfg))
}

// PutConfig 下发射频参数，未给出的字段沿用当前值
// @Summary 下发射频参数
// @Tags 射频
// @Accept json
// @Produce json
// @Param request body rui3.Configuration true "参数（可部分）"
// @Success 200 {object} StandardResponse
// @Router /api/radio/config [put]
func (h *RadioHandler) PutConfig(c *gin.Context) {
	cfg, ok := h.svc.Configuration()
	if !ok {
		cfg = rui3.DefaultConfiguration()
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	if err := cfg.Validate(); err != nil {
		respondRadioError(c, err)
		return
	}
	if cfg.EncryptionEnabled && !h.revision.SupportsEncryption() {
		respondError(c, http.StatusBadRequest, "firmware revision "+h.revision.String()+" does not support encryption", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	if err := h.svc.Configure(ctx, cfg, "api"); err != nil {
		h.logger.Warn("api configure failed", zap.Error(err))
		respondRadioError(c, err)
		return
	}
	respondOK(c, http.StatusOK, configView(cfg))
}

// ListProfiles 列出命名参数集
func (h *RadioHandler) ListProfiles(c *gin.Context) {
	if h.profiles == nil {
		respondOK(c, http.StatusOK, gin.H{"profiles": []string{}})
		return
	}
	respondOK(c, http.StatusOK, gin.H{"profiles": h.profiles.Names()})
}

// ApplyProfile 下发命名参数集
// @Summary 下发命名参数集
// @Tags 射频
// @Produce json
// @Param name path string true "参数集名称"
// @Success 200 {object} StandardResponse
// @Router /api/radio/profiles/{name} [post]
func (h *RadioHandler) ApplyProfile(c *gin.Context) {
	name := c.Param("name")
	var cfg rui3.Configuration
	ok := false
	if h.profiles != nil {
		cfg, ok = h.profiles.Get(name)
	}
	if !ok {
		respondError(c, http.StatusNotFound, "profile not found: "+name, nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	if err := h.svc.Configure(ctx, cfg, "profile:"+name); err != nil {
		respondRadioError(c, err)
		return
	}
	respondOK(c, http.StatusOK, configView(cfg))
}

// SendRequest 发送请求
type SendRequest struct {
	PayloadHex string `json:"payload_hex" binding:"required"`
	Priority   string `json:"priority"` // 仅排队发送使用：emergency|high|normal|low|background
}

func (r SendRequest) decode() ([]byte, error) {
	data, err := rui3.DecodeHex(r.PayloadHex)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) > rui3.MaxPayloadLen {
		return nil, fmt.Errorf("%w: payload must be 1..%d bytes", rui3.ErrInvalidArgument, rui3.MaxPayloadLen)
	}
	return data, nil
}

// Send 同步发送，返回时空口发送已完成
// @Summary 同步发送
// @Tags 射频
// @Accept json
// @Produce json
// @Param request body SendRequest true "负载"
// @Success 200 {object} StandardResponse
// @Router /api/radio/send [post]
func (h *RadioHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	data, err := req.decode()
	if err != nil {
		respondRadioError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	start := time.Now()
	if err := h.svc.Transmit(ctx, data); err != nil {
		respondRadioError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"bytes":      len(data),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// Enqueue 排队发送，受占空比限制
// @Summary 排队发送
// @Tags 射频
// @Accept json
// @Produce json
// @Param request body SendRequest true "负载与优先级"
// @Success 202 {object} StandardResponse
// @Router /api/radio/tx [post]
func (h *RadioHandler) Enqueue(c *gin.Context) {
	if h.tx == nil {
		respondError(c, http.StatusServiceUnavailable, "tx queue disabled", nil)
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	priority, ok := outbound.ParsePriority(req.Priority)
	if !ok {
		respondError(c, http.StatusBadRequest, "unknown priority: "+req.Priority, nil)
		return
	}
	data, err := req.decode()
	if err != nil {
		respondRadioError(c, err)
		return
	}

	id, err := h.tx.Submit(c.Request.Context(), data, priority, "api")
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{"msg_id": id, "priority": priority})
}

// TxStats 发送队列统计
func (h *RadioHandler) TxStats(c *gin.Context) {
	if h.tx == nil {
		respondError(c, http.StatusServiceUnavailable, "tx queue disabled", nil)
		return
	}
	respondOK(c, http.StatusOK, h.tx.Stats(c.Request.Context()))
}

// ReceiveRequest 按窗口接收
type ReceiveRequest struct {
	Window    string `json:"window" binding:"required"` // stop|one|continuous|<n>ms
	TimeoutMs int    `json:"timeout_ms"`                // 单包/持续窗口的等待上限
}

// Receive 独占模组按窗口接收一包
// @Summary 按窗口接收
// @Tags 射频
// @Accept json
// @Produce json
// @Param request body ReceiveRequest true "窗口"
// @Success 200 {object} StandardResponse
// @Router /api/radio/receive [post]
func (h *RadioHandler) Receive(c *gin.Context) {
	var req ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	w, err := rui3.ParseReceiveWindow(req.Window)
	if err != nil {
		respondRadioError(c, err)
		return
	}

	timeout := maxReceiveTimeout
	if req.TimeoutMs > 0 && time.Duration(req.TimeoutMs)*time.Millisecond < timeout {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if w.Mode == rui3.WindowMillis {
		// 窗口本身有界，留出命令往返余量
		timeout = time.Duration(w.Millis)*time.Millisecond + defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	data, err := h.svc.ReceiveWindow(ctx, w)
	if errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() == nil {
		respondOK(c, http.StatusOK, gin.H{"window": w.String(), "received": false})
		return
	}
	if err != nil {
		respondRadioError(c, err)
		return
	}
	out := gin.H{"window": w.String(), "received": data != nil}
	if data != nil {
		out["payload_hex"] = rui3.EncodeHex(data)
		out["bytes"] = len(data)
	}
	respondOK(c, http.StatusOK, out)
}

// Link 链路质量
func (h *RadioHandler) Link(c *gin.Context) {
	out := gin.H{"signal": h.svc.Signal()}
	if h.links != nil {
		snap, err := h.links.Get(c.Request.Context(), h.svc.DeviceSN())
		switch {
		case err == nil:
			out["shared"] = snap
		case !errors.Is(err, redisstorage.ErrNoLink):
			h.logger.Warn("read link cache failed", zap.Error(err))
		}
	}
	respondOK(c, http.StatusOK, out)
}

// Info 设备信息
func (h *RadioHandler) Info(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{
		"device":   h.svc.DeviceInfo(),
		"revision": h.revision.String(),
	})
}

// Reset 软复位并恢复参数
// @Summary 软复位模组
// @Tags 射频
// @Produce json
// @Success 200 {object} StandardResponse
// @Router /api/radio/reset [post]
func (h *RadioHandler) Reset(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout+resetSettle)
	defer cancel()
	if err := h.svc.Reset(ctx, resetSettle); err != nil {
		respondRadioError(c, err)
		return
	}
	h.logger.Info("radio reset via api")
	respondOK(c, http.StatusOK, nil)
}

// Recent 内存中的最近收包
func (h *RadioHandler) Recent(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	respondOK(c, http.StatusOK, gin.H{"packets": h.svc.Recent(n)})
}

// RestoreDefaults 恢复出厂参数并返回读回的参数
// @Summary 恢复出厂参数
// @Tags 射频
// @Produce json
// @Success 200 {object} StandardResponse
// @Router /api/radio/restore-defaults [post]
func (h *RadioHandler) RestoreDefaults(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	cfg, err := h.svc.RestoreDefaults(ctx)
	if err != nil {
		respondRadioError(c, err)
		return
	}
	h.logger.Info("radio defaults restored via api")
	respondOK(c, http.StatusOK, configView(cfg))
}

// AliasRequest 修改别名
type AliasRequest struct {
	Alias string `json:"alias" binding:"required"`
}

// SetAlias 修改模组别名
func (h *RadioHandler) SetAlias(c *gin.Context) {
	var req AliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	if err := h.svc.SetAlias(ctx, req.Alias); err != nil {
		respondRadioError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"alias": req.Alias})
}

// GetTuning 读取调谐项；with=p2p 时附带 AT+P2P 参数元组
func (h *RadioHandler) GetTuning(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	t, err := h.svc.Tuning(ctx)
	if err != nil {
		respondRadioError(c, err)
		return
	}
	out := gin.H{"tuning": t}
	if c.Query("with") == "p2p" {
		p, err := h.svc.P2PParameters(ctx)
		if err != nil {
			respondRadioError(c, err)
			return
		}
		out["p2p"] = p
	}
	respondOK(c, http.StatusOK, out)
}

// PatchTuning 部分更新调谐项
// @Summary 更新调谐项
// @Tags 射频
// @Accept json
// @Produce json
// @Param request body radio.TuningUpdate true "iq_inversion/sync_word/symbol_timeout"
// @Success 200 {object} StandardResponse
// @Router /api/radio/tuning [patch]
func (h *RadioHandler) PatchTuning(c *gin.Context) {
	var u radio.TuningUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	if u.Empty() {
		respondError(c, http.StatusBadRequest, "no tuning field given", nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultCommandTimeout)
	defer cancel()
	t, err := h.svc.ApplyTuning(ctx, u)
	if err != nil {
		respondRadioError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"tuning": t})
}

// Stream 以 SSE 推送后续收包，直到客户端断开或订阅被关闭
func (h *RadioHandler) Stream(c *gin.Context) {
	ch, cancel := h.svc.Subscribe()
	defer cancel()

	// 长连接不受服务端写超时限制
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("packet", p)
		case <-heartbeat.C:
			_, _ = io.WriteString(c.Writer, ": ping\n\n")
		}
		c.Writer.Flush()
	}
}
