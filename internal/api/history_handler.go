package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"github.com/taoyao-code/rui3-gateway/internal/storage"
	"github.com/taoyao-code/rui3-gateway/internal/storage/models"
)

// HistoryHandler 收发历史查询
type HistoryHandler struct {
	repo     storage.HistoryRepo
	deviceSN func() string
	logger   *zap.Logger
}

// NewHistoryHandler 创建历史查询处理器；deviceSN 为未指定 device_sn 时的默认值
func NewHistoryHandler(repo storage.HistoryRepo, deviceSN func() string, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{repo: repo, deviceSN: deviceSN, logger: logger}
}

type packetView struct {
	ID         int64     `json:"id"`
	DeviceSN   string    `json:"device_sn"`
	Kind       string    `json:"kind"`
	PayloadHex string    `json:"payload_hex"`
	RSSI       *int16    `json:"rssi,omitempty"`
	SNR        *int16    `json:"snr,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type txView struct {
	MsgID      string    `json:"msg_id"`
	DeviceSN   string    `json:"device_sn"`
	PayloadHex string    `json:"payload_hex"`
	Success    bool      `json:"success"`
	Attempts   int32     `json:"attempts"`
	Error      *string   `json:"error,omitempty"`
	DurationMs int32     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTxView(t models.TxLog) txView {
	return txView{
		MsgID: t.MsgID, DeviceSN: t.DeviceSN, PayloadHex: rui3.EncodeHex(t.Payload),
		Success: t.Success, Attempts: t.Attempts, Error: t.Error,
		DurationMs: t.DurationMs, CreatedAt: t.CreatedAt,
	}
}

// parseFilter 解析 device_sn/since/until/limit/offset，时间为 RFC3339
func (h *HistoryHandler) parseFilter(c *gin.Context) (storage.PacketFilter, error) {
	f := storage.PacketFilter{DeviceSN: c.Query("device_sn")}
	if f.DeviceSN == "" && h.deviceSN != nil {
		f.DeviceSN = h.deviceSN()
	}
	var err error
	if v := c.Query("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := c.Query("until"); v != "" {
		if f.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	return f.Normalize(), nil
}

func (h *HistoryHandler) available(c *gin.Context) bool {
	if h.repo == nil {
		respondError(c, http.StatusServiceUnavailable, "history storage disabled", nil)
		return false
	}
	return true
}

// ListPackets 查询接收记录
// @Summary 查询接收记录
// @Tags 历史
// @Produce json
// @Param device_sn query string false "模组序列号，默认本机"
// @Param since query string false "RFC3339"
// @Param until query string false "RFC3339"
// @Param limit query int false "每页数量(默认50,最大500)"
// @Param offset query int false "偏移量"
// @Success 200 {object} StandardResponse
// @Router /api/packets [get]
func (h *HistoryHandler) ListPackets(c *gin.Context) {
	if !h.available(c) {
		return
	}
	f, err := h.parseFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid query: "+err.Error(), nil)
		return
	}
	list, err := h.repo.ListRxPackets(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list rx packets failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	out := make([]packetView, 0, len(list))
	for _, p := range list {
		out = append(out, packetView{
			ID: p.ID, DeviceSN: p.DeviceSN, Kind: p.Kind, PayloadHex: rui3.EncodeHex(p.Payload),
			RSSI: p.RSSI, SNR: p.SNR, ReceivedAt: p.ReceivedAt,
		})
	}
	respondOK(c, http.StatusOK, gin.H{"packets": out, "limit": f.Limit, "offset": f.Offset})
}

// CountPackets since 之后的接收条数
func (h *HistoryHandler) CountPackets(c *gin.Context) {
	if !h.available(c) {
		return
	}
	f, err := h.parseFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid query: "+err.Error(), nil)
		return
	}
	if f.Since.IsZero() {
		f.Since = time.Now().Add(-time.Hour)
	}
	n, err := h.repo.CountRxSince(c.Request.Context(), f.DeviceSN, f.Since)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"count": n, "since": f.Since})
}

// ListTx 查询发送流水
func (h *HistoryHandler) ListTx(c *gin.Context) {
	if !h.available(c) {
		return
	}
	f, err := h.parseFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid query: "+err.Error(), nil)
		return
	}
	list, err := h.repo.ListTxLog(c.Request.Context(), f)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	out := make([]txView, 0, len(list))
	for _, t := range list {
		out = append(out, toTxView(t))
	}
	respondOK(c, http.StatusOK, gin.H{"tx": out, "limit": f.Limit, "offset": f.Offset})
}

// GetTx 按消息 ID 查询发送结果
// @Summary 查询发送结果
// @Tags 历史
// @Produce json
// @Param id path string true "消息ID"
// @Success 200 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /api/tx/{id} [get]
func (h *HistoryHandler) GetTx(c *gin.Context) {
	if !h.available(c) {
		return
	}
	t, err := h.repo.GetTxLog(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, "tx not found or still pending", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respondOK(c, http.StatusOK, toTxView(*t))
}

// LatestConfig 最近一次参数下发记录
func (h *HistoryHandler) LatestConfig(c *gin.Context) {
	if !h.available(c) {
		return
	}
	sn := c.Query("device_sn")
	if sn == "" && h.deviceSN != nil {
		sn = h.deviceSN()
	}
	rc, err := h.repo.LatestRadioConfig(c.Request.Context(), sn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, "no configuration recorded", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	var cfg rui3.Configuration
	if err := json.Unmarshal([]byte(rc.Config), &cfg); err != nil {
		respondError(c, http.StatusInternalServerError, "stored configuration unreadable: "+err.Error(), nil)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"device_sn":  rc.DeviceSN,
		"source":     rc.Source,
		"applied_at": rc.AppliedAt,
		"config":     configView(cfg),
	})
}
