package radio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
)

// DeviceInfo 模组标识信息
type DeviceInfo struct {
	SerialNumber  string `json:"serial_number"`
	Firmware      string `json:"firmware"`
	HardwareModel string `json:"hardware_model"`
	Alias         string `json:"alias"`
}

// P2PParameters AT+P2P=? 一次性返回的参数元组，带宽为原始线上取值
type P2PParameters struct {
	Frequency       uint32        `json:"frequency"`
	SpreadingFactor uint8         `json:"spreading_factor"`
	Bandwidth       uint32        `json:"bandwidth"`
	CodeRate        rui3.CodeRate `json:"code_rate"`
	PreambleLength  uint16        `json:"preamble_length"`
	TxPower         uint8         `json:"tx_power"`
}

// Ping 发送 AT，确认模组在线
func (r *Radio) Ping(ctx context.Context) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.Attention()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Reset MCU 复位（ATZ），设备不回结束码
func (r *Radio) Reset(ctx context.Context) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.Reset()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	r.logger.Info("radio reset issued")
	return nil
}

// RestoreDefaults 恢复出厂参数（ATR）
func (r *Radio) RestoreDefaults(ctx context.Context) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.RestoreDefaults()); err != nil {
		return fmt.Errorf("restore defaults: %w", err)
	}
	r.logger.Info("radio defaults restored")
	return nil
}

// DeviceInfo 读取序列号、固件版本、硬件型号与别名
func (r *Radio) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	fields := []struct {
		kind rui3.Kind
		dst  *string
	}{
		{rui3.KindGetSerialNumber, &info.SerialNumber},
		{rui3.KindGetFirmwareVersion, &info.Firmware},
		{rui3.KindGetHardwareModel, &info.HardwareModel},
		{rui3.KindGetAlias, &info.Alias},
	}
	for _, f := range fields {
		reply, err := r.get(ctx, f.kind)
		if err != nil {
			return info, err
		}
		*f.dst = reply.Text(0)
	}
	return info, nil
}

// SetAlias 设置模组别名（最多 16 字符）
func (r *Radio) SetAlias(ctx context.Context, alias string) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.SetAlias(alias)); err != nil {
		return fmt.Errorf("set alias: %w", err)
	}
	return nil
}

func (r *Radio) IQInversion(ctx context.Context) (bool, error) {
	reply, err := r.get(ctx, rui3.KindGetIQInversion)
	return reply.Bool(0), err
}

func (r *Radio) SetIQInversion(ctx context.Context, enabled bool) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.SetIQInversion(enabled)); err != nil {
		return fmt.Errorf("set iq inversion: %w", err)
	}
	return nil
}

// SyncWord 读取 2 字节同步字
func (r *Radio) SyncWord(ctx context.Context) (uint16, error) {
	reply, err := r.get(ctx, rui3.KindGetSyncWord)
	if err != nil {
		return 0, err
	}
	b := reply.Bytes(0)
	if len(b) != 2 {
		return 0, &rui3.ShapeError{Command: "AT+SYNCWORD=?", Reason: "sync word must be 2 bytes", Raw: reply.Raw}
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Radio) SetSyncWord(ctx context.Context, w uint16) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.SetSyncWord(w)); err != nil {
		return fmt.Errorf("set sync word: %w", err)
	}
	return nil
}

func (r *Radio) SymbolTimeout(ctx context.Context) (uint8, error) {
	v, err := r.getUint(ctx, rui3.KindGetSymbolTimeout, 255)
	return uint8(v), err
}

func (r *Radio) SetSymbolTimeout(ctx context.Context, symbols uint8) error {
	if _, err := r.cmd.SendCommand(ctx, rui3.SetSymbolTimeout(symbols)); err != nil {
		return fmt.Errorf("set symbol timeout: %w", err)
	}
	return nil
}

// P2PParameters 读取 freq:sf:bw:cr:preamble:power 元组
func (r *Radio) P2PParameters(ctx context.Context) (P2PParameters, error) {
	reply, err := r.get(ctx, rui3.KindGetP2PParameters)
	if err != nil {
		return P2PParameters{}, err
	}
	limits := []uint64{1<<32 - 1, 255, 1<<32 - 1, uint64(rui3.CR4_8), 1<<16 - 1, 255}
	for i, limit := range limits {
		if reply.Uint(i) > limit {
			return P2PParameters{}, &rui3.ShapeError{Command: "AT+P2P=?", Reason: fmt.Sprintf("field %d out of range", i), Raw: reply.Raw}
		}
	}
	return P2PParameters{
		Frequency:       uint32(reply.Uint(0)),
		SpreadingFactor: uint8(reply.Uint(1)),
		Bandwidth:       uint32(reply.Uint(2)),
		CodeRate:        rui3.CodeRate(reply.Uint(3)),
		PreambleLength:  uint16(reply.Uint(4)),
		TxPower:         uint8(reply.Uint(5)),
	}, nil
}
