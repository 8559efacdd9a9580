package radio

import (
	"context"
	"fmt"
	"strconv"
)

// Tuning 基础参数之外的 P2P 调谐项，模组掉电保存
type Tuning struct {
	IQInversion   bool     `json:"iq_inversion"`
	SyncWord      SyncWord `json:"sync_word"`
	SymbolTimeout uint8    `json:"symbol_timeout"`
}

// SyncWord 同步字，文本形式为 4 位十六进制
type SyncWord uint16

func (w SyncWord) String() string { return fmt.Sprintf("%04X", uint16(w)) }

func (w SyncWord) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *SyncWord) UnmarshalText(b []byte) error {
	n, err := strconv.ParseUint(string(b), 16, 16)
	if err != nil || len(b) != 4 {
		return fmt.Errorf("sync word %q: want 4 hex digits", b)
	}
	*w = SyncWord(n)
	return nil
}

// TuningUpdate 部分更新，nil 字段不下发
type TuningUpdate struct {
	IQInversion   *bool     `json:"iq_inversion,omitempty"`
	SyncWord      *SyncWord `json:"sync_word,omitempty"`
	SymbolTimeout *uint8    `json:"symbol_timeout,omitempty"`
}

// Empty 是否没有任何字段
func (u TuningUpdate) Empty() bool {
	return u.IQInversion == nil && u.SyncWord == nil && u.SymbolTimeout == nil
}

// ReadTuning 依次读取 IQ 反转、同步字、符号超时，任一失败即返回
func (r *Radio) ReadTuning(ctx context.Context) (Tuning, error) {
	var t Tuning
	var err error
	if t.IQInversion, err = r.IQInversion(ctx); err != nil {
		return t, err
	}
	sw, err := r.SyncWord(ctx)
	if err != nil {
		return t, err
	}
	t.SyncWord = SyncWord(sw)
	if t.SymbolTimeout, err = r.SymbolTimeout(ctx); err != nil {
		return t, err
	}
	return t, nil
}

// ApplyTuning 按固定顺序下发给出的字段，首个失败即中止，不回滚
func (r *Radio) ApplyTuning(ctx context.Context, u TuningUpdate) error {
	if u.IQInversion != nil {
		if err := r.SetIQInversion(ctx, *u.IQInversion); err != nil {
			return err
		}
	}
	if u.SyncWord != nil {
		if err := r.SetSyncWord(ctx, uint16(*u.SyncWord)); err != nil {
			return err
		}
	}
	if u.SymbolTimeout != nil {
		if err := r.SetSymbolTimeout(ctx, *u.SymbolTimeout); err != nil {
			return err
		}
	}
	return nil
}
