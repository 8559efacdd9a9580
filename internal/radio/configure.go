package radio

import (
	"context"
	"fmt"

	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"go.uber.org/zap"
)

// Configure 依次下发工作模式、频率、扩频因子、带宽、编码率、前导码、功率，
// current 版本再下发加密开关与密钥。首个失败即中止，已生效的参数不回滚。
func (r *Radio) Configure(ctx context.Context, cfg rui3.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.EncryptionEnabled && !r.opts.Revision.SupportsEncryption() {
		return fmt.Errorf("%w: encryption not supported by %s firmware", rui3.ErrInvalidArgument, r.opts.Revision)
	}

	for _, c := range configureSequence(cfg, r.opts.Revision) {
		if _, err := r.cmd.SendCommand(ctx, c); err != nil {
			r.logger.Warn("configure aborted", zap.String("cmd", c.Descriptor().Label()), zap.Error(err))
			return fmt.Errorf("configure %s: %w", c.Descriptor().Label(), err)
		}
	}
	r.logger.Info("radio configured",
		zap.Stringer("mode", cfg.Mode),
		zap.Uint32("frequency", cfg.Frequency),
		zap.Uint8("sf", cfg.SpreadingFactor),
		zap.Stringer("bandwidth", cfg.Bandwidth),
		zap.Stringer("code_rate", cfg.CodeRate),
		zap.Uint16("preamble", cfg.PreambleLength),
		zap.Uint8("tx_power", cfg.TxPower),
		zap.Bool("encryption", cfg.EncryptionEnabled))
	return nil
}

func configureSequence(cfg rui3.Configuration, rev rui3.Revision) []rui3.Command {
	seq := []rui3.Command{
		rui3.SetWorkingMode(cfg.Mode),
		rui3.SetFrequency(cfg.Frequency),
		rui3.SetSpreadingFactor(cfg.SpreadingFactor),
		rui3.SetBandwidth(cfg.Bandwidth),
		rui3.SetCodeRate(cfg.CodeRate),
		rui3.SetPreambleLength(cfg.PreambleLength),
		rui3.SetTxPower(cfg.TxPower),
	}
	if rev.SupportsEncryption() {
		seq = append(seq, rui3.SetEncryption(cfg.EncryptionEnabled))
		if cfg.EncryptionEnabled {
			seq = append(seq, rui3.SetEncryptionKey(cfg.EncryptionKey))
		}
	}
	return seq
}

// ReadConfiguration 按与 Configure 相同的顺序读取参数
func (r *Radio) ReadConfiguration(ctx context.Context) (rui3.Configuration, error) {
	var cfg rui3.Configuration

	mode, err := r.getUint(ctx, rui3.KindGetWorkingMode, uint64(rui3.ModeFSKP2P))
	if err != nil {
		return cfg, err
	}
	cfg.Mode = rui3.WorkingMode(mode)

	freq, err := r.getUint(ctx, rui3.KindGetFrequency, 1<<32-1)
	if err != nil {
		return cfg, err
	}
	cfg.Frequency = uint32(freq)

	sf, err := r.getUint(ctx, rui3.KindGetSpreadingFactor, 255)
	if err != nil {
		return cfg, err
	}
	cfg.SpreadingFactor = uint8(sf)

	bwReply, err := r.get(ctx, rui3.KindGetBandwidth)
	if err != nil {
		return cfg, err
	}
	bw, err := rui3.ParseBandwidth(bwReply.Text(0), cfg.Mode)
	if err != nil {
		return cfg, &rui3.ShapeError{Command: "AT+PBW=?", Reason: err.Error(), Raw: bwReply.Raw}
	}
	cfg.Bandwidth = bw

	cr, err := r.getUint(ctx, rui3.KindGetCodeRate, uint64(rui3.CR4_8))
	if err != nil {
		return cfg, err
	}
	cfg.CodeRate = rui3.CodeRate(cr)

	ppl, err := r.getUint(ctx, rui3.KindGetPreambleLength, 1<<16-1)
	if err != nil {
		return cfg, err
	}
	cfg.PreambleLength = uint16(ppl)

	ptp, err := r.getUint(ctx, rui3.KindGetTxPower, 255)
	if err != nil {
		return cfg, err
	}
	cfg.TxPower = uint8(ptp)

	if !r.opts.Revision.SupportsEncryption() {
		return cfg, nil
	}
	enc, err := r.get(ctx, rui3.KindGetEncryption)
	if err != nil {
		return cfg, err
	}
	cfg.EncryptionEnabled = enc.Bool(0)
	if cfg.EncryptionEnabled {
		key, err := r.get(ctx, rui3.KindGetEncryptionKey)
		if err != nil {
			return cfg, err
		}
		cfg.EncryptionKey = key.Text(0)
	}
	return cfg, nil
}

func (r *Radio) get(ctx context.Context, k rui3.Kind) (rui3.Reply, error) {
	c := rui3.Get(k)
	reply, err := r.cmd.SendCommand(ctx, c)
	if err != nil {
		return reply, fmt.Errorf("read %s: %w", c.Descriptor().Label(), err)
	}
	return reply, nil
}

func (r *Radio) getUint(ctx context.Context, k rui3.Kind, limit uint64) (uint64, error) {
	reply, err := r.get(ctx, k)
	if err != nil {
		return 0, err
	}
	v := reply.Uint(0)
	if v > limit {
		d, _ := rui3.Lookup(k)
		return 0, &rui3.ShapeError{Command: d.Label(), Reason: fmt.Sprintf("value %d exceeds %d", v, limit), Raw: reply.Raw}
	}
	return v, nil
}
