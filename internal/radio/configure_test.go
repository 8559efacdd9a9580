package radio

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
)

func TestConfigure_Default(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)

	require.NoError(t, r.Configure(context.Background(), rui3.DefaultConfiguration()))
	assert.Equal(t, []string{
		"AT+NWM=0",
		"AT+PFREQ=868000000",
		"AT+PSF=7",
		"AT+PBW=0",
		"AT+PCR=0",
		"AT+PPL=8",
		"AT+PTP=14",
		"AT+ENCRY=0",
	}, m.commands())
	assert.Equal(t, "868000000", m.params["+PFREQ"])
	assert.Equal(t, "7", m.params["+PSF"])
	// 配置步骤不自动重发
	assert.Empty(t, m.retried)
}

func TestConfigure_Revisions(t *testing.T) {
	t.Run("旧版不下发加密命令", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionLegacy)
		require.NoError(t, r.Configure(context.Background(), rui3.DefaultConfiguration()))
		for _, c := range m.commands() {
			assert.False(t, strings.HasPrefix(c, "AT+ENC"), c)
		}
		assert.Len(t, m.commands(), 7)
	})

	t.Run("旧版拒绝开启加密", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionLegacy)
		cfg := rui3.DefaultConfiguration()
		cfg.EncryptionEnabled = true
		cfg.EncryptionKey = "0102030405060708"
		assert.ErrorIs(t, r.Configure(context.Background(), cfg), rui3.ErrInvalidArgument)
		assert.Empty(t, m.commands())
	})

	t.Run("开启加密下发密钥", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		cfg := rui3.DefaultConfiguration()
		cfg.EncryptionEnabled = true
		cfg.EncryptionKey = "0102030405060708"
		require.NoError(t, r.Configure(context.Background(), cfg))
		cmds := m.commands()
		assert.Equal(t, []string{"AT+ENCRY=1", "AT+ENCKEY=0102030405060708"}, cmds[len(cmds)-2:])
	})
}

func TestConfigure_AbortsOnFirstFailure(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	m.failOn["AT+PSF=7"] = &rui3.DeviceError{Command: "AT+PSF", Code: rui3.CodeParamError}

	err := r.Configure(context.Background(), rui3.DefaultConfiguration())
	require.Error(t, err)
	assert.ErrorIs(t, err, rui3.ErrTransport)
	assert.Equal(t, []string{"AT+NWM=0", "AT+PFREQ=868000000", "AT+PSF=7"}, m.commands())
	// 已生效的参数不回滚
	assert.Equal(t, "868000000", m.params["+PFREQ"])
}

func TestConfigure_EncryptionWithoutKey(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	cfg := rui3.DefaultConfiguration()
	cfg.EncryptionEnabled = true

	err := r.Configure(context.Background(), cfg)
	assert.ErrorIs(t, err, rui3.ErrInvalidArgument)
	// 不发出空的 AT+ENCKEY=
	assert.Empty(t, m.commands())
}

func TestConfigure_InvalidLocally(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	cfg := rui3.DefaultConfiguration()
	cfg.EncryptionKey = strings.Repeat("A", 17)
	assert.ErrorIs(t, r.Configure(context.Background(), cfg), rui3.ErrInvalidArgument)
	assert.Empty(t, m.commands())
}

func TestReadConfiguration_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		rev    rui3.Revision
		params map[string]string
	}{
		{
			name: "LoRa P2P",
			rev:  rui3.RevisionCurrent,
			params: map[string]string{
				"+NWM": "0", "+PFREQ": "915000000", "+PSF": "9", "+PBW": "1",
				"+PCR": "2", "+PPL": "12", "+PTP": "20", "+ENCRY": "0",
			},
		},
		{
			name: "FSK P2P",
			rev:  rui3.RevisionCurrent,
			params: map[string]string{
				"+NWM": "2", "+PFREQ": "433000000", "+PSF": "7", "+PBW": "50000",
				"+PCR": "0", "+PPL": "8", "+PTP": "10", "+ENCRY": "0",
			},
		},
		{
			name: "加密开启",
			rev:  rui3.RevisionCurrent,
			params: map[string]string{
				"+NWM": "0", "+PFREQ": "868100000", "+PSF": "12", "+PBW": "9",
				"+PCR": "3", "+PPL": "16", "+PTP": "22", "+ENCRY": "1", "+ENCKEY": "AABBCCDDEEFF0011",
			},
		},
		{
			name: "旧版",
			rev:  rui3.RevisionLegacy,
			params: map[string]string{
				"+NWM": "0", "+PFREQ": "868000000", "+PSF": "7", "+PBW": "0",
				"+PCR": "0", "+PPL": "8", "+PTP": "14",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestRadio(t, tt.rev)
			for k, v := range tt.params {
				m.params[k] = v
			}

			cfg, err := r.ReadConfiguration(context.Background())
			require.NoError(t, err)

			reads := m.commands()
			for _, c := range reads {
				assert.True(t, strings.HasSuffix(c, "=?"), c)
			}
			assert.Empty(t, m.retried)

			m.reset()
			require.NoError(t, r.Configure(context.Background(), cfg))
			for _, c := range m.commands() {
				mnemonic, value, ok := strings.Cut(strings.TrimPrefix(c, "AT"), "=")
				require.True(t, ok, c)
				assert.Equal(t, tt.params[mnemonic], value, mnemonic)
			}
			assert.Len(t, m.commands(), len(reads))
			assert.Empty(t, m.retried)
		})
	}
}

func TestReadConfiguration_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"编码率越界", "+PCR", "7"},
		{"带宽下标越界", "+PBW", "12"},
		{"功率溢出", "+PTP", "300"},
		{"频率非数字", "+PFREQ", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestRadio(t, rui3.RevisionCurrent)
			for k, v := range map[string]string{
				"+NWM": "0", "+PFREQ": "868000000", "+PSF": "7", "+PBW": "0",
				"+PCR": "0", "+PPL": "8", "+PTP": "14", "+ENCRY": "0",
			} {
				m.params[k] = v
			}
			m.params[tt.key] = tt.value

			_, err := r.ReadConfiguration(context.Background())
			assert.ErrorIs(t, err, rui3.ErrReplyShapeMismatch)
			assert.True(t, rui3.IsLocalDataError(err))
		})
	}
}

func TestReadConfiguration_FailFast(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	m.params["+NWM"] = "0"
	m.failOn["AT+PFREQ=?"] = errLink

	_, err := r.ReadConfiguration(context.Background())
	assert.ErrorIs(t, err, rui3.ErrTransport)
	assert.Equal(t, []string{"AT+NWM=?", "AT+PFREQ=?"}, m.commands())
}
