package rui3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReply(t *testing.T) {
	t.Run("剥离回显前缀", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetFrequency), []string{"AT+PFREQ=868000000"})
		require.NoError(t, err)
		assert.Equal(t, uint64(868000000), r.Uint(0))
		assert.Equal(t, "868000000", r.Raw)
	})

	t.Run("冒号前缀", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetSpreadingFactor), []string{"+PSF:7"})
		require.NoError(t, err)
		assert.Equal(t, uint64(7), r.Uint(0))
	})

	t.Run("忽略命令回显行", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetTxPower), []string{"AT+PTP=?", "", "14"})
		require.NoError(t, err)
		assert.Equal(t, uint64(14), r.Uint(0))
	})

	t.Run("布尔", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetEncryption), []string{"AT+ENCRY=1"})
		require.NoError(t, err)
		assert.True(t, r.Bool(0))
	})

	t.Run("文本保留逗号", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetFirmwareVersion), []string{"AT+VER=RUI_4.0.6_RAK3172-E, build 1"})
		require.NoError(t, err)
		assert.Equal(t, "RUI_4.0.6_RAK3172-E, build 1", r.Text(0))
	})

	t.Run("空密钥", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetEncryptionKey), []string{"AT+ENCKEY="})
		require.NoError(t, err)
		assert.Equal(t, "", r.Text(0))
	})

	t.Run("同步字hex", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetSyncWord), []string{"AT+SYNCWORD=3444"})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x34, 0x44}, r.Bytes(0))
	})

	t.Run("P2P元组冒号", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetP2PParameters), []string{"AT+P2P=868000000:7:0:0:8:14"})
		require.NoError(t, err)
		require.Equal(t, 6, r.Len())
		assert.Equal(t, uint64(868000000), r.Uint(0))
		assert.Equal(t, uint64(14), r.Uint(5))
	})

	t.Run("P2P元组逗号", func(t *testing.T) {
		r, err := DecodeReply(Get(KindGetP2PParameters), []string{"868000000,7,0,0,8,14"})
		require.NoError(t, err)
		assert.Equal(t, uint64(8), r.Uint(4))
	})

	t.Run("无回复命令", func(t *testing.T) {
		r, err := DecodeReply(SetFrequency(868000000), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("越界访问返回零值", func(t *testing.T) {
		r := Reply{}
		assert.Equal(t, uint64(0), r.Uint(3))
		assert.Nil(t, r.Bytes(-1))
	})
}

func TestDecodeReply_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		lines []string
	}{
		{"缺少值行", Get(KindGetFrequency), nil},
		{"非数字", Get(KindGetFrequency), []string{"AT+PFREQ=abc"}},
		{"负数", Get(KindGetPreambleLength), []string{"-8"}},
		{"布尔非法", Get(KindGetEncryption), []string{"2"}},
		{"字段过多", Get(KindGetFrequency), []string{"1:2"}},
		{"元组字段不足", Get(KindGetP2PParameters), []string{"868000000:7:0"}},
		{"同步字非hex", Get(KindGetSyncWord), []string{"ZZZZ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReply(tt.cmd, tt.lines)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrReplyShapeMismatch)
			assert.False(t, IsRetryable(err))
			assert.True(t, IsLocalDataError(err))
		})
	}
}
