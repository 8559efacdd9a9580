package rui3

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfiguration(t *testing.T) {
	c := DefaultConfiguration()
	assert.Equal(t, ModeLoRaP2P, c.Mode)
	assert.Equal(t, uint32(868000000), c.Frequency)
	assert.Equal(t, uint8(7), c.SpreadingFactor)
	assert.Equal(t, LoRaBandwidth(BW125KHz), c.Bandwidth)
	assert.Equal(t, CR4_5, c.CodeRate)
	assert.Equal(t, uint16(8), c.PreambleLength)
	assert.Equal(t, uint8(14), c.TxPower)
	assert.False(t, c.EncryptionEnabled)
	assert.Empty(t, c.EncryptionKey)
	assert.NoError(t, c.Validate())
}

func TestConfigurationValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"密钥超长", func(c *Configuration) { c.EncryptionKey = "01234567890123456" }},
		{"启用加密但无密钥", func(c *Configuration) { c.EncryptionEnabled = true }},
		{"FSK带宽但LoRa模式", func(c *Configuration) { c.Bandwidth = FSKBandwidth(50000) }},
		{"FSK模式但LoRa带宽", func(c *Configuration) { c.Mode = ModeFSKP2P }},
		{"编码率越界", func(c *Configuration) { c.CodeRate = 9 }},
		{"未知模式", func(c *Configuration) { c.Mode = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfiguration()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidArgument)
		})
	}
}

func TestParseBandwidth(t *testing.T) {
	bw, err := ParseBandwidth("2", ModeLoRaP2P)
	require.NoError(t, err)
	assert.Equal(t, LoRaBandwidth(BW500KHz), bw)

	bw, err = ParseBandwidth("9", ModeLoRaWAN)
	require.NoError(t, err)
	assert.Equal(t, "62.5kHz", bw.String())

	bw, err = ParseBandwidth("50000", ModeFSKP2P)
	require.NoError(t, err)
	assert.Equal(t, FSKBandwidth(50000), bw)
	assert.Equal(t, "50000", bw.Param())

	_, err = ParseBandwidth("10", ModeLoRaP2P)
	assert.Error(t, err)
	_, err = ParseBandwidth("x", ModeLoRaP2P)
	assert.Error(t, err)
}

func TestBandwidthParamMatchesIndex(t *testing.T) {
	for k := BW125KHz; k < BWFSK; k++ {
		bw := LoRaBandwidth(k)
		back, err := ParseBandwidth(bw.Param(), ModeLoRaP2P)
		require.NoError(t, err)
		assert.Equal(t, bw, back)
	}
}

func TestConfigurationTextEncoding(t *testing.T) {
	c := DefaultConfiguration()
	c.Mode = ModeFSKP2P
	c.Bandwidth = FSKBandwidth(125000)
	c.CodeRate = CR4_7

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bandwidth":"fsk:125000"`)
	assert.Contains(t, string(data), `"code_rate":"4/7"`)
	assert.Contains(t, string(data), `"mode":"fsk_p2p"`)

	var back Configuration
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)

	var fromYAML Configuration
	doc := "mode: p2p\nfrequency: 915000000\nspreading_factor: 9\nbandwidth: 250kHz\ncode_rate: 4/6\npreamble_length: 12\ntx_power: 20\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &fromYAML))
	assert.Equal(t, LoRaBandwidth(BW250KHz), fromYAML.Bandwidth)
	assert.Equal(t, CR4_6, fromYAML.CodeRate)
	assert.Equal(t, uint32(915000000), fromYAML.Frequency)
}

func TestReceiveWindow(t *testing.T) {
	assert.Equal(t, "0", Stop.Param())
	assert.Equal(t, "65534", OnePacket.Param())
	assert.Equal(t, "65535", Continuous.Param())
	assert.Equal(t, "100", Milliseconds(100).Param())

	assert.NoError(t, Milliseconds(1).Validate())
	assert.NoError(t, Milliseconds(MaxWindowMillis).Validate())
	assert.ErrorIs(t, Milliseconds(0).Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, Milliseconds(65534).Validate(), ErrInvalidArgument)

	tests := []struct {
		in   string
		want ReceiveWindow
	}{
		{"stop", Stop},
		{"one", OnePacket},
		{"continuous", Continuous},
		{"500ms", Milliseconds(500)},
		{"250", Milliseconds(250)},
	}
	for _, tt := range tests {
		w, err := ParseReceiveWindow(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, w)
	}
	_, err := ParseReceiveWindow("forever")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseReceiveWindow("0")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseRevision(t *testing.T) {
	r, err := ParseRevision("legacy")
	require.NoError(t, err)
	assert.False(t, r.SupportsEncryption())

	r, err = ParseRevision("")
	require.NoError(t, err)
	assert.True(t, r.SupportsEncryption())

	_, err = ParseRevision("v9")
	assert.Error(t, err)
}

func TestErrorCategories(t *testing.T) {
	io := &TransportError{Op: "AT+PSEND", Err: errors.New("timeout")}
	assert.ErrorIs(t, io, ErrTransport)
	assert.True(t, IsRetryable(io))
	assert.False(t, IsLocalDataError(io))

	busy := &DeviceError{Command: "AT+PSEND", Code: CodeBusyError}
	assert.ErrorIs(t, busy, ErrTransport)
	assert.True(t, IsRetryable(busy))

	param := &DeviceError{Command: "AT+PFREQ", Code: CodeParamError}
	assert.ErrorIs(t, param, ErrTransport)
	assert.False(t, IsRetryable(param))

	assert.True(t, IsFinalCode("OK"))
	assert.True(t, IsFinalCode("AT_BUSY_ERROR"))
	assert.False(t, IsFinalCode("AT+PFREQ=868000000"))
	assert.False(t, IsRetryable(nil))
}
