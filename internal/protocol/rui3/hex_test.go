package rui3

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHex(t *testing.T) {
	assert.Equal(t, "0102", EncodeHex([]byte{0x01, 0x02}))
	assert.Equal(t, "48656C6C6F", EncodeHex([]byte("Hello")))
	assert.Equal(t, "", EncodeHex(nil))
	assert.Equal(t, "00FF", EncodeHex([]byte{0x00, 0xff}))
}

func TestDecodeHex_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 0; n < 300; n++ {
		b := make([]byte, n)
		r.Read(b)
		got, err := DecodeHex(EncodeHex(b))
		require.NoError(t, err)
		assert.Equal(t, len(b), len(got))
		if n > 0 {
			assert.Equal(t, b, got)
		}
	}
}

func TestDecodeHex_CanonicalUpper(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"大写", "48656C6C6F", []byte("Hello")},
		{"小写", "48656c6c6f", []byte("Hello")},
		{"混合大小写", "aBcD", []byte{0xab, 0xcd}},
		{"全零", "0000", []byte{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHex(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, len(tt.in)/2)
			assert.Equal(t, strings.ToUpper(tt.in), EncodeHex(got))
		})
	}
}

func TestDecodeHex_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"奇数长度", "ABC"},
		{"单字符", "A"},
		{"非hex字符", "0G"},
		{"空格", "01 2"},
		{"尾部非法", "0102Z1"},
		{"非ASCII", "é1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := DecodeHex(tt.in)
				assert.ErrorIs(t, err, ErrMalformedHex)
				assert.True(t, IsLocalDataError(err))
			})
		})
	}
}

func TestIsHex(t *testing.T) {
	assert.True(t, IsHex("0102"))
	assert.True(t, IsHex("abCD"))
	assert.False(t, IsHex(""))
	assert.False(t, IsHex("012"))
	assert.False(t, IsHex("RXP2P0"))
}
