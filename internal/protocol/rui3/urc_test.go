package rui3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "旧版信号报告",
			line: "+EVT:RXP2P, RSSI -42, SNR 7",
			want: Event{Kind: EventPeerInfo, RSSI: -42, SNR: 7},
		},
		{
			name: "数据行",
			line: "+EVT:48656C6C6F",
			want: Event{Kind: EventPeerData, Data: []byte("Hello")},
		},
		{
			name: "小写数据行",
			line: "+EVT:48656c6c6f",
			want: Event{Kind: EventPeerData, Data: []byte("Hello")},
		},
		{
			name: "冒号格式信号报告",
			line: "+EVT:RXP2P:-97:-3",
			want: Event{Kind: EventPeerInfo, RSSI: -97, SNR: -3},
		},
		{
			name: "冒号格式带负载",
			line: "+EVT:RXP2P:-42:7:0102",
			want: Event{Kind: EventPeerMessage, RSSI: -42, SNR: 7, Data: []byte{0x01, 0x02}},
		},
		{
			name: "旧版带负载",
			line: "+EVT:RXP2P, RSSI -50, SNR 9, AABB",
			want: Event{Kind: EventPeerMessage, RSSI: -50, SNR: 9, Data: []byte{0xaa, 0xbb}},
		},
		{
			name: "带行结束符",
			line: "+EVT:RXP2P, RSSI -1, SNR 0\r\n",
			want: Event{Kind: EventPeerInfo, RSSI: -1, SNR: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseNotification(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseNotification_NoEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"短于前缀", "+EV"},
		{"空行", ""},
		{"只有前缀", "+EVT:"},
		{"非URC", "AT+PFREQ=868000000"},
		{"奇数长度hex", "+EVT:ABC"},
		{"非hex", "+EVT:TXP2P DONE"},
		{"RSSI非数字", "+EVT:RXP2P, RSSI abc, SNR 7"},
		{"SNR溢出int16", "+EVT:RXP2P, RSSI -42, SNR 70000"},
		{"模板不符", "+EVT:RXP2P, SNR 7, RSSI -42"},
		{"冒号字段不足", "+EVT:RXP2P:-42"},
		{"冒号负载非法", "+EVT:RXP2P:-42:7:XYZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := ParseNotification(tt.line)
				assert.False(t, ok)
				_, err := DecodeNotification(tt.line)
				assert.ErrorIs(t, err, ErrParseFailure)
			})
		})
	}
}

func TestIsNotification(t *testing.T) {
	assert.True(t, IsNotification("+EVT:RXP2P:-1:2"))
	assert.False(t, IsNotification("OK"))
	assert.False(t, IsNotification("+EV"))
}
