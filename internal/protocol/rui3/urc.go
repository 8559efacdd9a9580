package rui3

import (
	"fmt"
	"strconv"
	"strings"
)

// NotificationPrefix 主动上报行的固定前缀
const NotificationPrefix = "+EVT:"

const rxp2pToken = "RXP2P"

// IsNotification 判断一行是否为主动上报（URC）
func IsNotification(line string) bool {
	return strings.HasPrefix(line, NotificationPrefix)
}

// ParseNotification 解析一行 URC；无法识别时返回 false，不向调用方报错
func ParseNotification(line string) (Event, bool) {
	ev, err := DecodeNotification(line)
	return ev, err == nil
}

// DecodeNotification 与 ParseNotification 相同，但返回失败原因（均包装 ErrParseFailure）
func DecodeNotification(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < len(NotificationPrefix) || !IsNotification(line) {
		return Event{}, fmt.Errorf("%w: missing %s prefix", ErrParseFailure, NotificationPrefix)
	}
	body := strings.TrimSpace(line[len(NotificationPrefix):])
	if body == "" {
		return Event{}, fmt.Errorf("%w: empty body", ErrParseFailure)
	}

	if rest, ok := strings.CutPrefix(body, rxp2pToken); ok {
		if colon, ok := strings.CutPrefix(rest, ":"); ok {
			return parseColonReport(colon)
		}
		return parseLegacyReport(rest)
	}

	if IsHex(body) {
		data, err := DecodeHex(body)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
		return Event{Kind: EventPeerData, Data: data}, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrParseFailure, body)
}

// parseColonReport RXP2P:<rssi>:<snr>[:<hex>]
func parseColonReport(s string) (Event, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Event{}, fmt.Errorf("%w: RXP2P expects 2 or 3 fields, got %d", ErrParseFailure, len(parts))
	}
	return signalEvent(parts[0], parts[1], parts[2:])
}

// parseLegacyReport ", RSSI <rssi>, SNR <snr>"，可选尾随 ", <hex>"
func parseLegacyReport(s string) (Event, error) {
	tokens := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(tokens) < 4 || len(tokens) > 5 ||
		!strings.EqualFold(tokens[0], "RSSI") || !strings.EqualFold(tokens[2], "SNR") {
		return Event{}, fmt.Errorf("%w: RXP2P template mismatch %q", ErrParseFailure, s)
	}
	return signalEvent(tokens[1], tokens[3], tokens[4:])
}

func signalEvent(rssiText, snrText string, payload []string) (Event, error) {
	rssi, err := strconv.ParseInt(strings.TrimSpace(rssiText), 10, 16)
	if err != nil {
		return Event{}, fmt.Errorf("%w: rssi %q", ErrParseFailure, rssiText)
	}
	snr, err := strconv.ParseInt(strings.TrimSpace(snrText), 10, 16)
	if err != nil {
		return Event{}, fmt.Errorf("%w: snr %q", ErrParseFailure, snrText)
	}
	ev := Event{Kind: EventPeerInfo, RSSI: int16(rssi), SNR: int16(snr)}
	if len(payload) == 0 {
		return ev, nil
	}
	p := strings.TrimSpace(payload[0])
	if p == "" {
		return ev, nil
	}
	data, err := DecodeHex(p)
	if err != nil {
		return Event{}, fmt.Errorf("%w: payload: %v", ErrParseFailure, err)
	}
	ev.Kind = EventPeerMessage
	ev.Data = data
	return ev, nil
}
