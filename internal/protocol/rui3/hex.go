package rui3

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeHex 负载编码：每字节两个大写 hex 字符，无分隔符
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeHex 负载解码，大小写均接受；奇数长度或非 hex 字符返回 ErrMalformedHex
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedHex, len(s))
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return !isHexDigit(r) }); i >= 0 {
		return nil, fmt.Errorf("%w: invalid character %q at %d", ErrMalformedHex, s[i], i)
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return out, nil
}

// IsHex 判断是否为非空、偶数长度的 hex 串
func IsHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return !isHexDigit(r) }) < 0
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
