package rui3

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkingMode 网络工作模式（AT+NWM）
type WorkingMode uint8

const (
	ModeLoRaP2P WorkingMode = 0
	ModeLoRaWAN WorkingMode = 1
	ModeFSKP2P  WorkingMode = 2
)

var workingModeNames = map[WorkingMode]string{
	ModeLoRaP2P: "p2p",
	ModeLoRaWAN: "lorawan",
	ModeFSKP2P:  "fsk_p2p",
}

func (m WorkingMode) String() string {
	if s, ok := workingModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m WorkingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *WorkingMode) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range workingModeNames {
		if v == s {
			*m = k
			return nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil && n <= uint64(ModeFSKP2P) {
		*m = WorkingMode(n)
		return nil
	}
	return fmt.Errorf("%w: unknown working mode %q", ErrInvalidArgument, s)
}

// BandwidthKind 带宽取值：十种 LoRa 固定带宽 + FSK
type BandwidthKind uint8

// 线上编码为下标 0..9，顺序与固件一致
const (
	BW125KHz BandwidthKind = iota
	BW250KHz
	BW500KHz
	BW7_8KHz
	BW10_4KHz
	BW15_63KHz
	BW20_83KHz
	BW31_25KHz
	BW41_67KHz
	BW62_5KHz
	BWFSK
)

var loraBandwidthNames = [...]string{
	BW125KHz:   "125kHz",
	BW250KHz:   "250kHz",
	BW500KHz:   "500kHz",
	BW7_8KHz:   "7.8kHz",
	BW10_4KHz:  "10.4kHz",
	BW15_63KHz: "15.63kHz",
	BW20_83KHz: "20.83kHz",
	BW31_25KHz: "31.25kHz",
	BW41_67KHz: "41.67kHz",
	BW62_5KHz:  "62.5kHz",
}

// Bandwidth 带宽。FSKRate 仅在 Kind == BWFSK 时有意义
type Bandwidth struct {
	Kind    BandwidthKind
	FSKRate uint32
}

// LoRaBandwidth 构造 LoRa 固定带宽
func LoRaBandwidth(k BandwidthKind) Bandwidth { return Bandwidth{Kind: k} }

// FSKBandwidth 构造 FSK 带宽（Hz）
func FSKBandwidth(rate uint32) Bandwidth { return Bandwidth{Kind: BWFSK, FSKRate: rate} }

// IsFSK 是否为 FSK 变体
func (b Bandwidth) IsFSK() bool { return b.Kind == BWFSK }

// Param 线上参数
func (b Bandwidth) Param() string {
	if b.Kind == BWFSK {
		return strconv.FormatUint(uint64(b.FSKRate), 10)
	}
	return strconv.Itoa(int(b.Kind))
}

func (b Bandwidth) String() string {
	if b.Kind == BWFSK {
		return fmt.Sprintf("fsk:%d", b.FSKRate)
	}
	if int(b.Kind) < len(loraBandwidthNames) {
		return loraBandwidthNames[b.Kind]
	}
	return fmt.Sprintf("bw(%d)", uint8(b.Kind))
}

func (b Bandwidth) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Bandwidth) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if rate, ok := strings.CutPrefix(s, "fsk:"); ok {
		n, err := strconv.ParseUint(rate, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: fsk bandwidth %q", ErrInvalidArgument, s)
		}
		*b = FSKBandwidth(uint32(n))
		return nil
	}
	for i, name := range loraBandwidthNames {
		if strings.ToLower(name) == s {
			*b = LoRaBandwidth(BandwidthKind(i))
			return nil
		}
	}
	return fmt.Errorf("%w: unknown bandwidth %q", ErrInvalidArgument, s)
}

// ParseBandwidth 解析设备回复中的带宽；FSK 模式下数值即为速率
func ParseBandwidth(s string, mode WorkingMode) (Bandwidth, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return Bandwidth{}, fmt.Errorf("bandwidth %q: %w", s, err)
	}
	if mode == ModeFSKP2P {
		return FSKBandwidth(uint32(n)), nil
	}
	if n >= uint64(BWFSK) {
		return Bandwidth{}, fmt.Errorf("bandwidth index %d out of range", n)
	}
	return LoRaBandwidth(BandwidthKind(n)), nil
}

// CodeRate 编码率（AT+PCR）
type CodeRate uint8

const (
	CR4_5 CodeRate = iota
	CR4_6
	CR4_7
	CR4_8
)

func (c CodeRate) String() string {
	if c > CR4_8 {
		return fmt.Sprintf("cr(%d)", uint8(c))
	}
	return fmt.Sprintf("4/%d", uint8(c)+5)
}

func (c CodeRate) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CodeRate) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	for v := CR4_5; v <= CR4_8; v++ {
		if v.String() == s {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown code rate %q", ErrInvalidArgument, s)
}

// MaxEncryptionKeyLen 加密密钥最大长度
const MaxEncryptionKeyLen = 16

// Configuration 射频参数集合
type Configuration struct {
	Mode              WorkingMode `json:"mode" yaml:"mode"`
	Frequency         uint32      `json:"frequency" yaml:"frequency"`
	SpreadingFactor   uint8       `json:"spreading_factor" yaml:"spreading_factor"`
	Bandwidth         Bandwidth   `json:"bandwidth" yaml:"bandwidth"`
	CodeRate          CodeRate    `json:"code_rate" yaml:"code_rate"`
	PreambleLength    uint16      `json:"preamble_length" yaml:"preamble_length"`
	TxPower           uint8       `json:"tx_power" yaml:"tx_power"`
	EncryptionEnabled bool        `json:"encryption_enabled" yaml:"encryption_enabled"`
	EncryptionKey     string      `json:"encryption_key,omitempty" yaml:"encryption_key,omitempty"`
}

// DefaultConfiguration 默认参数：P2P / 868MHz / SF7 / 125kHz / 4/5 / 前导码8 / 14dBm / 不加密
func DefaultConfiguration() Configuration {
	return Configuration{
		Mode:            ModeLoRaP2P,
		Frequency:       868000000,
		SpreadingFactor: 7,
		Bandwidth:       LoRaBandwidth(BW125KHz),
		CodeRate:        CR4_5,
		PreambleLength:  8,
		TxPower:         14,
	}
}

// Validate 本地校验，不访问设备
func (c Configuration) Validate() error {
	if len(c.EncryptionKey) > MaxEncryptionKeyLen {
		return fmt.Errorf("%w: encryption key longer than %d", ErrInvalidArgument, MaxEncryptionKeyLen)
	}
	if c.EncryptionEnabled && c.EncryptionKey == "" {
		return fmt.Errorf("%w: encryption enabled without key", ErrInvalidArgument)
	}
	if c.Mode > ModeFSKP2P {
		return fmt.Errorf("%w: working mode %d", ErrInvalidArgument, c.Mode)
	}
	if c.Bandwidth.IsFSK() != (c.Mode == ModeFSKP2P) {
		return fmt.Errorf("%w: bandwidth %s does not match mode %s", ErrInvalidArgument, c.Bandwidth, c.Mode)
	}
	if !c.Bandwidth.IsFSK() && c.Bandwidth.Kind >= BWFSK {
		return fmt.Errorf("%w: bandwidth kind %d", ErrInvalidArgument, c.Bandwidth.Kind)
	}
	if c.CodeRate > CR4_8 {
		return fmt.Errorf("%w: code rate %d", ErrInvalidArgument, c.CodeRate)
	}
	return nil
}

// 接收窗口的特殊取值（AT+PRECV）
const (
	precvStop       = 0
	precvOnePacket  = 65534
	precvContinuous = 65535
	// MaxWindowMillis 毫秒窗口上限，更大的值被固件解释为特殊模式
	MaxWindowMillis = 65533
)

// WindowMode 接收窗口类型
type WindowMode uint8

const (
	WindowStop WindowMode = iota
	WindowMillis
	WindowOnePacket
	WindowContinuous
)

// ReceiveWindow 接收窗口
type ReceiveWindow struct {
	Mode   WindowMode
	Millis uint16
}

// 常用窗口
var (
	Stop       = ReceiveWindow{Mode: WindowStop}
	OnePacket  = ReceiveWindow{Mode: WindowOnePacket}
	Continuous = ReceiveWindow{Mode: WindowContinuous}
)

// Milliseconds 毫秒窗口，取值 1..65533
func Milliseconds(n uint16) ReceiveWindow {
	return ReceiveWindow{Mode: WindowMillis, Millis: n}
}

// Validate 校验毫秒窗口范围
func (w ReceiveWindow) Validate() error {
	if w.Mode == WindowMillis && (w.Millis == 0 || w.Millis > MaxWindowMillis) {
		return fmt.Errorf("%w: receive window %dms out of range 1..%d", ErrInvalidArgument, w.Millis, MaxWindowMillis)
	}
	if w.Mode > WindowContinuous {
		return fmt.Errorf("%w: receive window mode %d", ErrInvalidArgument, w.Mode)
	}
	return nil
}

// Param 线上参数
func (w ReceiveWindow) Param() string {
	switch w.Mode {
	case WindowMillis:
		return strconv.Itoa(int(w.Millis))
	case WindowOnePacket:
		return strconv.Itoa(precvOnePacket)
	case WindowContinuous:
		return strconv.Itoa(precvContinuous)
	default:
		return strconv.Itoa(precvStop)
	}
}

func (w ReceiveWindow) String() string {
	switch w.Mode {
	case WindowMillis:
		return fmt.Sprintf("%dms", w.Millis)
	case WindowOnePacket:
		return "one"
	case WindowContinuous:
		return "continuous"
	default:
		return "stop"
	}
}

// ParseReceiveWindow 解析 "stop" / "one" / "continuous" / "500ms" / "500"
func ParseReceiveWindow(s string) (ReceiveWindow, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "stop":
		return Stop, nil
	case "one", "one_packet":
		return OnePacket, nil
	case "continuous":
		return Continuous, nil
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(s, "ms"), 10, 16)
	if err != nil {
		return ReceiveWindow{}, fmt.Errorf("%w: receive window %q", ErrInvalidArgument, s)
	}
	w := Milliseconds(uint16(n))
	return w, w.Validate()
}

// Revision 固件协议版本
type Revision uint8

const (
	// RevisionLegacy 信号报告与数据分两行上报，不支持加密命令
	RevisionLegacy Revision = iota
	// RevisionCurrent RXP2P:rssi:snr[:payload] 单行上报，支持 ENCRY/ENCKEY
	RevisionCurrent
)

func (r Revision) String() string {
	if r == RevisionLegacy {
		return "legacy"
	}
	return "current"
}

// SupportsEncryption 该版本是否提供加密命令
func (r Revision) SupportsEncryption() bool { return r >= RevisionCurrent }

// ParseRevision 解析配置中的版本名，空串视为 current
func ParseRevision(s string) (Revision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "v1":
		return RevisionLegacy, nil
	case "", "current", "v2":
		return RevisionCurrent, nil
	}
	return RevisionCurrent, fmt.Errorf("%w: protocol revision %q", ErrInvalidArgument, s)
}

// EventKind 上报事件类型
type EventKind uint8

const (
	EventPeerData EventKind = iota + 1
	EventPeerInfo
	EventPeerMessage
)

func (k EventKind) String() string {
	switch k {
	case EventPeerData:
		return "peer_data"
	case EventPeerInfo:
		return "peer_info"
	case EventPeerMessage:
		return "peer_message"
	}
	return "unknown"
}

// Event 解码后的 URC 事件
type Event struct {
	Kind EventKind
	RSSI int16
	SNR  int16
	Data []byte
}
