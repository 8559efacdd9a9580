package rui3

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind 命令种类，作为描述符表的键
type Kind uint8

const (
	KindAttention Kind = iota + 1
	KindReset
	KindRestoreDefaults
	KindGetSerialNumber
	KindGetFirmwareVersion
	KindGetHardwareModel
	KindGetAlias
	KindSetAlias

	KindGetWorkingMode
	KindSetWorkingMode
	KindGetFrequency
	KindSetFrequency
	KindGetSpreadingFactor
	KindSetSpreadingFactor
	KindGetBandwidth
	KindSetBandwidth
	KindGetCodeRate
	KindSetCodeRate
	KindGetPreambleLength
	KindSetPreambleLength
	KindGetTxPower
	KindSetTxPower
	KindGetEncryption
	KindSetEncryption
	KindGetEncryptionKey
	KindSetEncryptionKey
	KindGetIQInversion
	KindSetIQInversion
	KindGetSyncWord
	KindSetSyncWord
	KindGetSymbolTimeout
	KindSetSymbolTimeout
	KindGetP2PParameters

	KindSendData
	KindReceiveData
)

// ParamType 参数类型
type ParamType uint8

const (
	ParamUint ParamType = iota + 1
	ParamBool
	ParamHex
	ParamText
)

// Param 命令参数定义
type Param struct {
	Name string
	Type ParamType
	// Max 对 ParamUint 为最大值，对 ParamHex/ParamText 为最大字符数；0 表示不限
	Max uint64
	// Min 仅对 ParamHex/ParamText 生效，为最小字符数
	Min uint64
}

// FieldType 回复字段类型
type FieldType uint8

const (
	FieldUint FieldType = iota + 1
	FieldInt
	FieldBool
	FieldHex
	// FieldText 取整行，不再拆分
	FieldText
)

// Descriptor 命令描述符，定义后不可修改
type Descriptor struct {
	Kind     Kind
	Mnemonic string // "+PFREQ"；AT 为空，ATZ 为 "Z"
	Query    bool   // 以 "=?" 结尾
	Params   []Param
	// Reply 为空表示命令只返回结束码
	Reply []FieldType
	// Timeout 为 0 时使用客户端默认超时
	Timeout time.Duration
	// NoFinalCode 设备执行后不返回结束码（ATZ 直接复位）
	NoFinalCode bool
}

// Label 不带参数的命令文本，用于日志和指标
func (d Descriptor) Label() string {
	if d.Query {
		return "AT" + d.Mnemonic + "=?"
	}
	return "AT" + d.Mnemonic
}

// HasReply 是否期待值行
func (d Descriptor) HasReply() bool { return len(d.Reply) > 0 }

var (
	uintParam = func(name string, max uint64) []Param {
		return []Param{{Name: name, Type: ParamUint, Max: max}}
	}
	boolParam = []Param{{Name: "enabled", Type: ParamBool}}
	one       = func(t FieldType) []FieldType { return []FieldType{t} }
)

// descriptors 静态命令表
var descriptors = map[Kind]Descriptor{
	KindAttention:          {Kind: KindAttention},
	KindReset:              {Kind: KindReset, Mnemonic: "Z", NoFinalCode: true},
	KindRestoreDefaults:    {Kind: KindRestoreDefaults, Mnemonic: "R", Timeout: 3 * time.Second},
	KindGetSerialNumber:    {Kind: KindGetSerialNumber, Mnemonic: "+SN", Query: true, Reply: one(FieldText)},
	KindGetFirmwareVersion: {Kind: KindGetFirmwareVersion, Mnemonic: "+VER", Query: true, Reply: one(FieldText)},
	KindGetHardwareModel:   {Kind: KindGetHardwareModel, Mnemonic: "+HWMODEL", Query: true, Reply: one(FieldText)},
	KindGetAlias:           {Kind: KindGetAlias, Mnemonic: "+ALIAS", Query: true, Reply: one(FieldText)},
	KindSetAlias:           {Kind: KindSetAlias, Mnemonic: "+ALIAS", Params: []Param{{Name: "alias", Type: ParamText, Max: 16}}},

	KindGetWorkingMode:     {Kind: KindGetWorkingMode, Mnemonic: "+NWM", Query: true, Reply: one(FieldUint)},
	KindSetWorkingMode:     {Kind: KindSetWorkingMode, Mnemonic: "+NWM", Params: uintParam("mode", uint64(ModeFSKP2P)), Timeout: 3 * time.Second},
	KindGetFrequency:       {Kind: KindGetFrequency, Mnemonic: "+PFREQ", Query: true, Reply: one(FieldUint)},
	KindSetFrequency:       {Kind: KindSetFrequency, Mnemonic: "+PFREQ", Params: uintParam("frequency", 1<<32-1)},
	KindGetSpreadingFactor: {Kind: KindGetSpreadingFactor, Mnemonic: "+PSF", Query: true, Reply: one(FieldUint)},
	KindSetSpreadingFactor: {Kind: KindSetSpreadingFactor, Mnemonic: "+PSF", Params: uintParam("sf", 255)},
	KindGetBandwidth:       {Kind: KindGetBandwidth, Mnemonic: "+PBW", Query: true, Reply: one(FieldUint)},
	KindSetBandwidth:       {Kind: KindSetBandwidth, Mnemonic: "+PBW", Params: uintParam("bandwidth", 1<<32-1)},
	KindGetCodeRate:        {Kind: KindGetCodeRate, Mnemonic: "+PCR", Query: true, Reply: one(FieldUint)},
	KindSetCodeRate:        {Kind: KindSetCodeRate, Mnemonic: "+PCR", Params: uintParam("code_rate", uint64(CR4_8))},
	KindGetPreambleLength:  {Kind: KindGetPreambleLength, Mnemonic: "+PPL", Query: true, Reply: one(FieldUint)},
	KindSetPreambleLength:  {Kind: KindSetPreambleLength, Mnemonic: "+PPL", Params: uintParam("preamble", 1<<16-1)},
	KindGetTxPower:         {Kind: KindGetTxPower, Mnemonic: "+PTP", Query: true, Reply: one(FieldUint)},
	KindSetTxPower:         {Kind: KindSetTxPower, Mnemonic: "+PTP", Params: uintParam("power", 255)},
	KindGetEncryption:      {Kind: KindGetEncryption, Mnemonic: "+ENCRY", Query: true, Reply: one(FieldBool)},
	KindSetEncryption:      {Kind: KindSetEncryption, Mnemonic: "+ENCRY", Params: boolParam},
	KindGetEncryptionKey:   {Kind: KindGetEncryptionKey, Mnemonic: "+ENCKEY", Query: true, Reply: one(FieldText)},
	KindSetEncryptionKey:   {Kind: KindSetEncryptionKey, Mnemonic: "+ENCKEY", Params: []Param{{Name: "key", Type: ParamText, Max: MaxEncryptionKeyLen}}},
	KindGetIQInversion:     {Kind: KindGetIQInversion, Mnemonic: "+IQINVER", Query: true, Reply: one(FieldBool)},
	KindSetIQInversion:     {Kind: KindSetIQInversion, Mnemonic: "+IQINVER", Params: boolParam},
	KindGetSyncWord:        {Kind: KindGetSyncWord, Mnemonic: "+SYNCWORD", Query: true, Reply: one(FieldHex)},
	KindSetSyncWord:        {Kind: KindSetSyncWord, Mnemonic: "+SYNCWORD", Params: []Param{{Name: "sync_word", Type: ParamHex, Min: 4, Max: 4}}},
	KindGetSymbolTimeout:   {Kind: KindGetSymbolTimeout, Mnemonic: "+SYMBOLTIMEOUT", Query: true, Reply: one(FieldUint)},
	KindSetSymbolTimeout:   {Kind: KindSetSymbolTimeout, Mnemonic: "+SYMBOLTIMEOUT", Params: uintParam("symbols", 255)},
	KindGetP2PParameters: {Kind: KindGetP2PParameters, Mnemonic: "+P2P", Query: true,
		Reply: []FieldType{FieldUint, FieldUint, FieldUint, FieldUint, FieldUint, FieldUint}},

	KindSendData:    {Kind: KindSendData, Mnemonic: "+PSEND", Params: []Param{{Name: "payload", Type: ParamHex, Min: 2, Max: 2 * MaxPayloadLen}}, Timeout: 5 * time.Second},
	KindReceiveData: {Kind: KindReceiveData, Mnemonic: "+PRECV", Params: uintParam("window", precvContinuous)},
}

// MaxPayloadLen 单包最大负载字节数
const MaxPayloadLen = 255

// Lookup 按种类查描述符
func Lookup(k Kind) (Descriptor, bool) {
	d, ok := descriptors[k]
	return d, ok
}

// Command 一条待发送的命令：种类 + 已格式化的位置参数
type Command struct {
	Kind Kind
	Args []string
}

// Descriptor 返回命令对应的描述符；未知种类返回零值
func (c Command) Descriptor() Descriptor { return descriptors[c.Kind] }

func (c Command) String() string {
	s, err := c.Encode()
	if err != nil {
		return fmt.Sprintf("invalid(%d)", c.Kind)
	}
	return s
}

// Encode 生成不含行结束符的命令文本，参数按描述符逐个校验
func (c Command) Encode() (string, error) {
	d, ok := descriptors[c.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown command kind %d", ErrInvalidArgument, c.Kind)
	}
	if d.Query {
		if len(c.Args) != 0 {
			return "", fmt.Errorf("%w: %s takes no parameters", ErrInvalidArgument, d.Label())
		}
		return d.Label(), nil
	}
	if len(c.Args) != len(d.Params) {
		return "", fmt.Errorf("%w: %s expects %d parameters, got %d", ErrInvalidArgument, d.Label(), len(d.Params), len(c.Args))
	}
	if len(c.Args) == 0 {
		return d.Label(), nil
	}
	for i, p := range d.Params {
		if err := p.check(c.Args[i]); err != nil {
			return "", fmt.Errorf("%s: %w", d.Label(), err)
		}
	}
	return d.Label() + "=" + strings.Join(c.Args, ","), nil
}

func (p Param) check(v string) error {
	switch p.Type {
	case ParamUint:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s %q is not an unsigned integer", ErrInvalidArgument, p.Name, v)
		}
		if p.Max > 0 && n > p.Max {
			return fmt.Errorf("%w: %s %d exceeds %d", ErrInvalidArgument, p.Name, n, p.Max)
		}
	case ParamBool:
		if v != "0" && v != "1" {
			return fmt.Errorf("%w: %s %q is not 0/1", ErrInvalidArgument, p.Name, v)
		}
	case ParamHex:
		if !IsHex(v) {
			return fmt.Errorf("%w: %s %q", ErrMalformedHex, p.Name, v)
		}
		fallthrough
	case ParamText:
		if p.Max > 0 && uint64(len(v)) > p.Max {
			return fmt.Errorf("%w: %s longer than %d", ErrInvalidArgument, p.Name, p.Max)
		}
		if uint64(len(v)) < p.Min {
			return fmt.Errorf("%w: %s shorter than %d", ErrInvalidArgument, p.Name, p.Min)
		}
		if strings.ContainsAny(v, ",\r\n") {
			return fmt.Errorf("%w: %s contains a separator", ErrInvalidArgument, p.Name)
		}
	}
	return nil
}

func cmd(k Kind, args ...string) Command { return Command{Kind: k, Args: args} }

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func uintArg[T ~uint8 | ~uint16 | ~uint32](v T) string { return strconv.FormatUint(uint64(v), 10) }

// 通用命令
func Attention() Command { return cmd(KindAttention) }
func Reset() Command { return cmd(KindReset) }
func RestoreDefaults() Command { return cmd(KindRestoreDefaults) }
func Get(k Kind) Command { return cmd(k) }

func SetAlias(alias string) Command { return cmd(KindSetAlias, alias) }

// 射频参数 Set 命令
func SetWorkingMode(m WorkingMode) Command { return cmd(KindSetWorkingMode, uintArg(m)) }
func SetFrequency(hz uint32) Command { return cmd(KindSetFrequency, uintArg(hz)) }
func SetSpreadingFactor(sf uint8) Command { return cmd(KindSetSpreadingFactor, uintArg(sf)) }
func SetBandwidth(bw Bandwidth) Command { return cmd(KindSetBandwidth, bw.Param()) }
func SetCodeRate(cr CodeRate) Command { return cmd(KindSetCodeRate, uintArg(cr)) }
func SetPreambleLength(n uint16) Command { return cmd(KindSetPreambleLength, uintArg(n)) }
func SetTxPower(dbm uint8) Command { return cmd(KindSetTxPower, uintArg(dbm)) }
func SetEncryption(enabled bool) Command { return cmd(KindSetEncryption, boolArg(enabled)) }
func SetEncryptionKey(key string) Command { return cmd(KindSetEncryptionKey, key) }
func SetIQInversion(enabled bool) Command { return cmd(KindSetIQInversion, boolArg(enabled)) }
func SetSyncWord(w uint16) Command { return cmd(KindSetSyncWord, fmt.Sprintf("%04X", w)) }
func SetSymbolTimeout(symbols uint8) Command { return cmd(KindSetSymbolTimeout, uintArg(symbols)) }
func SendData(hexPayload string) Command { return cmd(KindSendData, hexPayload) }
func ReceiveData(w ReceiveWindow) Command { return cmd(KindReceiveData, w.Param()) }
