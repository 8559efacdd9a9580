package rui3

import (
	"strconv"
	"strings"
)

// Value 单个已解码的回复字段
type Value struct {
	Uint  uint64
	Int   int64
	Bool  bool
	Text  string
	Bytes []byte
}

// Reply 按描述符解码后的回复
type Reply struct {
	Kind   Kind
	Raw    string
	Values []Value
}

// Len 字段个数
func (r Reply) Len() int { return len(r.Values) }

func (r Reply) at(i int) Value {
	if i < 0 || i >= len(r.Values) {
		return Value{}
	}
	return r.Values[i]
}

func (r Reply) Uint(i int) uint64  { return r.at(i).Uint }
func (r Reply) Int(i int) int64    { return r.at(i).Int }
func (r Reply) Bool(i int) bool    { return r.at(i).Bool }
func (r Reply) Text(i int) string  { return r.at(i).Text }
func (r Reply) Bytes(i int) []byte { return r.at(i).Bytes }

// DecodeReply 将结束码之前的回复行按描述符的回复形状解码。
// 回显的命令行与 "AT+MN=" / "+MN:" 前缀会被剥离。
func DecodeReply(c Command, lines []string) (Reply, error) {
	d, ok := descriptors[c.Kind]
	if !ok {
		return Reply{}, &ShapeError{Command: "AT?", Reason: "unknown command kind"}
	}
	echo, _ := c.Encode()

	var values []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || l == echo || l == d.Label() {
			continue
		}
		values = append(values, stripEcho(l, d.Mnemonic))
	}
	raw := strings.Join(values, "\n")
	r := Reply{Kind: c.Kind, Raw: raw}
	if !d.HasReply() {
		return r, nil
	}
	if len(values) == 0 {
		return r, &ShapeError{Command: d.Label(), Reason: "missing value line", Raw: raw}
	}
	// 多行时取最后一行，前面的通常是固件的提示信息
	body := values[len(values)-1]

	var fields []string
	if len(d.Reply) == 1 && d.Reply[0] == FieldText {
		fields = []string{body}
	} else {
		fields = splitTuple(body)
	}
	if len(fields) != len(d.Reply) {
		return r, &ShapeError{
			Command: d.Label(),
			Reason:  "expected " + strconv.Itoa(len(d.Reply)) + " fields, got " + strconv.Itoa(len(fields)),
			Raw:     body,
		}
	}

	r.Values = make([]Value, len(fields))
	for i, f := range fields {
		v, reason := decodeField(d.Reply[i], f)
		if reason != "" {
			return r, &ShapeError{Command: d.Label(), Reason: "field " + strconv.Itoa(i) + ": " + reason, Raw: body}
		}
		r.Values[i] = v
	}
	return r, nil
}

func stripEcho(line, mnemonic string) string {
	if mnemonic == "" {
		return line
	}
	for _, p := range []string{"AT" + mnemonic + "=", mnemonic + ":", mnemonic + "="} {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	return line
}

func splitTuple(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ',' })
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func decodeField(t FieldType, s string) (Value, string) {
	switch t {
	case FieldUint:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, "not an unsigned integer"
		}
		return Value{Uint: n, Int: int64(n), Text: s}, ""
	case FieldInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, "not an integer"
		}
		return Value{Int: n, Text: s}, ""
	case FieldBool:
		switch s {
		case "0":
			return Value{Text: s}, ""
		case "1":
			return Value{Bool: true, Uint: 1, Int: 1, Text: s}, ""
		}
		return Value{}, "not 0/1"
	case FieldHex:
		b, err := DecodeHex(s)
		if err != nil || len(b) == 0 {
			return Value{}, "not hex"
		}
		return Value{Bytes: b, Text: strings.ToUpper(s)}, ""
	case FieldText:
		return Value{Text: s}, ""
	}
	return Value{}, "unknown field type"
}
