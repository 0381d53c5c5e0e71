package substitution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "a string"
	case KindNumber:
		return "a number"
	case KindBool:
		return "a boolean"
	case KindList:
		return "a list"
	case KindObject:
		return "an object"
	default:
		return "null"
	}
}

// Member is one key of an object Value. Objects keep members in the order
// they were received so rendering is stable.
type Member struct {
	Key   string
	Value Value
}

// Value is the variables structure a template is processed against. The zero
// Value is null.
type Value struct {
	kind    Kind
	text    string // string contents or the number literal
	boolean bool
	items   []Value
	members []Member
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

func Int(n int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(n, 10)} }

func Float(f float64) Value {
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)}
}

func List(items ...Value) Value { return Value{kind: KindList, items: items} }

func Object(members ...Member) Value { return Value{kind: KindObject, members: members} }

// Field is shorthand for building object members.
func Field(key string, v Value) Member { return Member{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }

// Get returns the member named key. Only objects have members; for duplicate
// keys the last one wins, matching encoding/json.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for i := len(v.members) - 1; i >= 0; i-- {
		if v.members[i].Key == key {
			return v.members[i].Value, true
		}
	}
	return Value{}, false
}

// String renders the value as it is inserted into a template: strings as their
// raw text, everything else as compact JSON.
func (v Value) String() string {
	if v.kind == KindString {
		return v.text
	}
	return string(v.appendJSON(nil))
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil), nil
}

func (v Value) appendJSON(buf []byte) []byte {
	switch v.kind {
	case KindString:
		return append(buf, quote(v.text)...)
	case KindNumber:
		return append(buf, canonicalNumber(v.text)...)
	case KindBool:
		return strconv.AppendBool(buf, v.boolean)
	case KindList:
		buf = append(buf, '[')
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = item.appendJSON(buf)
		}
		return append(buf, ']')
	case KindObject:
		buf = append(buf, '{')
		for i, m := range v.members {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, quote(m.Key)...)
			buf = append(buf, ':')
			buf = m.Value.appendJSON(buf)
		}
		return append(buf, '}')
	default:
		return append(buf, "null"...)
	}
}

// quote encodes s as a JSON string without HTML escaping; rendered values end
// up inside email bodies where < would be noise.
func quote(s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(b.Bytes(), "\n")
}

// canonicalNumber renders a JSON number literal in a locale-independent form.
// Integer literals are kept digit for digit (so large ids survive); anything
// else goes through float64 and is printed in shortest round-trip form, using
// exponent notation outside 1e-6 <= |x| < 1e21.
func canonicalNumber(lit string) string {
	if isIntegerLiteral(lit) {
		if lit == "-0" {
			return "0"
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs < 1e-6 || abs >= 1e21 {
		return trimExponent(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// trimExponent drops the zero padding Go puts on exponents: 1e-07 -> 1e-7.
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	digits := strings.TrimLeft(s[i+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return s[:i+2] + digits
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes a single JSON document into a Value.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parse variables: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("parse variables: unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, text: t.String()}, nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			members := []Member{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key %v is not a string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(members...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
