// Package query executes validated statements under row and time limits and
// converts driver values into transport-safe scalars.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind is the closed set of scalar forms a result cell can take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a sanitized result cell. The zero Value is null.
type Value struct {
	kind ValueKind
	text string
	num  json.Number
	b    bool
}

func NullValue() Value                { return Value{} }
func TextValue(s string) Value        { return Value{kind: KindText, text: s} }
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value          { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// String renders the value as display text. Null renders as "NULL".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num.String()
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return "NULL"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = TextValue(x)
	case json.Number:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("value must be a JSON scalar, got %T", raw)
	}
	return nil
}
