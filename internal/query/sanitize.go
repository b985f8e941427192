package query

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	maxTextBytes      = 1_000_000
	truncatedSuffix   = "... [truncated]"
	binaryPlaceholder = "[binary data]"
)

// ColumnKind is the coarse type family of a result column, used to interpret
// driver values that arrive as raw bytes.
type ColumnKind int

const (
	ColumnAny ColumnKind = iota
	ColumnText
	ColumnNumeric
	ColumnDecimal
	ColumnBinary
)

var (
	decimalTypes = map[string]bool{"DECIMAL": true, "NUMERIC": true, "NEWDECIMAL": true, "MONEY": true}
	numericTypes = map[string]bool{
		"INT": true, "INT2": true, "INT4": true, "INT8": true, "INTEGER": true,
		"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "BIGINT": true,
		"SERIAL": true, "BIGSERIAL": true, "FLOAT": true, "FLOAT4": true,
		"FLOAT8": true, "DOUBLE": true, "REAL": true, "YEAR": true,
		"UNSIGNED INT": true, "UNSIGNED BIGINT": true, "UNSIGNED TINYINT": true,
		"UNSIGNED SMALLINT": true, "UNSIGNED MEDIUMINT": true,
	}
	binaryTypes = map[string]bool{
		"BLOB": true, "TINYBLOB": true, "MEDIUMBLOB": true, "LONGBLOB": true,
		"BINARY": true, "VARBINARY": true, "BYTEA": true, "BIT": true, "GEOMETRY": true,
	}
	textTypes = map[string]bool{
		"TEXT": true, "TINYTEXT": true, "MEDIUMTEXT": true, "LONGTEXT": true,
		"CHAR": true, "VARCHAR": true, "BPCHAR": true, "NAME": true, "CITEXT": true,
		"JSON": true, "JSONB": true, "UUID": true, "ENUM": true, "SET": true, "XML": true,
	}
)

// ColumnKindOf maps a driver's DatabaseTypeName to a ColumnKind.
func ColumnKindOf(dbType string) ColumnKind {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "":
		return ColumnAny
	case decimalTypes[t]:
		return ColumnDecimal
	case numericTypes[t]:
		return ColumnNumeric
	case binaryTypes[t]:
		return ColumnBinary
	case textTypes[t], strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"):
		return ColumnText
	default:
		return ColumnAny
	}
}

// Sanitize converts a driver value of unknown column type.
func Sanitize(v any) Value {
	return SanitizeColumn(v, ColumnAny)
}

// SanitizeColumn converts a driver value into a Value. It never fails: a value
// that cannot be converted degrades to a placeholder text.
func SanitizeColumn(v any, kind ColumnKind) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			out = TextValue(fmt.Sprintf("[unsanitizable %T]", v))
		}
	}()

	switch val := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(val)
	case int:
		return NumberValue(json.Number(strconv.FormatInt(int64(val), 10)))
	case int8:
		return NumberValue(json.Number(strconv.FormatInt(int64(val), 10)))
	case int16:
		return NumberValue(json.Number(strconv.FormatInt(int64(val), 10)))
	case int32:
		return NumberValue(json.Number(strconv.FormatInt(int64(val), 10)))
	case int64:
		return NumberValue(json.Number(strconv.FormatInt(val, 10)))
	case uint:
		return NumberValue(json.Number(strconv.FormatUint(uint64(val), 10)))
	case uint8:
		return NumberValue(json.Number(strconv.FormatUint(uint64(val), 10)))
	case uint16:
		return NumberValue(json.Number(strconv.FormatUint(uint64(val), 10)))
	case uint32:
		return NumberValue(json.Number(strconv.FormatUint(uint64(val), 10)))
	case uint64:
		return NumberValue(json.Number(strconv.FormatUint(val, 10)))
	case float32:
		return floatValue(float64(val), 32)
	case float64:
		return floatValue(val, 64)
	case json.Number:
		if _, err := val.Float64(); err != nil {
			return TextValue(limitText(val.String()))
		}
		return NumberValue(val)
	case decimal.Decimal:
		return TextValue(decimalText(val))
	case *decimal.Decimal:
		if val == nil {
			return NullValue()
		}
		return TextValue(decimalText(*val))
	case time.Time:
		return TextValue(val.Format(time.RFC3339Nano))
	case *time.Time:
		if val == nil {
			return NullValue()
		}
		return TextValue(val.Format(time.RFC3339Nano))
	case []byte:
		return bytesValue(val, kind)
	case string:
		return stringValue(val, kind)
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return TextValue(fmt.Sprintf("[unsanitizable %T]", v))
		}
		if _, same := inner.(driver.Valuer); same {
			return TextValue(limitText(fmt.Sprintf("%v (%T)", inner, v)))
		}
		return SanitizeColumn(inner, kind)
	default:
		return TextValue(limitText(fmt.Sprintf("%v (%T)", val, val)))
	}
}

func floatValue(f float64, bits int) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return TextValue(strconv.FormatFloat(f, 'g', -1, bits))
	}
	return NumberValue(json.Number(strconv.FormatFloat(f, 'g', -1, bits)))
}

// decimalText renders d with exactly the scale it carries, so 3.50 stays 3.50.
func decimalText(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func bytesValue(b []byte, kind ColumnKind) Value {
	switch kind {
	case ColumnText:
		return TextValue(limitText(strings.ToValidUTF8(string(b), "\uFFFD")))
	case ColumnDecimal:
		if d, err := decimal.NewFromString(string(b)); err == nil {
			return TextValue(decimalText(d))
		}
	case ColumnNumeric:
		if n := json.Number(b); isJSONNumber(n) {
			return NumberValue(n)
		}
	}
	if !utf8.Valid(b) {
		return TextValue(binaryPlaceholder)
	}
	return TextValue(limitText(string(b)))
}

func stringValue(s string, kind ColumnKind) Value {
	if kind == ColumnDecimal {
		if d, err := decimal.NewFromString(s); err == nil {
			return TextValue(decimalText(d))
		}
	}
	return TextValue(limitText(strings.ToValidUTF8(s, "\uFFFD")))
}

func isJSONNumber(n json.Number) bool {
	if !json.Valid([]byte(n)) {
		return false
	}
	_, err := n.Float64()
	return err == nil
}

// limitText cuts s to maxTextBytes on a rune boundary.
func limitText(s string) string {
	if len(s) <= maxTextBytes {
		return s
	}
	cut := maxTextBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
