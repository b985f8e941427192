package query

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeScalars(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC)
	tests := []struct {
		name string
		in   any
		kind ValueKind
		want string
	}{
		{"nil", nil, KindNull, "NULL"},
		{"bool", true, KindBool, "true"},
		{"int64", int64(-42), KindNumber, "-42"},
		{"uint8", uint8(7), KindNumber, "7"},
		{"float", 2.5, KindNumber, "2.5"},
		{"nan", math.NaN(), KindText, "NaN"},
		{"inf", math.Inf(1), KindText, "+Inf"},
		{"time", ts, KindText, "2024-05-06T07:08:09.0000005Z"},
		{"decimal", decimal.RequireFromString("12.300"), KindText, "12.300"},
		{"string", "héllo", KindText, "héllo"},
		{"utf8 bytes", []byte("plain"), KindText, "plain"},
		{"binary bytes", []byte{0xff, 0xfe, 0x00}, KindText, "[binary data]"},
		{"valuer", uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), KindText, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"null valuer", sql.NullInt64{}, KindNull, "NULL"},
		{"other", point{1, 2}, KindText, "{1 2} (query.point)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.want, got.String())
			_, err := json.Marshal(got)
			assert.NoError(t, err)
		})
	}
}

func TestSanitizeDecimalMatchesString(t *testing.T) {
	fromDecimal := SanitizeColumn(decimal.RequireFromString("3.50"), ColumnDecimal)
	fromString := Sanitize("3.50")
	fromBytes := SanitizeColumn([]byte("3.50"), ColumnDecimal)

	assert.Equal(t, fromString, fromDecimal)
	assert.Equal(t, fromString, fromBytes)
	assert.Equal(t, "3.50", fromDecimal.String())
}

func TestSanitizeColumnKinds(t *testing.T) {
	assert.Equal(t, NumberValue("17"), SanitizeColumn([]byte("17"), ColumnNumeric))
	assert.Equal(t, TextValue("abc"), SanitizeColumn([]byte("abc"), ColumnNumeric))
	assert.Equal(t, TextValue("a\uFFFDb"), SanitizeColumn([]byte{'a', 0xff, 'b'}, ColumnText))
	assert.Equal(t, TextValue(binaryPlaceholder), SanitizeColumn([]byte{'a', 0xff, 'b'}, ColumnBinary))
	assert.Equal(t, TextValue("readable"), SanitizeColumn([]byte("readable"), ColumnBinary))
}

func TestSanitizeTruncatesLongText(t *testing.T) {
	long := strings.Repeat("é", maxTextBytes) // two bytes per rune
	got := Sanitize(long).String()

	require.True(t, strings.HasSuffix(got, truncatedSuffix))
	body := strings.TrimSuffix(got, truncatedSuffix)
	assert.LessOrEqual(t, len(body), maxTextBytes)
	assert.True(t, utf8.ValidString(body))

	short := strings.Repeat("a", maxTextBytes)
	assert.Equal(t, short, Sanitize(short).String())
}

type point struct{ X, Y int }

type explodingValuer struct{}

func (explodingValuer) Value() (driver.Value, error) { panic("boom") }

func TestSanitizeRecoversFromPanics(t *testing.T) {
	got := Sanitize(explodingValuer{})
	assert.Equal(t, TextValue("[unsanitizable query.explodingValuer]"), got)
}

func TestColumnKindOf(t *testing.T) {
	assert.Equal(t, ColumnDecimal, ColumnKindOf("NUMERIC"))
	assert.Equal(t, ColumnDecimal, ColumnKindOf("decimal(10,2)"))
	assert.Equal(t, ColumnNumeric, ColumnKindOf("INT4"))
	assert.Equal(t, ColumnNumeric, ColumnKindOf("BIGINT"))
	assert.Equal(t, ColumnBinary, ColumnKindOf("BYTEA"))
	assert.Equal(t, ColumnBinary, ColumnKindOf("BLOB"))
	assert.Equal(t, ColumnText, ColumnKindOf("VARCHAR"))
	assert.Equal(t, ColumnText, ColumnKindOf("NVARCHAR(20)"))
	assert.Equal(t, ColumnAny, ColumnKindOf("INTERVAL"))
	assert.Equal(t, ColumnAny, ColumnKindOf(""))
}

func TestValueJSON(t *testing.T) {
	row := []Value{NullValue(), TextValue("x"), NumberValue("1.25"), BoolValue(false)}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `[null,"x",1.25,false]`, string(data))

	var back []Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back)

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestResultCheck(t *testing.T) {
	res := NewResult([]string{"a", "b"}, [][]Value{{TextValue("x"), NumberValue("2")}})
	assert.NoError(t, res.Check())

	bad := NewResult([]string{"a", "b"}, [][]Value{{TextValue("x")}})
	assert.Error(t, bad.Check())

	empty := NewResult([]string{"a"}, nil)
	assert.NoError(t, empty.Check())
	assert.Equal(t, 0, empty.RowCount)
}
