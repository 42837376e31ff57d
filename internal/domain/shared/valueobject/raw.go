package valueobject

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawAmount is an amount exactly as it came out of storage or over the wire.
// It may hold a number, a numeric string, or garbage; SafeParseDecimal decides.
type RawAmount string

// AmountOf wraps a decimal as a RawAmount
func AmountOf(d decimal.Decimal) RawAmount {
	return RawAmount(d.String())
}

// AmountFromFloat wraps a float64 as a RawAmount
func AmountFromFloat(f float64) RawAmount {
	return RawAmount(strconv.FormatFloat(f, 'f', -1, 64))
}

// UnmarshalJSON accepts a JSON number, a string or null and never fails,
// so one malformed record cannot abort decoding of a whole snapshot.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	*a = RawAmount(rawJSONText(data))
	return nil
}

// MarshalJSON emits the raw text as a JSON string, or null when empty
func (a RawAmount) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

// Decimal leniently parses the amount and rounds it to cents
func (a RawAmount) Decimal() decimal.Decimal {
	return Round2(SafeParseDecimal(a))
}

// RawTime is a timestamp exactly as it came out of storage or over the wire.
type RawTime string

// TimeOf wraps a time.Time as a RawTime (RFC 3339 with nanoseconds)
func TimeOf(t time.Time) RawTime {
	if t.IsZero() {
		return ""
	}
	return RawTime(t.Format(time.RFC3339Nano))
}

// IsEmpty reports whether no timestamp was supplied at all
func (t RawTime) IsEmpty() bool {
	return strings.TrimSpace(string(t)) == ""
}

// UnmarshalJSON accepts a JSON string, a number (unix milliseconds) or null and never fails
func (t *RawTime) UnmarshalJSON(data []byte) error {
	*t = RawTime(rawJSONText(data))
	return nil
}

// MarshalJSON emits the raw text as a JSON string, or null when empty
func (t RawTime) MarshalJSON() ([]byte, error) {
	if t.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func rawJSONText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	}
	return string(data)
}

// Stored amounts are decimal(18,2), so at most 16 integer digits. Values
// outside these bounds are treated as unparsable: rounding 1e2000000000 to
// cents would build an integer with two billion digits.
const (
	MaxIntegerDigits  = 16
	MaxFractionDigits = 38
)

// InAmountRange reports whether d fits the amount bounds. It never rescales
// d, so it stays cheap for any exponent.
func InAmountRange(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp < -MaxFractionDigits {
		return false
	}
	return int64(d.NumDigits())+exp <= MaxIntegerDigits
}

// SafeParseDecimal converts a numeric or textual value to a decimal.
// It returns zero for nil, empty, non-finite, unparsable or out of range
// input and never panics.
func SafeParseDecimal(value any) decimal.Decimal {
	d := parseAny(value)
	if !InAmountRange(d) {
		return decimal.Zero
	}
	return d
}

func parseAny(value any) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case Money:
		return v.Amount()
	case RawAmount:
		return parseDecimalString(string(v))
	case string:
		return parseDecimalString(v)
	case []byte:
		return parseDecimalString(string(v))
	case json.Number:
		return parseDecimalString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(v)
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat32(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	case fmt.Stringer:
		return parseDecimalString(v.String())
	default:
		return decimal.Zero
	}
}

func parseDecimalString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// dateLayouts are tried in order for textual timestamps
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// SafeParseDate converts a timestamp-like value to a time.Time.
// Absent or unparsable input yields now. Numbers are unix milliseconds.
func SafeParseDate(value any, now time.Time) time.Time {
	t, ok := ParseDate(value)
	if !ok {
		return now
	}
	return t
}

// ParseDate is the reporting variant of SafeParseDate: ok is false when
// the value was absent or could not be parsed.
func ParseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case RawTime:
		return parseDateString(string(v))
	case string:
		return parseDateString(v)
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(v)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
