package sqltype

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// NullText is the textual sentinel for a null value in definitions and reports.
const NullText = "NULL"

// Value is a scalar held in the native representation of its logical type.
// The zero Value is a null of no type.
type Value struct {
	Type Type
	Null bool
	v    any
}

// NullOf returns the null value of type t.
func NullOf(t Type) Value {
	return Value{Type: t, Null: true}
}

// Native returns the underlying Go value, or nil for null:
//
//	Bit                           bool
//	TinyInt SmallInt Int BigInt   int64
//	Float                         float64
//	Real                          float32
//	Decimal Money                 decimal.Decimal
//	NVarChar                      string
//	Date                          civil.Date
//	DateTime DateTime2            time.Time (wall clock, UTC location)
//	DateTimeOffset                time.Time
//	Time                          civil.Time
func (v Value) Native() any {
	if v.IsNull() {
		return nil
	}
	return v.v
}

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool {
	return v.Null || v.v == nil
}

// String renders the value for reports; null renders as NULL.
func (v Value) String() string {
	if v.IsNull() {
		return NullText
	}
	switch x := v.v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case decimal.Decimal:
		return x.String()
	case string:
		return x
	case civil.Date:
		return x.String()
	case civil.Time:
		return x.String()
	case time.Time:
		if v.Type == DateTimeOffset {
			return x.Format(time.RFC3339Nano)
		}
		return x.Format("2006-01-02 15:04:05.999999999")
	}
	return fmt.Sprint(v.v)
}

// Equal compares two values by their native representation. Two nulls are
// equal; a null never equals a non-null. Equal(a, b) == Equal(b, a).
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	switch x := a.v.(type) {
	case decimal.Decimal:
		y, ok := b.v.(decimal.Decimal)
		return ok && x.Equal(y)
	case time.Time:
		y, ok := b.v.(time.Time)
		return ok && x.Equal(y)
	case bool, int64, float64, float32, string, civil.Date, civil.Time:
		if reflect.TypeOf(a.v) != reflect.TypeOf(b.v) {
			return false
		}
		return a.v == b.v
	}
	return a.String() == b.String()
}

// Coerce converts raw into the native representation of t. A nil raw value,
// a typed nil pointer or an invalid sql.Null* wrapper yields the null of t.
// Strings are trimmed before numeric and temporal parsing.
func Coerce(t Type, raw any) (Value, error) {
	if !t.Valid() {
		return Value{}, fmt.Errorf("%w %d", ErrUnknownType, int(t))
	}
	raw = Unwrap(raw)
	if raw == nil {
		return NullOf(t), nil
	}
	if v, ok := raw.(Value); ok {
		if v.IsNull() {
			return NullOf(t), nil
		}
		if v.Type == t {
			return v, nil
		}
		raw = v.v
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	var (
		native any
		err    error
	)
	switch t {
	case Bit:
		native, err = toBool(raw)
	case TinyInt:
		native, err = toInt(raw, 0, math.MaxUint8)
	case SmallInt:
		native, err = toInt(raw, math.MinInt16, math.MaxInt16)
	case Int:
		native, err = toInt(raw, math.MinInt32, math.MaxInt32)
	case BigInt:
		native, err = toInt(raw, math.MinInt64, math.MaxInt64)
	case Float:
		native, err = toFloat(raw)
	case Real:
		var f float64
		f, err = toFloat(raw)
		native = float32(f)
	case Decimal, Money:
		native, err = toDecimal(raw)
	case NVarChar:
		native = toText(raw)
	case Date:
		native, err = toDate(raw)
	case DateTime, DateTime2:
		var ts time.Time
		ts, err = toTimestamp(raw)
		native = wallClock(ts)
	case DateTimeOffset:
		native, err = toTimestamp(raw)
	case Time:
		native, err = toTimeOfDay(raw)
	}
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v to %s: %v", ErrConversion, raw, t, err)
	}
	return Value{Type: t, v: native}, nil
}

// MustCoerce is like Coerce but panics on failure. Intended for tests and constants.
func MustCoerce(t Type, raw any) Value {
	v, err := Coerce(t, raw)
	if err != nil {
		panic(err)
	}
	return v
}

func toBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	if n, ok := asInt64(raw); ok {
		return n != 0, nil
	}
	return false, fmt.Errorf("unsupported %T", raw)
}

func toInt(raw any, lo, hi int64) (int64, error) {
	var n int64
	switch x := raw.(type) {
	case string:
		s := strings.TrimSpace(x)
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			d, derr := decimal.NewFromString(s)
			if derr != nil || !d.IsInteger() {
				return 0, err
			}
			parsed = d.IntPart()
		}
		n = parsed
	case bool:
		if x {
			n = 1
		}
	case float32, float64:
		f := reflect.ValueOf(x).Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		n = int64(f)
	case decimal.Decimal:
		if !x.IsInteger() {
			return 0, fmt.Errorf("%s is not an integer", x)
		}
		n = x.IntPart()
	default:
		v, ok := asInt64(raw)
		if !ok {
			return 0, fmt.Errorf("unsupported %T", raw)
		}
		n = v
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func asInt64(raw any) (int64, bool) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func toFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, nil
	}
	if n, ok := asInt64(raw); ok {
		return float64(n), nil
	}
	return 0, fmt.Errorf("unsupported %T", raw)
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch x := raw.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	}
	if n, ok := asInt64(raw); ok {
		return decimal.NewFromInt(n), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported %T", raw)
}

func toText(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(raw)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func toTimestamp(raw any) (time.Time, error) {
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case civil.Date:
		return x.In(time.UTC), nil
	case civil.DateTime:
		return x.In(time.UTC), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return time.Time{}, fmt.Errorf("unsupported %T", raw)
}

// wallClock drops the location while keeping the clock reading, so DateTime
// values compare on what the database stored rather than on an instant.
func wallClock(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
}

func toDate(raw any) (civil.Date, error) {
	switch x := raw.(type) {
	case civil.Date:
		return x, nil
	case civil.DateTime:
		return x.Date, nil
	case time.Time:
		return civil.DateOf(x), nil
	case string:
		s := strings.TrimSpace(x)
		if d, err := civil.ParseDate(s); err == nil {
			return d, nil
		}
		ts, err := toTimestamp(s)
		if err != nil {
			return civil.Date{}, err
		}
		return civil.DateOf(ts), nil
	}
	return civil.Date{}, fmt.Errorf("unsupported %T", raw)
}

func toTimeOfDay(raw any) (civil.Time, error) {
	switch x := raw.(type) {
	case civil.Time:
		return x, nil
	case civil.DateTime:
		return x.Time, nil
	case time.Time:
		return civil.TimeOf(x), nil
	case string:
		s := strings.TrimSpace(x)
		if t, err := civil.ParseTime(s); err == nil {
			return t, nil
		}
		if ts, err := time.Parse("15:04", s); err == nil {
			return civil.TimeOf(ts), nil
		}
		ts, err := toTimestamp(s)
		if err != nil {
			return civil.Time{}, err
		}
		return civil.TimeOf(ts), nil
	}
	return civil.Time{}, fmt.Errorf("unsupported %T", raw)
}
