package sqltype

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// --- Parse ---

func TestParse_CaseInsensitive(t *testing.T) {
	for _, name := range []string{"int", "INT", "Int", " iNt "} {
		got, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, Int, got)
	}
}

func TestParse_AllNamesRoundTrip(t *testing.T) {
	require.Len(t, All(), 15)
	for _, typ := range All() {
		got, err := Parse(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
}

func TestParse_Unknown(t *testing.T) {
	_, err := Parse("uniqueidentifier")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestType_UnmarshalYAMLRejectsUnknown(t *testing.T) {
	var out struct {
		Type Type `yaml:"type"`
	}
	err := yaml.Unmarshal([]byte("type: varbinary\n"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	require.NoError(t, yaml.Unmarshal([]byte("type: datetimeoffset\n"), &out))
	assert.Equal(t, DateTimeOffset, out.Type)
}

func TestType_JSONSchemaEnum(t *testing.T) {
	s := Type(0).JSONSchema()
	assert.Equal(t, "string", s.Type)
	assert.Len(t, s.Enum, 15)
	assert.Contains(t, s.Enum, "NVarChar")
}

// --- Coerce ---

func TestCoerce_IntFromStringAndNumber(t *testing.T) {
	fromText := MustCoerce(Int, "5")
	fromInt := MustCoerce(Int, 5)
	fromFloat := MustCoerce(Int, 5.0)
	assert.True(t, Equal(fromText, fromInt))
	assert.True(t, Equal(fromInt, fromFloat))
	assert.Equal(t, int64(5), fromText.Native())
}

func TestCoerce_IntegerRanges(t *testing.T) {
	_, err := Coerce(TinyInt, 256)
	assert.ErrorIs(t, err, ErrConversion)
	_, err = Coerce(TinyInt, -1)
	assert.ErrorIs(t, err, ErrConversion)
	_, err = Coerce(SmallInt, "40000")
	assert.ErrorIs(t, err, ErrConversion)
	_, err = Coerce(Int, 1.5)
	assert.ErrorIs(t, err, ErrConversion)

	v, err := Coerce(BigInt, "9223372036854775807")
	require.NoError(t, err)
	assert.Equal(t, "9223372036854775807", v.String())
}

func TestCoerce_Bit(t *testing.T) {
	assert.Equal(t, true, MustCoerce(Bit, "1").Native())
	assert.Equal(t, false, MustCoerce(Bit, "false").Native())
	assert.Equal(t, true, MustCoerce(Bit, int64(1)).Native())
	_, err := Coerce(Bit, "maybe")
	assert.ErrorIs(t, err, ErrConversion)
}

func TestCoerce_DecimalKeepsPrecision(t *testing.T) {
	a := MustCoerce(Money, "12.50")
	b := MustCoerce(Money, []byte("12.5000"))
	c := MustCoerce(Decimal, decimal.RequireFromString("12.5"))
	assert.True(t, Equal(a, b))
	assert.True(t, Equal(MustCoerce(Money, c), a))
	assert.False(t, Equal(a, MustCoerce(Money, "12.51")))
}

func TestCoerce_FloatAndReal(t *testing.T) {
	assert.True(t, Equal(MustCoerce(Float, "0.25"), MustCoerce(Float, 0.25)))
	r := MustCoerce(Real, 1.5)
	assert.Equal(t, float32(1.5), r.Native())
	assert.Equal(t, "1.5", r.String())
}

func TestCoerce_Temporal(t *testing.T) {
	d := MustCoerce(Date, "2024-02-29")
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, d.Native())
	assert.True(t, Equal(d, MustCoerce(Date, time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC))))

	loc := time.FixedZone("x", 3*3600)
	dt := MustCoerce(DateTime, time.Date(2024, 1, 2, 3, 4, 5, 0, loc))
	assert.True(t, Equal(dt, MustCoerce(DateTime, "2024-01-02 03:04:05")))

	off := MustCoerce(DateTimeOffset, "2024-01-02T03:04:05+03:00")
	assert.True(t, Equal(off, MustCoerce(DateTimeOffset, "2024-01-02T00:04:05Z")))

	tod := MustCoerce(Time, "07:30")
	assert.True(t, Equal(tod, MustCoerce(Time, "07:30:00")))
	assert.Equal(t, "07:30:00", tod.String())
}

func TestCoerce_NullForms(t *testing.T) {
	for _, raw := range []any{nil, &sql.NullInt64{}, sql.NullString{}, (*string)(nil)} {
		v, err := Coerce(Int, raw)
		require.NoError(t, err)
		assert.True(t, v.Null, "%T", raw)
		assert.Equal(t, "NULL", v.String())
		assert.Nil(t, v.Native())
	}
}

func TestCoerce_UnwrapsOutputDestinations(t *testing.T) {
	dest := OutDest(Int).(*sql.NullInt64)
	dest.Int64, dest.Valid = 5, true
	assert.True(t, Equal(MustCoerce(Int, dest), MustCoerce(Int, "5")))

	money := OutDest(Money).(*sql.NullString)
	money.String, money.Valid = "3.10", true
	assert.Equal(t, "3.1", MustCoerce(Money, money).String())
}

// --- Equal ---

func TestEqual_Symmetric(t *testing.T) {
	pairs := [][2]Value{
		{MustCoerce(Int, "5"), MustCoerce(Int, 5)},
		{MustCoerce(Int, "5"), MustCoerce(Int, 6)},
		{NullOf(Int), MustCoerce(Int, 0)},
		{NullOf(Int), NullOf(Int)},
		{MustCoerce(NVarChar, "a"), MustCoerce(NVarChar, "A")},
		{MustCoerce(Decimal, "1.0"), MustCoerce(Decimal, 1)},
		{MustCoerce(Int, 1), MustCoerce(Float, 1)},
	}
	for _, p := range pairs {
		assert.Equal(t, Equal(p[0], p[1]), Equal(p[1], p[0]), "%v vs %v", p[0], p[1])
	}
}

func TestEqual_NullSemantics(t *testing.T) {
	assert.True(t, Equal(NullOf(Int), NullOf(Int)))
	assert.False(t, Equal(NullOf(Int), MustCoerce(Int, 0)))
	assert.False(t, Equal(MustCoerce(NVarChar, ""), NullOf(NVarChar)))
}
