package sqltype

import (
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// OutDest returns a fresh scan destination suited to an output parameter of
// type t. The destination distinguishes null from the zero value.
func OutDest(t Type) any {
	switch t {
	case Bit:
		return &sql.NullBool{}
	case TinyInt, SmallInt, Int, BigInt:
		return &sql.NullInt64{}
	case Float, Real:
		return &sql.NullFloat64{}
	case Date, DateTime, DateTime2, DateTimeOffset, Time:
		return &sql.NullTime{}
	default:
		// Decimal and Money travel as text so no precision is lost in transit.
		return &sql.NullString{}
	}
}

// Unwrap dereferences scan destinations and driver.Valuer wrappers so the
// raw value can be coerced. Invalid sql.Null* values unwrap to nil.
func Unwrap(raw any) any {
	switch x := raw.(type) {
	case nil:
		return nil
	case *any:
		if x == nil {
			return nil
		}
		return Unwrap(*x)
	case *sql.NullBool:
		if x == nil || !x.Valid {
			return nil
		}
		return x.Bool
	case *sql.NullInt64:
		if x == nil || !x.Valid {
			return nil
		}
		return x.Int64
	case *sql.NullInt32:
		if x == nil || !x.Valid {
			return nil
		}
		return int64(x.Int32)
	case *sql.NullFloat64:
		if x == nil || !x.Valid {
			return nil
		}
		return x.Float64
	case *sql.NullString:
		if x == nil || !x.Valid {
			return nil
		}
		return x.String
	case *sql.NullTime:
		if x == nil || !x.Valid {
			return nil
		}
		return x.Time
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case Value, decimal.Decimal:
		return x
	case driver.Valuer:
		v, err := x.Value()
		if err != nil {
			return raw
		}
		return v
	}
	return raw
}
