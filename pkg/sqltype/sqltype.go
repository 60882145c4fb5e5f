// Package sqltype defines the closed set of logical column and parameter
// types used in test definitions and the coercion rules between declared
// text and the values returned by database drivers.
package sqltype

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Type is a logical scalar type, independent of any database's native names.
type Type int

const (
	Bit Type = iota + 1
	TinyInt
	SmallInt
	Int
	BigInt
	Float
	Real
	Decimal
	Money
	NVarChar
	Date
	DateTime
	DateTime2
	DateTimeOffset
	Time
)

var (
	// ErrUnknownType is returned when a type name is not one of the logical types.
	ErrUnknownType = errors.New("unknown type")
	// ErrConversion is returned when a value cannot be represented in a logical type.
	ErrConversion = errors.New("conversion failed")
)

var typeNames = map[Type]string{
	Bit:            "Bit",
	TinyInt:        "TinyInt",
	SmallInt:       "SmallInt",
	Int:            "Int",
	BigInt:         "BigInt",
	Float:          "Float",
	Real:           "Real",
	Decimal:        "Decimal",
	Money:          "Money",
	NVarChar:       "NVarChar",
	Date:           "Date",
	DateTime:       "DateTime",
	DateTime2:      "DateTime2",
	DateTimeOffset: "DateTimeOffset",
	Time:           "Time",
}

// All returns every logical type in declaration order.
func All() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := Bit; t <= Time; t++ {
		out = append(out, t)
	}
	return out
}

// Parse resolves a type name case-insensitively.
func Parse(name string) (Type, error) {
	n := strings.TrimSpace(name)
	for t, s := range typeNames {
		if strings.EqualFold(s, n) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownType, name)
}

// MustParse is like Parse but panics on an unknown name.
func MustParse(name string) Type {
	t, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Valid reports whether t is one of the logical types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsInteger reports whether t is one of the integer widths.
func (t Type) IsInteger() bool {
	switch t {
	case TinyInt, SmallInt, Int, BigInt:
		return true
	}
	return false
}

// IsTemporal reports whether t is a date, time or timestamp type.
func (t Type) IsTemporal() bool {
	switch t {
	case Date, DateTime, DateTime2, DateTimeOffset, Time:
		return true
	}
	return false
}

func (t Type) MarshalYAML() (interface{}, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w %d", ErrUnknownType, int(t))
	}
	return t.String(), nil
}

// UnmarshalYAML rejects unknown names so a bad definition fails at load time.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: type must be a string", node.Line)
	}
	parsed, err := Parse(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = parsed
	return nil
}

// MarshalJSON renders an unset Type as "" so schema validation can report it.
func (t Type) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return json.Marshal("")
	}
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// JSONSchema describes Type as a string enum for schema export.
func (Type) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        "string",
		Description: "Logical SQL type (case-insensitive in YAML)",
	}
	for _, t := range All() {
		s.Enum = append(s.Enum, t.String())
	}
	return s
}
