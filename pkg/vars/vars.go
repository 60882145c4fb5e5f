// Package vars implements {name} placeholder substitution for script bodies,
// assert queries, expected scalars and command parameter values.
package vars

import (
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

// Null is the text a nil variable renders to. A parameter value that renders
// to exactly this text is bound as a database null.
const Null = sqltype.NullText

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

// Substitute replaces every {name} whose name is a key of vars with the
// variable's textual form. Names absent from vars are left as written.
// The replacement is single-pass: text produced by a variable is never
// scanned again. No quoting or escaping is applied.
//
// Example: Substitute("SELECT * FROM t WHERE id={id}", {"id": 42}) → "SELECT * FROM t WHERE id=42"
func Substitute(text string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return Format(v)
	})
}

// Param substitutes a declared parameter value. Strings are substituted and
// the Null sentinel becomes nil; other values pass through unchanged.
func Param(value any, vars map[string]any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	out := Substitute(s, vars)
	if out == Null {
		return nil
	}
	return out
}

// Format renders a variable value as text. nil renders as Null.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999999")
	case sqltype.Value:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Merge returns a copy of base with overrides applied on top.
func Merge(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	maps.Copy(out, base)
	maps.Copy(out, overrides)
	return out
}

// ParseAssignments parses key=value pairs as given on the command line.
func ParseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
