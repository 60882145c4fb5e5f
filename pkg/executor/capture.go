package executor

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/sqltype"
	"github.com/ormasoftchile/sprocket/pkg/vars"
)

// Capture is a value-or-error produced while executing a step.
type Capture[T any] struct {
	Value T
	Err   error
}

// OK reports whether a value was captured without error.
func (c *Capture[T]) OK() bool {
	return c != nil && c.Err == nil
}

// Table is a materialized result set, one column per declared Column.
type Table struct {
	Name    string
	Columns []schema.Column
	Rows    [][]sqltype.Value
}

// Param is a bound input parameter after substitution.
type Param struct {
	Name  string
	Value any
}

// CommandCapture records the invocation. Err is set when the call itself failed.
type CommandCapture struct {
	Procedure string
	Params    []Param
	Err       error
}

// Rendered returns the call as "proc @a=1, @b=NULL".
func (c *CommandCapture) Rendered() string {
	if len(c.Params) == 0 {
		return c.Procedure
	}
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = fmt.Sprintf("@%s=%s", strings.TrimPrefix(p.Name, "@"), vars.Format(p.Value))
	}
	return c.Procedure + " " + strings.Join(parts, ", ")
}

// AssertCapture is the scalar read by one assert query.
type AssertCapture struct {
	Query string
	Capture[sqltype.Value]
}

// StepCapture is everything observed while running one step. Slices are
// aligned with the step's declarations; a nil ResultSets entry means the
// driver produced no result set at that position.
type StepCapture struct {
	Command    CommandCapture
	ResultSets []*Capture[*Table]
	Outputs    []*Capture[sqltype.Value]
	ReturnCode *Capture[int32]
	Asserts    []*AssertCapture
}
