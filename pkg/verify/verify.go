// Package verify compares a step's captured outcomes with its declared
// expectations and records one verdict per declared item in a report tree.
// A mismatch in one item never suppresses its siblings.
package verify

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"

	"github.com/ormasoftchile/sprocket/pkg/executor"
	"github.com/ormasoftchile/sprocket/pkg/report"
	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/sqltype"
	"github.com/ormasoftchile/sprocket/pkg/vars"
)

// Group labels.
const (
	LabelResultSets = "Result Sets"
	LabelOutputs    = "Output Parameters"
	LabelReturnCode = "Return Code"
	LabelAsserts    = "Asserts"
)

// Input is everything the verifier needs for one step.
type Input struct {
	Step    *schema.Step
	Capture *executor.StepCapture
	Vars    map[string]any
	BaseDir string // resolves data files
}

// Step builds the verdict subtree for one step.
func Step(in Input) *report.Node {
	node := report.New("Step: " + in.Step.Name)
	sc := in.Capture
	rendered := sc.Command.Rendered()

	// A failed call leaves nothing to compare.
	if sc.Command.Err != nil {
		node.Error("Command: "+rendered, sc.Command.Err)
		return node
	}
	node.Pass("Command: " + rendered)

	if r := in.Step.Results; r != nil {
		if r.ResultSets != nil {
			g := node.Add(LabelResultSets)
			for i, rs := range r.ResultSets {
				var c *executor.Capture[*executor.Table]
				if i < len(sc.ResultSets) {
					c = sc.ResultSets[i]
				}
				g.Append(ResultSet(rs, c, in.Vars, in.BaseDir))
			}
		}
		if r.OutputParameters != nil {
			g := node.Add(LabelOutputs)
			for i, o := range r.OutputParameters {
				var c *executor.Capture[sqltype.Value]
				if i < len(sc.Outputs) {
					c = sc.Outputs[i]
				}
				g.Append(OutputParameter(o, c, in.Vars))
			}
		}
		if r.ReturnCode != nil {
			node.Append(ReturnCode(*r.ReturnCode, sc.ReturnCode))
		}
	}

	if len(in.Step.Asserts) > 0 {
		g := node.Add(LabelAsserts)
		for i, a := range in.Step.Asserts {
			var c *executor.AssertCapture
			if i < len(sc.Asserts) {
				c = sc.Asserts[i]
			}
			g.Append(Assert(a, c, in.Vars))
		}
	}
	return node
}

// ResultSet checks one declared result set against its capture.
func ResultSet(rs schema.ResultSet, c *executor.Capture[*executor.Table], vs map[string]any, baseDir string) *report.Node {
	node := report.New(rs.Name)
	switch {
	case c == nil:
		node.Fail("Not found")
		return node
	case c.Err != nil:
		node.Error("Exception", c.Err)
		return node
	}
	t := c.Value

	if rs.RowNumber != nil && *rs.RowNumber != len(t.Rows) {
		node.Failf("Rows: %d != %d", len(t.Rows), *rs.RowNumber)
	}
	if rs.Data != nil {
		compareData(node, rs, t, vs, baseDir)
	}
	if node.Passed() {
		node.Pass("OK")
	}
	return node
}

func compareData(node *report.Node, rs schema.ResultSet, t *executor.Table, vs map[string]any, baseDir string) {
	lines, err := rs.Data.Lines(baseDir)
	if err != nil {
		node.Error("Data", err)
		return
	}
	for i, line := range lines {
		if i >= len(t.Rows) {
			node.Failf("Row %d: missing", i+1)
			continue
		}
		rowNode := node.Add(fmt.Sprintf("Row %d", i+1))
		cells := rs.Data.Cells(vars.Substitute(line, vs))
		if len(cells) != len(rs.Columns) {
			rowNode.Failf("Cells: %d != %d", len(cells), len(rs.Columns))
			continue
		}
		for j, col := range rs.Columns {
			actual := t.Rows[i][j]
			expected, err := expectedValue(col.Type, cells[j])
			if err != nil {
				rowNode.Error(col.Name, err)
				continue
			}
			if sqltype.Equal(actual, expected) {
				rowNode.Pass(fmt.Sprintf("%s: %s", col.Name, actual))
			} else {
				rowNode.Failf("%s: %s != %s", col.Name, actual, expected)
			}
		}
	}
	for i := len(lines); i < len(t.Rows); i++ {
		node.Failf("Row %d: unexpected", i+1)
	}
}

// OutputParameter checks one declared output parameter. A declared
// expected value is coerced and compared with the captured value.
func OutputParameter(o schema.OutputParameter, c *executor.Capture[sqltype.Value], vs map[string]any) *report.Node {
	node := report.New(o.Name)
	switch {
	case c == nil:
		node.Fail("Not found")
		return node
	case c.Err != nil:
		node.Error("Exception", c.Err)
		return node
	}
	actual := c.Value

	if o.Value == nil {
		if actual.IsNull() {
			node.Fail("Null output")
		} else {
			node.Pass(actual.String())
		}
		return node
	}

	expected, err := expectedValue(o.Type, vars.Substitute(*o.Value, vs))
	if err != nil {
		node.Error("Expected value", err)
		return node
	}
	if actual.IsNull() && !expected.IsNull() {
		node.Fail("Null output")
		return node
	}
	compare(node, actual, expected)
	return node
}

// ReturnCode checks the procedure's return status.
func ReturnCode(expected int, c *executor.Capture[int32]) *report.Node {
	node := report.New(LabelReturnCode)
	switch {
	case c == nil:
		node.Fail("Not found")
	case c.Err != nil:
		node.Error("Exception", c.Err)
	case int(c.Value) == expected:
		node.Pass(fmt.Sprintf("%d == %d", expected, c.Value))
	default:
		node.Failf("%d != %d", c.Value, expected)
	}
	return node
}

// Assert checks one scalar assert. A null scalar always fails.
func Assert(a schema.Assert, c *executor.AssertCapture, vs map[string]any) *report.Node {
	query := vars.Substitute(a.SQLQuery, vs)
	if c != nil {
		query = c.Query
	}
	node := report.New(query)

	expectedText := ""
	if a.ScalarValue != nil {
		expectedText = vars.Substitute(*a.ScalarValue, vs)
	}

	switch {
	case c == nil:
		node.Fail("Not executed")
		return node
	case c.Err != nil:
		node.Error("Exception", c.Err)
		return node
	case c.Value.IsNull():
		if expectedText == "" {
			expectedText = a.Condition
		}
		node.Failf("%s != %s", sqltype.NullText, expectedText)
		return node
	}

	if a.ScalarValue != nil {
		expected, err := expectedValue(a.ScalarType, expectedText)
		if err != nil {
			node.Error("Expected value", err)
		} else {
			compare(node, c.Value, expected)
		}
	}
	if a.Condition != "" {
		ok, err := EvalCondition(a.Condition, c.Value)
		switch {
		case err != nil:
			node.Error("Condition: "+a.Condition, err)
		case ok:
			node.Pass(fmt.Sprintf("%s (value = %s)", a.Condition, c.Value))
		default:
			node.Failf("%s (value = %s)", a.Condition, c.Value)
		}
	}
	if a.ScalarValue == nil && a.Condition == "" {
		node.Pass(c.Value.String())
	}
	return node
}

func compare(node *report.Node, actual, expected sqltype.Value) {
	if sqltype.Equal(actual, expected) {
		node.Pass(fmt.Sprintf("%s == %s", expected, actual))
	} else {
		node.Failf("%s != %s", actual, expected)
	}
}

// expectedValue coerces declared text; the NULL sentinel, spaces aside, is a
// null of t.
func expectedValue(t sqltype.Type, text string) (sqltype.Value, error) {
	if strings.TrimSpace(text) == sqltype.NullText {
		return sqltype.NullOf(t), nil
	}
	return sqltype.Coerce(t, text)
}

// EvalCondition evaluates a boolean expression with the scalar bound as value.
func EvalCondition(condition string, v sqltype.Value) (bool, error) {
	env := map[string]any{"value": exprValue(v)}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, _ := out.(bool)
	return b, nil
}

// exprValue maps native values onto the types the expression language
// compares natively.
func exprValue(v sqltype.Value) any {
	switch x := v.Native().(type) {
	case int64:
		return int(x)
	case float32:
		return float64(x)
	case decimal.Decimal:
		return x.InexactFloat64()
	case civil.Date, civil.Time:
		return v.String()
	default:
		return x
	}
}
