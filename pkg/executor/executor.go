// Package executor binds a step's command to a stored-procedure call and
// captures every declared result shape as data.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/sqltype"
	"github.com/ormasoftchile/sprocket/pkg/vars"
)

// Executor runs steps against one session.
type Executor struct {
	Session dbconn.Session
	Logger  *zap.Logger
}

// Run invokes the step's procedure and captures its result sets, output
// parameters, return code and assert scalars. Failures are recorded on the
// capture, never returned. When the call itself fails nothing else is
// captured.
func (e *Executor) Run(ctx context.Context, step *schema.Step, vs map[string]any) *StepCapture {
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sc := &StepCapture{Command: CommandCapture{Procedure: vars.Substitute(step.Command.CommandText, vs)}}

	call := &dbconn.Call{Procedure: sc.Command.Procedure}
	for _, p := range step.Command.Parameters {
		v := vars.Param(p.Value, vs)
		sc.Command.Params = append(sc.Command.Params, Param{Name: p.Name, Value: v})
		call.Args = append(call.Args, dbconn.NamedArg{Name: p.Name, Value: v})
	}

	res := step.Results
	if res == nil {
		res = &schema.Results{}
	}
	for _, o := range res.OutputParameters {
		call.Outputs = append(call.Outputs, dbconn.OutputArg{Name: o.Name, Type: o.Type, Dest: sqltype.OutDest(o.Type)})
	}
	var rc int32
	if res.ReturnCode != nil {
		call.ReturnCode = &rc
	}

	if e.Session == nil {
		sc.Command.Err = dbconn.ErrNoSession
		return sc
	}

	start := time.Now()
	rows, err := e.Session.Call(ctx, call)
	if err != nil {
		log.Warn("procedure call failed", zap.String("procedure", call.Procedure), zap.Error(err))
		sc.Command.Err = err
		return sc
	}

	sc.ResultSets = readResultSets(rows, res.ResultSets)
	closeErr := rows.Close()
	log.Debug("procedure completed",
		zap.String("procedure", call.Procedure),
		zap.Int("result_sets", len(sc.ResultSets)),
		zap.Duration("elapsed", time.Since(start)))

	for _, o := range call.Outputs {
		c := &Capture[sqltype.Value]{Err: closeErr}
		if closeErr == nil {
			c.Value, c.Err = sqltype.Coerce(o.Type, o.Dest)
		}
		sc.Outputs = append(sc.Outputs, c)
	}
	if call.ReturnCode != nil {
		sc.ReturnCode = &Capture[int32]{Value: rc, Err: closeErr}
	}

	for _, a := range step.Asserts {
		sc.Asserts = append(sc.Asserts, e.runAssert(ctx, a, vs))
	}
	return sc
}

func (e *Executor) runAssert(ctx context.Context, a schema.Assert, vs map[string]any) *AssertCapture {
	ac := &AssertCapture{Query: vars.Substitute(a.SQLQuery, vs)}
	raw, err := e.Session.QueryScalar(ctx, ac.Query)
	if err != nil {
		ac.Err = err
		return ac
	}
	ac.Value, ac.Err = sqltype.Coerce(a.ScalarType, raw)
	return ac
}

// readResultSets materializes each declared result set in driver order. A
// failure inside one result set is captured on it and the stream advances
// to the next.
func readResultSets(rows dbconn.Rows, declared []schema.ResultSet) []*Capture[*Table] {
	out := make([]*Capture[*Table], len(declared))
	for i, rs := range declared {
		if i > 0 && !rows.NextResultSet() {
			break
		}
		cols, err := rows.Columns()
		if err != nil {
			out[i] = &Capture[*Table]{Err: err}
			continue
		}
		if len(cols) == 0 {
			break
		}
		t, err := readTable(rows, rs, len(cols))
		out[i] = &Capture[*Table]{Value: t, Err: err}
	}
	return out
}

func readTable(rows dbconn.Rows, rs schema.ResultSet, width int) (*Table, error) {
	t := &Table{Name: rs.Name, Columns: rs.Columns}
	if width < len(rs.Columns) {
		drain(rows)
		return t, fmt.Errorf("result set has %d columns, %d declared", width, len(rs.Columns))
	}
	raw := make([]any, width)
	ptrs := make([]any, width)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			drain(rows)
			return t, err
		}
		row := make([]sqltype.Value, len(rs.Columns))
		for j, col := range rs.Columns {
			v, err := sqltype.Coerce(col.Type, raw[j])
			if err != nil {
				drain(rows)
				return t, fmt.Errorf("row %d column %s: %w", len(t.Rows)+1, col.Name, err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return t, err
	}
	return t, nil
}

func drain(rows dbconn.Rows) {
	for rows.Next() {
	}
}
