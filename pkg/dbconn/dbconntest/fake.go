// Package dbconntest provides a scripted in-memory dbconn.Session for tests
// of components that call stored procedures.
package dbconntest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
)

// Result is the canned outcome of one procedure call.
type Result struct {
	// Sets holds the result sets in driver order; each is a list of rows.
	Sets [][][]any

	// SetErr fails iteration of the result set at the given index.
	SetErr map[int]error

	// Outputs maps output parameter names (without @) to raw values.
	Outputs map[string]any

	ReturnCode int32
}

// Session records every interaction and answers from canned data.
type Session struct {
	mu sync.Mutex

	// Procs maps procedure names to results. Unknown procedures fail.
	Procs map[string]*Result

	// CallErr fails calls to the named procedure.
	CallErr map[string]error

	// Scalars maps query text to a scalar value; ScalarErr to an error.
	Scalars   map[string]any
	ScalarErr map[string]error

	// ExecErr, if set, decides whether a script batch fails.
	ExecErr func(batch string) error

	Calls      []*dbconn.Call
	Queries    []string
	Committed  []string
	RolledBack []string
	Closed     bool
}

// NewSession returns an empty fake session.
func NewSession() *Session {
	return &Session{
		Procs:     map[string]*Result{},
		CallErr:   map[string]error{},
		Scalars:   map[string]any{},
		ScalarErr: map[string]error{},
	}
}

// Connector hands out the same session on every Connect.
type Connector struct {
	Session *Session
	Err     error
	Opened  int
}

func (c *Connector) Connect(ctx context.Context) (dbconn.Session, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.Opened++
	c.Session.mu.Lock()
	c.Session.Closed = false
	c.Session.mu.Unlock()
	return c.Session, nil
}

func (s *Session) BeginTx(ctx context.Context) (dbconn.Tx, error) {
	return &tx{s: s}, nil
}

func (s *Session) Call(ctx context.Context, call *dbconn.Call) (dbconn.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
	if err := s.CallErr[call.Procedure]; err != nil {
		return nil, err
	}
	res, ok := s.Procs[call.Procedure]
	if !ok {
		return nil, fmt.Errorf("could not find stored procedure '%s'", call.Procedure)
	}
	return &rows{res: res, call: call, set: 0, row: -1}, nil
}

func (s *Session) QueryScalar(ctx context.Context, query string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, query)
	if err := s.ScalarErr[query]; err != nil {
		return nil, err
	}
	return s.Scalars[query], nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

type tx struct {
	s       *Session
	batches []string
	failed  bool
}

func (t *tx) ExecBatch(ctx context.Context, batch string) error {
	if t.s.ExecErr != nil {
		if err := t.s.ExecErr(batch); err != nil {
			t.failed = true
			return err
		}
	}
	t.batches = append(t.batches, batch)
	return nil
}

func (t *tx) Commit() error {
	if t.failed {
		return errors.New("commit after failure")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.Committed = append(t.s.Committed, t.batches...)
	return nil
}

func (t *tx) Rollback() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.RolledBack = append(t.s.RolledBack, t.batches...)
	return nil
}

type rows struct {
	res    *Result
	call   *dbconn.Call
	set    int
	row    int
	err    error
	closed bool
}

func (r *rows) Columns() ([]string, error) {
	if r.set >= len(r.res.Sets) {
		return nil, nil
	}
	width := 1
	if set := r.res.Sets[r.set]; len(set) > 0 {
		width = len(set[0])
	}
	cols := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return cols, nil
}

func (r *rows) Next() bool {
	if r.set >= len(r.res.Sets) {
		return false
	}
	if err := r.res.SetErr[r.set]; err != nil {
		r.err = err
		return false
	}
	r.row++
	return r.row < len(r.res.Sets[r.set])
}

func (r *rows) Scan(dest ...any) error {
	data := r.res.Sets[r.set][r.row]
	if len(dest) != len(data) {
		return fmt.Errorf("sql: expected %d destination arguments in Scan, not %d", len(data), len(dest))
	}
	for i, d := range dest {
		p, ok := d.(*any)
		if !ok {
			return fmt.Errorf("unsupported destination %T", d)
		}
		*p = data[i]
	}
	return nil
}

func (r *rows) NextResultSet() bool {
	r.set++
	r.row = -1
	r.err = nil
	return r.set < len(r.res.Sets)
}

func (r *rows) Err() error { return r.err }

func (r *rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	for _, o := range r.call.Outputs {
		v, ok := r.res.Outputs[trimAt(o.Name)]
		if !ok {
			continue
		}
		if sc, ok := o.Dest.(sql.Scanner); ok {
			if err := sc.Scan(v); err != nil {
				return err
			}
		}
	}
	if r.call.ReturnCode != nil {
		*r.call.ReturnCode = r.res.ReturnCode
	}
	return nil
}

func trimAt(name string) string {
	if len(name) > 0 && name[0] == '@' {
		return name[1:]
	}
	return name
}
