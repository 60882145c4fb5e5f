package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

// dialect binds a Call to a driver's calling convention.
type dialect interface {
	call(ctx context.Context, conn *sql.Conn, c *Call) (Rows, error)
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlserver", "mssql":
		return mssqlDialect{}, nil
	case "pgx", "postgres":
		return pgxDialect{}, nil
	case "sqlite3":
		return plainDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q (supported: %s)", driver, strings.Join(Drivers(), ", "))
}

// mssqlDialect invokes the procedure as an RPC: a bare procedure name as the
// query text with named arguments.
type mssqlDialect struct{}

func (mssqlDialect) call(ctx context.Context, conn *sql.Conn, c *Call) (Rows, error) {
	args := make([]any, 0, len(c.Args)+len(c.Outputs)+1)
	for _, a := range c.Args {
		args = append(args, sql.Named(trimAt(a.Name), a.Value))
	}
	for _, o := range c.Outputs {
		args = append(args, sql.Named(trimAt(o.Name), sql.Out{Dest: o.Dest}))
	}
	var status mssql.ReturnStatus
	if c.ReturnCode != nil {
		args = append(args, &status)
	}
	rows, err := conn.QueryContext(ctx, c.Procedure, args...)
	if err != nil {
		return nil, err
	}
	if c.ReturnCode == nil {
		return rows, nil
	}
	// The return status arrives after the last result set.
	return &afterClose{Rows: rows, fn: func() { *c.ReturnCode = int32(status) }}, nil
}

// pgxDialect issues CALL with named notation. PostgreSQL procedures return
// no result sets; OUT and INOUT values come back as a single row.
type pgxDialect struct{}

func (pgxDialect) call(ctx context.Context, conn *sql.Conn, c *Call) (Rows, error) {
	if c.ReturnCode != nil {
		return nil, ErrReturnCodeUnsupported
	}
	var (
		parts []string
		args  []any
	)
	for _, a := range c.Args {
		args = append(args, a.Value)
		parts = append(parts, fmt.Sprintf("%s => $%d", trimAt(a.Name), len(args)))
	}
	for _, o := range c.Outputs {
		parts = append(parts, trimAt(o.Name)+" => NULL")
	}
	query := fmt.Sprintf("CALL %s(%s)", c.Procedure, strings.Join(parts, ", "))

	if len(c.Outputs) == 0 {
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
		return emptyRows{}, nil
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for _, o := range c.Outputs {
			for i, col := range cols {
				if !strings.EqualFold(col, trimAt(o.Name)) {
					continue
				}
				if sc, ok := o.Dest.(sql.Scanner); ok {
					if err := sc.Scan(vals[i]); err != nil {
						return nil, fmt.Errorf("output %s: %w", o.Name, err)
					}
				}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emptyRows{}, nil
}

// plainDialect has no procedure support.
type plainDialect struct{}

func (plainDialect) call(context.Context, *sql.Conn, *Call) (Rows, error) {
	return nil, ErrCallUnsupported
}

func trimAt(name string) string {
	return strings.TrimPrefix(name, "@")
}

type afterClose struct {
	Rows
	fn   func()
	done bool
}

func (r *afterClose) Close() error {
	err := r.Rows.Close()
	if !r.done {
		r.done = true
		r.fn()
	}
	return err
}

type emptyRows struct{}

func (emptyRows) Columns() ([]string, error) { return nil, nil }
func (emptyRows) Next() bool                 { return false }
func (emptyRows) Scan(...any) error          { return sql.ErrNoRows }
func (emptyRows) NextResultSet() bool        { return false }
func (emptyRows) Err() error                 { return nil }
func (emptyRows) Close() error               { return nil }
