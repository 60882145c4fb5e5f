// Package dbconn is the database collaborator used by the script runner,
// the procedure executor and the assert evaluator. It wraps database/sql
// with one dialect per supported driver.
package dbconn

import (
	"context"
	"errors"

	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

var (
	// ErrCallUnsupported is returned by dialects that cannot invoke procedures.
	ErrCallUnsupported = errors.New("procedure calls not supported by driver")
	// ErrReturnCodeUnsupported is returned when a return code is requested
	// from a driver that has no notion of one.
	ErrReturnCodeUnsupported = errors.New("return code not supported by driver")
	// ErrNoSession is returned when no connector is configured.
	ErrNoSession = errors.New("no database connection configured")
)

// Connector opens sessions. One session is held for the lifetime of a test.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is a single database connection. Calls on one session are
// serialized by the caller.
type Session interface {
	BeginTx(ctx context.Context) (Tx, error)
	// Call invokes a stored procedure. Output destinations and the return
	// code are populated once the returned Rows is closed.
	Call(ctx context.Context, call *Call) (Rows, error)
	// QueryScalar returns the first column of the first row, or nil when the
	// query produced no rows or a null.
	QueryScalar(ctx context.Context, query string) (any, error)
	Close() error
}

// Tx is a transaction scoped to one script batch.
type Tx interface {
	ExecBatch(ctx context.Context, batch string) error
	Commit() error
	Rollback() error
}

// Rows is the subset of *sql.Rows the executor consumes.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	NextResultSet() bool
	Err() error
	Close() error
}

// NamedArg is an input parameter. A nil Value binds a database null.
type NamedArg struct {
	Name  string
	Value any
}

// OutputArg reserves an output slot. Dest is a scan destination, usually
// from sqltype.OutDest.
type OutputArg struct {
	Name string
	Type sqltype.Type
	Dest any
}

// Call describes one stored-procedure invocation.
type Call struct {
	Procedure string
	Args      []NamedArg
	Outputs   []OutputArg
	// ReturnCode, when non-nil, receives the procedure's return status.
	ReturnCode *int32
}
