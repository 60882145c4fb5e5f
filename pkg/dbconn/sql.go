package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	// Registered drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

// DefaultCallTimeout bounds every database call unless overridden.
const DefaultCallTimeout = 30 * time.Second

// Drivers lists the database/sql driver names sprocket can run against.
func Drivers() []string {
	return []string{"sqlserver", "pgx", "sqlite3"}
}

// DB is a Connector over a database/sql pool.
type DB struct {
	db          *sql.DB
	driver      string
	dialect     dialect
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithCallTimeout sets the deadline applied to each database call.
// Zero disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(db *DB) { db.callTimeout = d }
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// Open opens and pings a pool for driver and dsn.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	if _, err := dialectFor(driver); err != nil {
		return nil, err
	}
	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db := New(pool, driver, opts...)

	pingCtx, cancel := db.withDeadline(ctx)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// New wraps an already opened pool. Unknown drivers get a dialect that can
// run scripts and scalar queries but not procedure calls.
func New(pool *sql.DB, driver string, opts ...Option) *DB {
	d, err := dialectFor(driver)
	if err != nil {
		d = plainDialect{}
	}
	db := &DB{
		db:          pool,
		driver:      driver,
		dialect:     d,
		callTimeout: DefaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string { return db.driver }

// Pool exposes the underlying pool for metadata queries.
func (db *DB) Pool() *sql.DB { return db.db }

// Close closes the pool.
func (db *DB) Close() error { return db.db.Close() }

// Connect reserves a dedicated connection from the pool.
func (db *DB) Connect(ctx context.Context) (Session, error) {
	cctx, cancel := db.withDeadline(ctx)
	defer cancel()
	conn, err := db.db.Conn(cctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &session{db: db, conn: conn}, nil
}

func (db *DB) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.callTimeout)
}

type session struct {
	db   *DB
	conn *sql.Conn
}

func (s *session) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlTx{db: s.db, tx: tx}, nil
}

func (s *session) Call(ctx context.Context, call *Call) (Rows, error) {
	cctx, cancel := s.db.withDeadline(ctx)
	start := time.Now()
	rows, err := s.db.dialect.call(cctx, s.conn, call)
	s.db.logger.Debug("procedure call",
		zap.String("procedure", call.Procedure),
		zap.Int("args", len(call.Args)),
		zap.Int("outputs", len(call.Outputs)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	if err != nil {
		cancel()
		return nil, err
	}
	return &deadlineRows{Rows: rows, cancel: cancel}, nil
}

func (s *session) QueryScalar(ctx context.Context, query string) (any, error) {
	cctx, cancel := s.db.withDeadline(ctx)
	defer cancel()
	var v any
	err := s.conn.QueryRowContext(cctx, query).Scan(&v)
	s.db.logger.Debug("scalar query", zap.String("query", query), zap.Error(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

type sqlTx struct {
	db *DB
	tx *sql.Tx
}

func (t *sqlTx) ExecBatch(ctx context.Context, batch string) error {
	cctx, cancel := t.db.withDeadline(ctx)
	defer cancel()
	start := time.Now()
	_, err := t.tx.ExecContext(cctx, batch)
	t.db.logger.Debug("script batch",
		zap.Int("bytes", len(batch)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return err
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// deadlineRows releases the call deadline once the result stream is closed.
type deadlineRows struct {
	Rows
	cancel context.CancelFunc
}

func (r *deadlineRows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}
