package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := Open(context.Background(), "sqlite3", dsn, WithLogger(zaptest.NewLogger(t)), WithCallTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestSession_BatchCommitAndScalar(t *testing.T) {
	ctx := context.Background()
	sess, err := openMemory(t).Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	tx, err := sess.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ExecBatch(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY);\nINSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2)"))
	require.NoError(t, tx.Commit())

	v, err := sess.QueryScalar(ctx, "SELECT COUNT(*) FROM t")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestSession_ScalarNoRowsIsNil(t *testing.T) {
	ctx := context.Background()
	sess, err := openMemory(t).Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	v, err := sess.QueryScalar(ctx, "SELECT 1 WHERE 1 = 0")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = sess.QueryScalar(ctx, "SELECT NULL")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSession_RollbackDiscardsBatch(t *testing.T) {
	ctx := context.Background()
	sess, err := openMemory(t).Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	tx, err := sess.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ExecBatch(ctx, "CREATE TABLE r (id INTEGER PRIMARY KEY)"))
	require.NoError(t, tx.Commit())

	tx, err = sess.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.ExecBatch(ctx, "INSERT INTO r VALUES (1); INSERT INTO r VALUES (1)")
	require.Error(t, err)
	require.NoError(t, tx.Rollback())

	v, err := sess.QueryScalar(ctx, "SELECT COUNT(*) FROM r")
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}

func TestSession_CallUnsupportedOnSQLite(t *testing.T) {
	ctx := context.Background()
	sess, err := openMemory(t).Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Call(ctx, &Call{Procedure: "p"})
	assert.True(t, errors.Is(err, ErrCallUnsupported))
}

func TestNew_UnknownDriverFallsBackToPlain(t *testing.T) {
	db := New(&sql.DB{}, "custom")
	assert.Equal(t, "custom", db.Driver())
	_, err := db.dialect.call(context.Background(), nil, &Call{})
	assert.ErrorIs(t, err, ErrCallUnsupported)
}

func TestAfterClose_RunsOnce(t *testing.T) {
	n := 0
	r := &afterClose{Rows: emptyRows{}, fn: func() { n++ }}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, n)
}

func TestPgxDialect_RejectsReturnCode(t *testing.T) {
	var rc int32
	_, err := pgxDialect{}.call(context.Background(), nil, &Call{Procedure: "p", ReturnCode: &rc})
	assert.ErrorIs(t, err, ErrReturnCodeUnsupported)
}
