package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/dbconn/dbconntest"
	"github.com/ormasoftchile/sprocket/pkg/schema"
)

func inline(values ...string) schema.Script {
	return schema.Script{Type: schema.ScriptInline, Values: values}
}

func sqliteSession(t *testing.T) dbconn.Session {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := dbconn.Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sess, err := db.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	setup := &Runner{Session: sess}
	out := setup.Run(ctx, schema.Scripts{inline("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")}, nil, "")
	require.NoError(t, out.Err)
	return sess
}

func count(t *testing.T, sess dbconn.Session) int64 {
	t.Helper()
	v, err := sess.QueryScalar(context.Background(), "SELECT COUNT(*) FROM t")
	require.NoError(t, err)
	return v.(int64)
}

func TestRender_SubstitutesAndJoins(t *testing.T) {
	got, err := Render(schema.Scripts{
		inline("DELETE FROM t WHERE id = {id};", "  "),
		inline("INSERT INTO t VALUES ({id}, {name})"),
	}, map[string]any{"id": 7, "name": nil}, "")
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM t WHERE id = 7;\nINSERT INTO t VALUES (7, NULL)", got)
}

func TestRender_FileFragment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sql"), []byte("INSERT INTO t VALUES ({id}, 'x');\n"), 0644))
	got, err := Render(schema.Scripts{{Type: schema.ScriptFile, Values: []string{"seed.sql"}}}, map[string]any{"id": 1}, dir)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES (1, 'x')", got)
}

func TestRun_Commits(t *testing.T) {
	sess := sqliteSession(t)
	r := &Runner{Session: sess, Logger: zaptest.NewLogger(t)}

	out := r.Run(context.Background(), schema.Scripts{
		inline("INSERT INTO t VALUES ({id}, 'a')", "INSERT INTO t VALUES ({id} + 1, 'b')"),
	}, map[string]any{"id": 10}, "")

	require.True(t, out.OK(), "err: %v", out.Err)
	assert.False(t, out.Skipped)
	assert.Contains(t, out.Rendered, "VALUES (10, 'a')")
	assert.EqualValues(t, 2, count(t, sess))
}

func TestRun_RollsBackWholeBatchOnConstraintViolation(t *testing.T) {
	sess := sqliteSession(t)
	r := &Runner{Session: sess, Logger: zaptest.NewLogger(t)}

	out := r.Run(context.Background(), schema.Scripts{
		inline("INSERT INTO t VALUES (1, 'a')", "INSERT INTO t VALUES (1, 'dup')"),
	}, nil, "")

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "UNIQUE")
	assert.EqualValues(t, 0, count(t, sess), "first insert must be rolled back")
}

func TestRun_EmptyBatchIsSkipped(t *testing.T) {
	fake := dbconntest.NewSession()
	r := &Runner{Session: fake}

	out := r.Run(context.Background(), schema.Scripts{inline("", " ; ")}, nil, "")
	assert.True(t, out.Skipped)
	assert.True(t, out.OK())
	assert.Empty(t, fake.Committed)

	out = r.Run(context.Background(), nil, nil, "")
	assert.True(t, out.Skipped)
}

func TestRun_MissingFileNeverStartsTransaction(t *testing.T) {
	fake := dbconntest.NewSession()
	r := &Runner{Session: fake}
	out := r.Run(context.Background(), schema.Scripts{{Type: schema.ScriptFile, Values: []string{"missing.sql"}}}, nil, t.TempDir())
	require.Error(t, out.Err)
	assert.Empty(t, fake.Committed)
	assert.Empty(t, fake.RolledBack)
}

func TestRun_FakeRollbackRecorded(t *testing.T) {
	fake := dbconntest.NewSession()
	fake.ExecErr = func(string) error { return fmt.Errorf("constraint violation") }
	r := &Runner{Session: fake}

	out := r.Run(context.Background(), schema.Scripts{inline("INSERT x")}, nil, "")
	require.EqualError(t, out.Err, "constraint violation")
	assert.Empty(t, fake.Committed)
}
