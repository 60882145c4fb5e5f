package generate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

func metadata() []Parameter {
	return []Parameter{
		{Schema: "dbo", Procedure: "order_create", Ordinal: 1, Name: "@customer_id", DataType: "int"},
		{Schema: "dbo", Procedure: "order_create", Ordinal: 2, Name: "@amount", DataType: "money"},
		{Schema: "dbo", Procedure: "order_create", Ordinal: 3, Name: "@order_id", DataType: "int", IsOutput: true},
		{Schema: "dbo", Procedure: "purge", Ordinal: 0},
		{Schema: "sales", Procedure: "tag", Ordinal: 1, Name: "@shape", DataType: "geography", IsOutput: true},
	}
}

func TestSkeletons(t *testing.T) {
	tests := Skeletons(metadata(), zaptest.NewLogger(t))
	require.Len(t, tests, 3)

	orders := tests[0]
	assert.Equal(t, "dbo.order_create", orders.Name)
	require.Len(t, orders.Steps, 1)
	step := orders.Steps[0]
	assert.Equal(t, "order_create", step.Name)
	assert.Equal(t, "dbo.order_create", step.Command.CommandText)
	assert.Equal(t, schema.Params{
		{Name: "customer_id", Value: "{customer_id}"},
		{Name: "amount", Value: "{amount}"},
	}, step.Command.Parameters)
	assert.Equal(t, map[string]any{"customer_id": nil, "amount": nil}, orders.Variables)
	require.NotNil(t, step.Results)
	assert.Equal(t, []schema.OutputParameter{{Name: "order_id", Type: sqltype.Int}}, step.Results.OutputParameters)

	purge := tests[1]
	assert.Equal(t, "dbo.purge", purge.Name)
	assert.Empty(t, purge.Steps[0].Command.Parameters)
	assert.Nil(t, purge.Steps[0].Results)

	tag := tests[2].Steps[0].Results.OutputParameters
	assert.Equal(t, []schema.OutputParameter{{Name: "shape", Type: sqltype.NVarChar}}, tag, "unmapped types fall back to NVarChar")
}

func TestMarshal_ValidatesAndRoundTrips(t *testing.T) {
	tests := Skeletons(metadata(), nil)
	data, err := Marshal(tests[0])
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "# yaml-language-server: $schema="+schema.SchemaURL+"\n"), text)

	loaded, err := schema.Load(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "dbo.order_create", loaded[0].Name)

	errs := schema.ValidateTests(loaded)
	assert.False(t, schema.HasErrors(errs), "skeleton must validate: %v", errs)
}

func TestNativeType(t *testing.T) {
	for name, want := range map[string]sqltype.Type{
		"bit":                      sqltype.Bit,
		"INT":                      sqltype.Int,
		"numeric":                  sqltype.Decimal,
		"character varying":        sqltype.NVarChar,
		"timestamp with time zone": sqltype.DateTimeOffset,
		"time":                     sqltype.Time,
	} {
		got, ok := NativeType(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	got, ok := NativeType("geography")
	assert.False(t, ok)
	assert.Equal(t, sqltype.NVarChar, got)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(nil, "sqlite3", t.TempDir(), nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

// sqliteGenerator serves metadata from a table shaped like the metadata
// queries' result.
func sqliteGenerator(t *testing.T, dir string) *Generator {
	t.Helper()
	pool, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(`CREATE TABLE meta (
		schema_name TEXT, procedure_name TEXT, ordinal INTEGER,
		parameter_name TEXT, data_type TEXT, is_output BOOLEAN)`)
	require.NoError(t, err)
	for _, p := range metadata() {
		_, err := pool.Exec(`INSERT INTO meta VALUES (?, ?, ?, ?, ?, ?)`,
			p.Schema, p.Procedure, p.Ordinal, p.Name, p.DataType, p.IsOutput)
		require.NoError(t, err)
	}
	return &Generator{
		DB:     sqlx.NewDb(pool, "sqlite3"),
		Dir:    dir,
		Logger: zaptest.NewLogger(t),
		query:  `SELECT * FROM meta ORDER BY schema_name, procedure_name, ordinal`,
	}
}

func TestRun_WritesOneFilePerProcedure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "defs")
	g := sqliteGenerator(t, dir)

	paths, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "dbo.order_create.yml"),
		filepath.Join(dir, "dbo.purge.yml"),
		filepath.Join(dir, "sales.tag.yml"),
	}, paths)

	loaded, err := schema.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestRun_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "dbo.purge.yml")
	require.NoError(t, os.WriteFile(existing, []byte("# hand edited\n"), 0o644))

	g := sqliteGenerator(t, dir)
	paths, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "# hand edited\n", string(data))

	g.Overwrite = true
	paths, err = g.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}
