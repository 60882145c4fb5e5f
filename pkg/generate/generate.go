// Package generate introspects stored-procedure metadata and writes skeleton
// test definitions, one file per procedure.
package generate

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

// ErrUnsupported is returned for drivers without procedure metadata.
var ErrUnsupported = errors.New("procedure metadata not available for driver")

// Parameter is one row of procedure metadata. Procedures without parameters
// yield a single row with an empty Name.
type Parameter struct {
	Schema    string `db:"schema_name"`
	Procedure string `db:"procedure_name"`
	Ordinal   int    `db:"ordinal"`
	Name      string `db:"parameter_name"`
	DataType  string `db:"data_type"`
	IsOutput  bool   `db:"is_output"`
}

const mssqlQuery = `
SELECT
    SCHEMA_NAME(o.schema_id) AS schema_name,
    o.name AS procedure_name,
    COALESCE(p.parameter_id, 0) AS ordinal,
    COALESCE(p.name, '') AS parameter_name,
    COALESCE(TYPE_NAME(p.user_type_id), '') AS data_type,
    COALESCE(p.is_output, 0) AS is_output
FROM sys.objects AS o
LEFT JOIN sys.parameters AS p ON o.object_id = p.object_id
WHERE o.type = 'P'
ORDER BY schema_name, o.name, ordinal`

const pgQuery = `
SELECT
    r.specific_schema AS schema_name,
    r.routine_name AS procedure_name,
    COALESCE(p.ordinal_position, 0)::int AS ordinal,
    COALESCE(p.parameter_name, '') AS parameter_name,
    COALESCE(p.data_type, '') AS data_type,
    COALESCE(p.parameter_mode IN ('OUT', 'INOUT'), false) AS is_output
FROM information_schema.routines AS r
LEFT JOIN information_schema.parameters AS p
    ON p.specific_schema = r.specific_schema AND p.specific_name = r.specific_name
WHERE r.routine_type = 'PROCEDURE'
  AND r.specific_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY schema_name, procedure_name, ordinal`

// Generator writes skeletons for every procedure visible on a connection.
type Generator struct {
	DB        *sqlx.DB
	Dir       string
	Overwrite bool
	Logger    *zap.Logger

	query string
}

// New returns a generator over pool writing into dir.
func New(pool *sql.DB, driver, dir string, logger *zap.Logger) (*Generator, error) {
	q, err := queryFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{DB: sqlx.NewDb(pool, driver), Dir: dir, Logger: logger, query: q}, nil
}

func queryFor(driver string) (string, error) {
	switch driver {
	case "sqlserver", "mssql":
		return mssqlQuery, nil
	case "pgx", "postgres":
		return pgQuery, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupported, driver)
}

// Parameters reads procedure metadata ordered by schema, procedure and
// parameter position.
func (g *Generator) Parameters(ctx context.Context) ([]Parameter, error) {
	var params []Parameter
	if err := g.DB.SelectContext(ctx, &params, g.query); err != nil {
		return nil, fmt.Errorf("query procedure metadata: %w", err)
	}
	return params, nil
}

// Run writes one skeleton per procedure and returns the written paths.
// Existing files are left alone unless Overwrite is set.
func (g *Generator) Run(ctx context.Context) ([]string, error) {
	params, err := g.Parameters(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var written []string
	for _, t := range Skeletons(params, g.Logger) {
		path := filepath.Join(g.Dir, FileName(t))
		if !g.Overwrite {
			if _, err := os.Stat(path); err == nil {
				g.Logger.Info("skeleton exists, skipped", zap.String("path", path))
				continue
			}
		}
		data, err := Marshal(t)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// Skeletons groups metadata rows into one test per procedure. Input
// parameters are bound to variables of the same name, which default to
// NULL; output parameters are declared without an expected value.
func Skeletons(params []Parameter, logger *zap.Logger) []*schema.Test {
	if logger == nil {
		logger = zap.NewNop()
	}
	var tests []*schema.Test
	var cur *schema.Test
	for _, p := range params {
		name := p.Schema + "." + p.Procedure
		if cur == nil || cur.Name != name {
			cur = &schema.Test{
				Name: name,
				Steps: []schema.Step{{
					Name:    p.Procedure,
					Command: schema.Command{CommandText: name},
				}},
			}
			tests = append(tests, cur)
		}
		if p.Name == "" {
			continue
		}

		pname := strings.TrimPrefix(p.Name, "@")
		step := &cur.Steps[0]
		if p.IsOutput {
			typ, ok := NativeType(p.DataType)
			if !ok {
				logger.Warn("unmapped parameter type, using NVarChar",
					zap.String("procedure", name),
					zap.String("parameter", pname),
					zap.String("type", p.DataType))
			}
			if step.Results == nil {
				step.Results = &schema.Results{}
			}
			step.Results.OutputParameters = append(step.Results.OutputParameters,
				schema.OutputParameter{Name: pname, Type: typ})
			continue
		}
		step.Command.Parameters = append(step.Command.Parameters, schema.Param{Name: pname, Value: "{" + pname + "}"})
		if cur.Variables == nil {
			cur.Variables = map[string]any{}
		}
		cur.Variables[pname] = nil
	}
	return tests
}

// FileName is the skeleton file name for a test: <schema>.<procedure>.yml.
func FileName(t *schema.Test) string {
	return t.Name + ".yml"
}

// Marshal renders a test as a definition file with a schema header so
// editors can validate it.
func Marshal(t *schema.Test) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# yaml-language-server: $schema=%s\n", schema.SchemaURL)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode([]*schema.Test{t}); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NativeType maps a database type name to a logical type. Unknown names map
// to NVarChar and report false.
func NativeType(name string) (sqltype.Type, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bit", "boolean":
		return sqltype.Bit, true
	case "tinyint":
		return sqltype.TinyInt, true
	case "smallint":
		return sqltype.SmallInt, true
	case "int", "integer":
		return sqltype.Int, true
	case "bigint":
		return sqltype.BigInt, true
	case "float", "double precision":
		return sqltype.Float, true
	case "real":
		return sqltype.Real, true
	case "decimal", "numeric":
		return sqltype.Decimal, true
	case "money", "smallmoney":
		return sqltype.Money, true
	case "nvarchar", "varchar", "nchar", "char", "text", "ntext",
		"character varying", "character", "uniqueidentifier", "uuid":
		return sqltype.NVarChar, true
	case "date":
		return sqltype.Date, true
	case "datetime", "smalldatetime":
		return sqltype.DateTime, true
	case "datetime2", "timestamp without time zone":
		return sqltype.DateTime2, true
	case "datetimeoffset", "timestamp with time zone":
		return sqltype.DateTimeOffset, true
	case "time", "time without time zone":
		return sqltype.Time, true
	}
	return sqltype.NVarChar, false
}
