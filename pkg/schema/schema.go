// Package schema defines the Go struct types for sprocket test definitions
// and provides strict YAML parsing.
package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

// Test is one verification scenario: fixture scripts around an ordered list
// of procedure steps, plus the variables substituted into them.
type Test struct {
	Name      string         `yaml:"name"                json:"name"                jsonschema:"required,minLength=1"`
	Before    Scripts        `yaml:"before,omitempty"    json:"before,omitempty"`
	Steps     []Step         `yaml:"steps,omitempty"     json:"steps,omitempty"     jsonschema:"required"`
	After     Scripts        `yaml:"after,omitempty"     json:"after,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Source is the file the test was loaded from; Dir resolves relative
	// script and data file references.
	Source string `yaml:"-" json:"-"`
	Dir    string `yaml:"-" json:"-"`
}

// Step is a single procedure invocation and what it is expected to produce.
type Step struct {
	Name    string   `yaml:"name"              json:"name"              jsonschema:"required"`
	Command Command  `yaml:"command"           json:"command"           jsonschema:"required"`
	Results *Results `yaml:"results,omitempty" json:"results,omitempty"`
	Asserts []Assert `yaml:"asserts,omitempty" json:"asserts,omitempty"`
}

// Command names the procedure and its input parameters.
type Command struct {
	CommandText string `yaml:"commandText"          json:"commandText"          jsonschema:"required,minLength=1"`
	Parameters  Params `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Results groups the expectations of a step. Every field is independently
// optional: an absent field is not checked.
type Results struct {
	ResultSets       []ResultSet       `yaml:"resultSets,omitempty"       json:"resultSets,omitempty"`
	OutputParameters []OutputParameter `yaml:"outputParameters,omitempty" json:"outputParameters,omitempty"`
	ReturnCode       *int              `yaml:"returnCode,omitempty"       json:"returnCode,omitempty"`
}

// ResultSet declares the shape of one result set, correlated by position
// in the driver's result sequence and reported by Name.
type ResultSet struct {
	Name      string   `yaml:"name"                json:"name"                jsonschema:"required"`
	Columns   []Column `yaml:"columns"             json:"columns"             jsonschema:"required"`
	RowNumber *int     `yaml:"rowNumber,omitempty" json:"rowNumber,omitempty" jsonschema:"minimum=0"`
	Data      *Data    `yaml:"data,omitempty"      json:"data,omitempty"`
}

// Column is a typed column of a result set.
type Column struct {
	Name string       `yaml:"name" json:"name" jsonschema:"required"`
	Type sqltype.Type `yaml:"type" json:"type" jsonschema:"required"`
}

// DefaultSeparator splits expected data rows into cells.
const DefaultSeparator = ";"

// Data is literal expected row content. Each row is one line of cells joined
// by Separator; the text NULL denotes a null cell. Rows from File follow the
// inline Rows.
type Data struct {
	Separator string   `yaml:"separator,omitempty" json:"separator,omitempty"`
	Rows      []string `yaml:"rows,omitempty"      json:"rows,omitempty"`
	File      string   `yaml:"file,omitempty"      json:"file,omitempty"`
}

// Sep returns the cell separator.
func (d *Data) Sep() string {
	if d == nil || d.Separator == "" {
		return DefaultSeparator
	}
	return d.Separator
}

// Cells splits one expected row on the separator. Surrounding whitespace is
// trimmed from every cell, string cells included.
func (d *Data) Cells(line string) []string {
	cells := strings.Split(line, d.Sep())
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// Lines returns the expected rows, reading File relative to baseDir.
// Blank lines in the file are skipped.
func (d *Data) Lines(baseDir string) ([]string, error) {
	if d == nil {
		return nil, nil
	}
	lines := slices.Clone(d.Rows)
	if d.File == "" {
		return lines, nil
	}
	raw, err := os.ReadFile(resolve(baseDir, d.File))
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	for _, l := range strings.Split(string(raw), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// OutputParameter declares an output slot and, optionally, its expected value.
type OutputParameter struct {
	Name  string       `yaml:"name"            json:"name"            jsonschema:"required"`
	Type  sqltype.Type `yaml:"type"            json:"type"            jsonschema:"required"`
	Value *string      `yaml:"value,omitempty" json:"value,omitempty"`
}

// Assert is a scalar query checked after the step's procedure ran.
// ScalarValue is compared after coercion to ScalarType; Condition, when set,
// is an expression over the scalar bound as value.
type Assert struct {
	SQLQuery    string       `yaml:"sqlQuery"              json:"sqlQuery"              jsonschema:"required,minLength=1"`
	ScalarType  sqltype.Type `yaml:"scalarType"            json:"scalarType"            jsonschema:"required"`
	ScalarValue *string      `yaml:"scalarValue,omitempty" json:"scalarValue,omitempty"`
	Condition   string       `yaml:"condition,omitempty"   json:"condition,omitempty"`
}

// LoadFile reads a definition file: a YAML list of tests, or a single test
// mapping. Unknown fields and unknown types are rejected.
func LoadFile(path string) ([]*Test, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definition: %w", err)
	}
	defer f.Close()
	tests, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, t := range tests {
		t.Source = path
		t.Dir = dir
	}
	return tests, nil
}

// Load parses definitions from r with strict field checking.
func Load(r io.Reader) ([]*Test, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if len(probe.Content) == 0 {
		return nil, fmt.Errorf("empty definition")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	switch probe.Content[0].Kind {
	case yaml.SequenceNode:
		var tests []*Test
		if err := dec.Decode(&tests); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		return tests, nil
	case yaml.MappingNode:
		var t Test
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		return []*Test{&t}, nil
	}
	return nil, fmt.Errorf("definition must be a list of tests or a single test")
}

// IsDefinitionFile reports whether path has a definition file extension.
func IsDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// ListDir returns the definition files directly inside dir, sorted by name.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsDefinitionFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// LoadDir loads every definition file in dir. Files are parsed concurrently;
// the result keeps file name order, then declaration order within a file.
func LoadDir(ctx context.Context, dir string) ([]*Test, error) {
	files, err := ListDir(dir)
	if err != nil {
		return nil, err
	}
	perFile := make([][]*Test, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range files {
		g.Go(func() error {
			tests, err := LoadFile(path)
			if err != nil {
				return err
			}
			perFile[i] = tests
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []*Test
	for _, tests := range perFile {
		all = append(all, tests...)
	}
	return all, nil
}

// LoadPath loads a single file or every file of a folder.
func LoadPath(ctx context.Context, path string) ([]*Test, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(ctx, path)
	}
	return LoadFile(path)
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
