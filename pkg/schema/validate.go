package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/sprocket/pkg/sqltype"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // location, e.g. "[0].steps[1].results.resultSets[0]"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether errs contains anything other than warnings.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity != "warning" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full 3-phase validation pipeline on a definition file.
// Phase 1: Structural (strict YAML decode, unknown types rejected)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) ([]*Test, []*ValidationError) {
	tests, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(tests)...)
	for i, t := range tests {
		allErrors = append(allErrors, validateDomain(t, fmt.Sprintf("[%d]", i))...)
	}
	return tests, allErrors
}

// ValidatePath validates a single file or every definition file of a
// folder. Paths of errors found in a folder are prefixed with the file name.
func ValidatePath(path string) ([]*Test, []*ValidationError) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []*ValidationError{{Phase: "structural", Message: err.Error(), Severity: "error"}}
	}
	if !info.IsDir() {
		return ValidateFile(path)
	}
	files, err := ListDir(path)
	if err != nil {
		return nil, []*ValidationError{{Phase: "structural", Message: err.Error(), Severity: "error"}}
	}
	var tests []*Test
	var errs []*ValidationError
	for _, f := range files {
		ts, fileErrs := ValidateFile(f)
		for _, e := range fileErrs {
			e.Path = filepath.Base(f) + e.Path
		}
		tests = append(tests, ts...)
		errs = append(errs, fileErrs...)
	}
	return tests, errs
}

// ValidateTests runs the semantic and domain phases on already loaded tests.
func ValidateTests(tests []*Test) []*ValidationError {
	errs := validateSemantic(tests)
	for i, t := range tests {
		errs = append(errs, validateDomain(t, fmt.Sprintf("[%d]", i))...)
	}
	return errs
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Path:     "",
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// validateSemantic validates each test against the Test definition of the
// generated JSON Schema.
func validateSemantic(tests []*Test) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile(schemaResource + "#/$defs/Test")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	var errs []*ValidationError
	for i, t := range tests {
		data, err := json.Marshal(t)
		if err != nil {
			errs = append(errs, semanticError("marshal test %d for schema validation: %v", i, err)...)
			continue
		}
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			errs = append(errs, semanticError("unmarshal document: %v", err)...)
			continue
		}
		if err := sch.Validate(doc); err != nil {
			ve, ok := err.(*sjsonschema.ValidationError)
			if !ok {
				errs = append(errs, semanticError("%v", err)...)
				continue
			}
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     fmt.Sprintf("[%d]/%s", i, strings.Join(cause.InstanceLocation, "/")),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		}
	}
	return errs
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation of one test.
func ValidateDomain(t *Test) []*ValidationError {
	return validateDomain(t, "")
}

func validateDomain(t *Test, prefix string) []*ValidationError {
	var errs []*ValidationError
	add := func(path, severity, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     prefix + path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if strings.TrimSpace(t.Name) == "" {
		add(".name", "error", "test requires a name")
	}
	if len(t.Steps) == 0 {
		add(".steps", "error", "test %q must contain at least one step", t.Name)
	}

	validateScripts := func(path string, scripts Scripts) {
		for i, s := range scripts {
			p := fmt.Sprintf("%s[%d]", path, i)
			if len(s.Values) == 0 {
				add(p+".values", "warning", "script has no values")
			}
			if s.Type != ScriptFile {
				continue
			}
			for j, v := range s.Values {
				if _, err := os.Stat(resolve(t.Dir, v)); err != nil {
					add(fmt.Sprintf("%s.values[%d]", p, j), "error", "script file %q not found", v)
				}
			}
		}
	}
	validateScripts(".before", t.Before)
	validateScripts(".after", t.After)

	stepNames := make(map[string]int)
	for i, s := range t.Steps {
		sp := fmt.Sprintf(".steps[%d]", i)
		if prev, ok := stepNames[s.Name]; ok {
			add(sp+".name", "warning", "duplicate step name %q (first at steps[%d])", s.Name, prev)
		}
		stepNames[s.Name] = i

		if strings.TrimSpace(s.Command.CommandText) == "" {
			add(sp+".command.commandText", "error", "step %q requires a procedure name", s.Name)
		}

		if s.Results != nil {
			errs = append(errs, validateResults(t, s.Results, prefix+sp+".results")...)
		}

		for j, a := range s.Asserts {
			ap := fmt.Sprintf("%s.asserts[%d]", sp, j)
			if strings.TrimSpace(a.SQLQuery) == "" {
				add(ap+".sqlQuery", "error", "assert requires a query")
			}
			if a.ScalarValue == nil && a.Condition == "" {
				add(ap, "warning", "assert has neither scalarValue nor condition; only a non-null result is checked")
			}
			if a.ScalarValue != nil {
				if err := checkLiteral(a.ScalarType, *a.ScalarValue); err != nil {
					add(ap+".scalarValue", "error", "%v", err)
				}
			}
			if a.Condition != "" {
				if _, err := expr.Compile(a.Condition, expr.Env(map[string]any{"value": nil}), expr.AsBool()); err != nil {
					add(ap+".condition", "error", "invalid condition: %v", err)
				}
			}
		}
	}
	return errs
}

func validateResults(t *Test, r *Results, prefix string) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     prefix + path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}

	names := make(map[string]bool)
	for i, rs := range r.ResultSets {
		p := fmt.Sprintf(".resultSets[%d]", i)
		if names[rs.Name] {
			add(p+".name", "duplicate result set name %q", rs.Name)
		}
		names[rs.Name] = true
		if len(rs.Columns) == 0 {
			add(p+".columns", "result set %q declares no columns", rs.Name)
		}
		if rs.RowNumber != nil && *rs.RowNumber < 0 {
			add(p+".rowNumber", "row count must not be negative")
		}
		if rs.Data == nil {
			continue
		}
		lines, err := rs.Data.Lines(t.Dir)
		if err != nil {
			add(p+".data.file", "%v", err)
			continue
		}
		for j, line := range lines {
			if strings.Contains(line, "{") {
				continue
			}
			cells := rs.Data.Cells(line)
			if len(cells) != len(rs.Columns) {
				add(fmt.Sprintf("%s.data.rows[%d]", p, j), "row has %d cells, result set declares %d columns", len(cells), len(rs.Columns))
				continue
			}
			for k, cell := range cells {
				if err := checkLiteral(rs.Columns[k].Type, cell); err != nil {
					add(fmt.Sprintf("%s.data.rows[%d]", p, j), "column %s: %v", rs.Columns[k].Name, err)
				}
			}
		}
	}

	outNames := make(map[string]bool)
	for i, o := range r.OutputParameters {
		p := fmt.Sprintf(".outputParameters[%d]", i)
		if outNames[o.Name] {
			add(p+".name", "duplicate output parameter %q", o.Name)
		}
		outNames[o.Name] = true
		if o.Value != nil {
			if err := checkLiteral(o.Type, *o.Value); err != nil {
				add(p+".value", "%v", err)
			}
		}
	}
	return errs
}

// checkLiteral verifies that a literal expected value converts to its type.
// Values carrying {variable} placeholders are only known at run time.
func checkLiteral(t sqltype.Type, literal string) error {
	if strings.TrimSpace(literal) == sqltype.NullText || strings.Contains(literal, "{") {
		return nil
	}
	_, err := sqltype.Coerce(t, literal)
	return err
}
