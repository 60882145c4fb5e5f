package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScriptKind tells how the values of a Script are obtained.
type ScriptKind string

const (
	ScriptInline ScriptKind = "inline"
	ScriptFile   ScriptKind = "file"
)

// Scripts is an ordered batch of fragments run in one transaction.
type Scripts []Script

// Script is a group of fragments: literal SQL text, or paths of files whose
// contents are read verbatim. A bare string in YAML is an inline fragment.
type Script struct {
	Type   ScriptKind `yaml:"type"   json:"type"   jsonschema:"required,enum=inline,enum=file"`
	Values []string   `yaml:"values" json:"values" jsonschema:"required"`
}

var scriptKeys = map[string]bool{"type": true, "values": true}

func (s *Script) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Script{Type: ScriptInline, Values: []string{node.Value}}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if k := node.Content[i]; !scriptKeys[k.Value] {
				return fmt.Errorf("line %d: field %s not found in type schema.Script", k.Line, k.Value)
			}
		}
		type plain Script
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		if p.Type == "" {
			p.Type = ScriptInline
		}
		if p.Type != ScriptInline && p.Type != ScriptFile {
			return fmt.Errorf("line %d: script type %q must be inline or file", node.Line, p.Type)
		}
		*s = Script(p)
		return nil
	}
	return fmt.Errorf("line %d: script must be a string or a mapping", node.Line)
}

// Fragments returns the script's SQL text, one entry per value. File values
// are read relative to baseDir.
func (s Script) Fragments(baseDir string) ([]string, error) {
	if s.Type != ScriptFile {
		return s.Values, nil
	}
	out := make([]string, 0, len(s.Values))
	for _, p := range s.Values {
		raw, err := os.ReadFile(resolve(baseDir, p))
		if err != nil {
			return nil, fmt.Errorf("read script file: %w", err)
		}
		out = append(out, string(raw))
	}
	return out, nil
}
