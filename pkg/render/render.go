// Package render presents verdict trees as a terminal tree, markdown or JSON.
// Nothing here decides pass or fail; it only formats what the runner built.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ormasoftchile/sprocket/pkg/runner"
)

// Output formats.
const (
	FormatTree     = "tree"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Formats lists the accepted output formats.
func Formats() []string {
	return []string{FormatTree, FormatMarkdown, FormatJSON}
}

// Options control presentation.
type Options struct {
	Verbose bool // keep passing branches
	Width   int  // truncate tree labels / wrap markdown; 0 means unlimited
}

// Write renders out in the given format.
func Write(w io.Writer, format string, out *runner.RunOutput, opts Options) error {
	switch format {
	case FormatTree, "":
		return Tree(w, out, opts)
	case FormatMarkdown:
		return Markdown(w, out, opts)
	case FormatJSON:
		return JSON(w, out, opts)
	}
	return fmt.Errorf("unknown format %q", format)
}

// JSON writes the run output with each report pruned per opts.Verbose.
func JSON(w io.Writer, out *runner.RunOutput, opts Options) error {
	pruned := *out
	pruned.Results = make([]*runner.TestResult, len(out.Results))
	for i, r := range out.Results {
		cp := *r
		if r.Report != nil {
			cp.Report = r.Report.Prune(opts.Verbose)
		}
		pruned.Results[i] = &cp
	}
	data, err := json.MarshalIndent(pruned, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
