package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/sprocket/pkg/report"
	"github.com/ormasoftchile/sprocket/pkg/runner"
)

// MarkdownSource builds the markdown report: a summary table followed by one
// section per test with its verdict tree as a nested list.
func MarkdownSource(out *runner.RunOutput, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run `%s`\n\n", out.RunID)
	b.WriteString(SummaryLine(out.Summary) + "\n\n")

	b.WriteString("| Test | Status | Duration |\n|---|---|---|\n")
	for _, r := range out.Results {
		fmt.Fprintf(&b, "| %s | %s %s | %dms |\n", escapeCell(r.Name), resultGlyph(r.Status), r.Status, r.DurationMs)
	}

	for _, r := range out.Results {
		if r.Report == nil {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", r.Name)
		if r.Source != "" {
			fmt.Fprintf(&b, "_%s_\n\n", r.Source)
		}
		root := r.Report.Prune(verbose)
		for _, c := range root.Children {
			writeItem(&b, c, 0)
		}
	}
	return b.String()
}

func writeItem(b *strings.Builder, n *report.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s- %s %s\n", indent, nodeGlyph(n.Status()), escapeInline(n.Label))
	if n.Detail != "" && n.IsLeaf() {
		fmt.Fprintf(b, "%s  `%s`\n", indent, strings.ReplaceAll(n.Detail, "`", "'"))
	}
	for _, c := range n.Children {
		writeItem(b, c, depth+1)
	}
}

// Markdown writes the markdown report rendered for the terminal.
func Markdown(w io.Writer, out *runner.RunOutput, opts Options) error {
	md := MarkdownSource(out, opts.Verbose)
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(opts.Width),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func nodeGlyph(s report.Status) string {
	switch s {
	case report.Pass:
		return GlyphPassed
	case report.Fail:
		return GlyphFailed
	}
	return GlyphError
}

func resultGlyph(status string) string {
	switch status {
	case runner.StatusPassed:
		return GlyphPassed
	case runner.StatusFailed:
		return GlyphFailed
	case runner.StatusSkipped:
		return GlyphSkipped
	}
	return GlyphError
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}

func escapeInline(s string) string {
	r := strings.NewReplacer("*", `\*`, "_", `\_`, "`", `\`+"`", "<", `\<`)
	return r.Replace(s)
}
