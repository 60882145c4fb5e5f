package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/sprocket/pkg/report"
	"github.com/ormasoftchile/sprocket/pkg/runner"
)

// Status glyphs convey meaning without relying on color alone.
const (
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphError   = "!"
	GlyphSkipped = "○"
)

const ellipsis = "…"

// Tree connectors. Every connector is four cells wide.
const (
	branchMid  = "├── "
	branchLast = "└── "
	pipe       = "│   "
	space      = "    "
	connWidth  = 4
)

func enumerator(children tree.Children, i int) string {
	if i == children.Length()-1 {
		return branchLast
	}
	return branchMid
}

func indenter(children tree.Children, i int) string {
	if i == children.Length()-1 {
		return space
	}
	return pipe
}

type treeStyles struct {
	pass, fail, err, skip, detail, title, plain lipgloss.Style
}

func newTreeStyles(w io.Writer) treeStyles {
	r := lipgloss.NewRenderer(w)
	return treeStyles{
		pass:   r.NewStyle().Foreground(lipgloss.Color("42")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("196")),
		err:    r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		skip:   r.NewStyle().Faint(true),
		detail: r.NewStyle().Foreground(lipgloss.Color("240")),
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		plain:  r.NewStyle(),
	}
}

func (s treeStyles) status(st report.Status) (string, lipgloss.Style) {
	switch st {
	case report.Pass:
		return GlyphPassed, s.pass
	case report.Fail:
		return GlyphFailed, s.fail
	default:
		return GlyphError, s.err
	}
}

// Tree writes every test's verdict tree with box-drawing connectors followed
// by a one-line summary.
func Tree(w io.Writer, out *runner.RunOutput, opts Options) error {
	st := newTreeStyles(w)
	var b strings.Builder
	for _, res := range out.Results {
		if res.Status == runner.StatusSkipped || res.Report == nil {
			b.WriteString(st.skip.Render(GlyphSkipped+" Test: "+res.Name+" (skipped)") + "\n")
			continue
		}
		root := res.Report.Prune(opts.Verbose)
		glyph, style := st.status(root.Status())
		t := tree.Root(style.Render(glyph + " " + truncate(root.Label, opts.Width-2))).
			Enumerator(enumerator).
			Indenter(indenter).
			EnumeratorStyle(st.plain).
			ItemStyle(st.plain).
			RootStyle(st.plain)
		addChildren(t, st, root, 0, opts)
		b.WriteString(trimLines(t.String()) + "\n")
	}
	b.WriteString(st.title.Render(SummaryLine(out.Summary)) + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// addChildren mirrors n's children under t. depth counts the connectors in
// front of a child's label.
func addChildren(t *tree.Tree, st treeStyles, n *report.Node, depth int, opts Options) {
	indent := (depth + 1) * connWidth
	for _, c := range n.Children {
		label := item(st, c, indent, opts)
		if len(c.Children) == 0 {
			t.Child(label)
			continue
		}
		sub := tree.Root(label)
		addChildren(sub, st, c, depth+1, opts)
		t.Child(sub)
	}
}

// item renders one node's glyph, label and, where shown, its detail lines.
// Group details (rendered scripts) are noise unless asked for.
func item(st treeStyles, n *report.Node, indent int, opts Options) string {
	glyph, style := st.status(n.Status())
	lines := []string{style.Render(glyph + " " + truncate(n.Label, opts.Width-indent-2))}
	if n.Detail != "" && (n.IsLeaf() || opts.Verbose) {
		for _, line := range strings.Split(strings.TrimRight(n.Detail, "\n"), "\n") {
			lines = append(lines, "  "+st.detail.Render(truncate(line, opts.Width-indent-2)))
		}
	}
	return strings.Join(lines, "\n")
}

// trimLines drops the padding lipgloss adds to square off multi-line items.
func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to width display cells. A non-positive width leaves s
// unchanged.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

// SummaryLine is the closing line of a run.
func SummaryLine(s runner.Summary) string {
	line := fmt.Sprintf("%d tests: %d passed, %d failed, %d errors", s.Total, s.Passed, s.Failed, s.Errors)
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	return line
}
