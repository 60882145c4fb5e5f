package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/sprocket/pkg/report"
	"github.com/ormasoftchile/sprocket/pkg/runner"
)

func sampleRun() *runner.RunOutput {
	passing := report.New("Test: ping")
	step := passing.Add("Step: ping")
	step.Pass("Command: dbo.ping @who=world")
	passing.Summarize("ping")

	failing := report.New("Test: orders")
	before := failing.Add("Before scripts")
	before.Detail = "INSERT INTO orders VALUES (1)"
	before.Pass("OK")
	s := failing.Add("Step: create")
	s.Pass("Command: dbo.order_create @id=1")
	rs := s.Add("Result Sets").Add("created")
	rs.Failf("Rows: %d != %d", 2, 1)
	s.Add("Asserts").Error("SELECT total FROM orders", errors.New("invalid object name 'orders'"))
	failing.Summarize("orders")

	return &runner.RunOutput{
		RunID: "run-1",
		Results: []*runner.TestResult{
			{Name: "ping", Status: runner.StatusPassed, DurationMs: 3, Report: passing},
			{Name: "orders", Source: "defs/orders.yml", Status: runner.StatusError, DurationMs: 7, Report: failing},
			{Name: "later", Status: runner.StatusSkipped},
		},
		Summary: runner.Summary{Total: 3, Passed: 1, Errors: 1, Skipped: 1},
	}
}

func TestTree_NonVerbose(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tree(&buf, sampleRun(), Options{}))

	want := strings.Join([]string{
		"✓ Test: ping",
		"└── ✓ ping: OK",
		"! Test: orders",
		"├── ! Step: create",
		"│   ├── ✗ Result Sets",
		"│   │   └── ✗ created",
		"│   │       └── ✗ Rows: 2 != 1",
		"│   └── ! Asserts",
		"│       └── ! SELECT total FROM orders",
		"│             invalid object name 'orders'",
		"└── ✗ orders: KO!",
		"○ Test: later (skipped)",
		"3 tests: 1 passed, 0 failed, 1 errors, 1 skipped",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTree_VerboseShowsPassingAndScriptText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tree(&buf, sampleRun(), Options{Verbose: true}))

	out := buf.String()
	assert.Contains(t, out, "├── ✓ Step: ping")
	assert.Contains(t, out, "├── ✓ Before scripts\n│     INSERT INTO orders VALUES (1)\n│   └── ✓ OK")
	assert.Contains(t, out, "✓ Command: dbo.order_create @id=1")
}

func TestTree_MultiLineDetailUnpadded(t *testing.T) {
	n := report.New("Test: seed")
	g := n.Add("Before scripts")
	g.Detail = "INSERT INTO a VALUES (1)\nINSERT INTO a VALUES (2), (3), (4)"
	g.Pass("OK")
	n.Summarize("seed")
	run := &runner.RunOutput{
		Results: []*runner.TestResult{{Name: "seed", Status: runner.StatusPassed, Report: n}},
		Summary: runner.Summary{Total: 1, Passed: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, Tree(&buf, run, Options{Verbose: true}))
	want := strings.Join([]string{
		"✓ Test: seed",
		"├── ✓ Before scripts",
		"│     INSERT INTO a VALUES (1)",
		"│     INSERT INTO a VALUES (2), (3), (4)",
		"│   └── ✓ OK",
		"└── ✓ seed: OK",
		"1 tests: 1 passed, 0 failed, 0 errors",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTree_Truncates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tree(&buf, sampleRun(), Options{Verbose: true, Width: 30}))
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if strings.HasPrefix(line, "3 tests") {
			continue
		}
		assert.LessOrEqual(t, len([]rune(line)), 30, line)
	}
	assert.Contains(t, buf.String(), ellipsis)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 0))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "日…", truncate("日本語", 4), "wide runes count double")
}

func TestJSON_PrunesPerVerbosity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleRun(), Options{}))

	var decoded struct {
		RunID   string `json:"run_id"`
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Report *struct {
				Status   string            `json:"status"`
				Children []json.RawMessage `json:"children"`
			} `json:"report"`
		} `json:"results"`
		Summary runner.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Results, 3)
	assert.Len(t, decoded.Results[0].Report.Children, 1, "only the summary survives")
	assert.Equal(t, "error", decoded.Results[1].Report.Status)
	assert.Nil(t, decoded.Results[2].Report)
	assert.Equal(t, 1, decoded.Summary.Skipped)
}

func TestJSON_DoesNotMutateInput(t *testing.T) {
	run := sampleRun()
	before := len(run.Results[0].Report.Children)
	require.NoError(t, JSON(&bytes.Buffer{}, run, Options{}))
	assert.Equal(t, before, len(run.Results[0].Report.Children))
}

func TestMarkdownSource(t *testing.T) {
	md := MarkdownSource(sampleRun(), false)

	assert.Contains(t, md, "# Run `run-1`")
	assert.Contains(t, md, "| ping | ✓ passed | 3ms |")
	assert.Contains(t, md, "| later | ○ skipped | 0ms |")
	assert.Contains(t, md, "## orders\n\n_defs/orders.yml_\n")
	assert.Contains(t, md, "    - ✗ Rows: 2 != 1\n")
	assert.Contains(t, md, "`invalid object name 'orders'`")
	assert.NotContains(t, md, "## later")
}

func TestWrite(t *testing.T) {
	for _, f := range Formats() {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, f, sampleRun(), Options{Width: 80}), f)
		assert.Contains(t, buf.String(), "orders", f)
	}
	assert.Error(t, Write(&bytes.Buffer{}, "xml", sampleRun(), Options{}))
}
