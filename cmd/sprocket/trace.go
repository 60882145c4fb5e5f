package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/sprocket/pkg/trace"
)

var traceRunID string

var traceShowCmd = &cobra.Command{
	Use:   "show <trace.jsonl>",
	Short: "Summarize the runs recorded in a trace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceShow,
}

func runTraceShow(cmd *cobra.Command, args []string) error {
	events, err := readTraceFile(args[0])
	if err != nil {
		return err
	}
	shown := showTrace(cmd.OutOrStdout(), events, traceRunID)
	if shown == 0 {
		if traceRunID != "" {
			return fmt.Errorf("run %s not found in %s", traceRunID, args[0])
		}
		return fmt.Errorf("no runs recorded in %s", args[0])
	}
	return nil
}

// showTrace prints one block per run, optionally restricted to runID, and
// returns how many runs it printed.
func showTrace(w io.Writer, events []trace.Event, runID string) int {
	runs := 0
	for _, e := range events {
		if runID != "" && e.RunID != runID {
			continue
		}
		switch e.Type {
		case trace.EventRunStart:
			runs++
			fmt.Fprintf(w, "Run %s  %s  driver=%v tests=%v\n", e.RunID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Data["driver"], e.Data["tests"])
		case trace.EventTestComplete:
			fmt.Fprintf(w, "  %s %v (%v)\n", statusGlyph(fmt.Sprint(e.Data["status"])), e.Data["test"], e.Data["duration"])
		case trace.EventScriptComplete:
			if e.Data["status"] == "error" {
				fmt.Fprintf(w, "    ! %v: %v\n", e.Data["phase"], e.Data["error"])
			}
		case trace.EventStepComplete:
			if e.Data["status"] != "pass" {
				fmt.Fprintf(w, "    %s step %v: %v\n", statusGlyph(fmt.Sprint(e.Data["status"])), e.Data["step"], e.Data["command"])
			}
		case trace.EventRunComplete:
			fmt.Fprintf(w, "  %v tests: %v passed, %v failed, %v errors in %v\n",
				e.Data["total"], e.Data["passed"], e.Data["failed"], e.Data["errors"], e.Data["duration"])
		}
	}
	return runs
}

func readTraceFile(path string) ([]trace.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trace.ReadEvents(f)
}

func statusGlyph(status string) string {
	switch status {
	case "passed", "pass":
		return "✓"
	case "failed", "fail":
		return "✗"
	case "skipped":
		return "○"
	}
	return "!"
}

func init() {
	traceShowCmd.Flags().StringVar(&traceRunID, "run", "", "Only show the run with this ID")

	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace file operations",
	}
	traceCmd.AddCommand(traceShowCmd)
	rootCmd.AddCommand(traceCmd)
}
