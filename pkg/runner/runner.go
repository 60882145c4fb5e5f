// Package runner sequences a test: Before scripts, each step through the
// executor and verifier, then After scripts, on one session held for the
// test's lifetime.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/executor"
	"github.com/ormasoftchile/sprocket/pkg/report"
	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/scripts"
	"github.com/ormasoftchile/sprocket/pkg/trace"
	"github.com/ormasoftchile/sprocket/pkg/vars"
	"github.com/ormasoftchile/sprocket/pkg/verify"
)

// Report labels.
const (
	LabelBefore  = "Before scripts"
	LabelAfter   = "After scripts"
	LabelSkipped = "Skipped"
)

// Errors reported as fatal test-level failures.
var (
	ErrNoConnection = errors.New("no database connection configured")
	ErrNoSteps      = errors.New("test has no steps")
)

// Runner executes test definitions against a database. Tests run one after
// another; each gets its own session.
type Runner struct {
	Connector dbconn.Connector
	Logger    *zap.Logger
	Trace     *trace.Writer  // optional
	Overrides map[string]any // replaces definition variables of the same name
	Driver    string         // recorded in the trace only
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// RunAll executes tests in order. With failFast, tests after the first
// failure are reported as skipped.
func (r *Runner) RunAll(ctx context.Context, tests []*schema.Test, failFast bool) *RunOutput {
	start := time.Now()
	runID := r.Trace.RunID()
	if runID == "" {
		runID = trace.NewRunID()
	}
	out := &RunOutput{RunID: runID}
	r.Trace.EmitRunStart(r.Driver, len(tests))

	stop := false
	for _, t := range tests {
		var res *TestResult
		if stop {
			res = &TestResult{Name: t.Name, Source: t.Source, Status: StatusSkipped}
		} else {
			res = r.Run(ctx, t)
		}
		out.Results = append(out.Results, res)
		out.Summary.add(res.Status)

		if failFast && (res.Status == StatusFailed || res.Status == StatusError) {
			stop = true
		}
	}

	s := out.Summary
	r.Trace.EmitRunComplete(s.Total, s.Passed, s.Failed, s.Errors, time.Since(start))
	r.logger().Info("run complete",
		zap.String("run_id", runID),
		zap.Int("total", s.Total),
		zap.Int("failed", s.Failed+s.Errors))
	return out
}

// Run executes one test and returns its verdict tree. It never returns an
// error; every failure is a node of the tree. After scripts run whenever a
// session was opened, even if Before or a step failed or panicked.
func (r *Runner) Run(ctx context.Context, t *schema.Test) (res *TestResult) {
	start := time.Now()
	log := r.logger().With(zap.String("test", t.Name))
	root := report.New("Test: " + t.Name)
	res = &TestResult{Name: t.Name, Source: t.Source, Report: root}
	r.Trace.EmitTestStart(t.Name, t.Source)

	defer func() {
		res.Status = resultStatus(root.Summarize(t.Name))
		res.DurationMs = time.Since(start).Milliseconds()
		r.Trace.EmitTestComplete(t.Name, res.Status, time.Since(start))
	}()

	if fatal := r.precheck(t); fatal != nil {
		log.Error("test aborted", zap.Error(fatal))
		root.Error("FATAL", fatal)
		res.Error = fatal.Error()
		return res
	}

	sess, err := r.Connector.Connect(ctx)
	if err != nil {
		log.Error("connect failed", zap.Error(err))
		root.Error("FATAL: connection", err)
		res.Error = fmt.Sprintf("connect: %v", err)
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("close session", zap.Error(err))
		}
	}()

	vs := vars.Merge(t.Variables, r.Overrides)
	sr := &scripts.Runner{Session: sess, Logger: log}

	defer func() {
		if p := recover(); p != nil {
			log.Error("test panicked", zap.Any("panic", p))
			root.Error("Panic", fmt.Errorf("%v", p))
		}
		// Teardown must run even when the caller cancelled.
		r.runScripts(context.WithoutCancel(ctx), root, sr, t, LabelAfter, t.After, vs)
	}()

	if !r.runScripts(ctx, root, sr, t, LabelBefore, t.Before, vs) {
		log.Warn("before scripts failed, steps skipped")
		return res
	}

	ex := &executor.Executor{Session: sess, Logger: log}
	for i := range t.Steps {
		if err := ctx.Err(); err != nil {
			root.Error("Cancelled", err)
			break
		}
		step := &t.Steps[i]
		stepStart := time.Now()
		sc := ex.Run(ctx, step, vs)
		node := verify.Step(verify.Input{Step: step, Capture: sc, Vars: vs, BaseDir: t.Dir})
		root.Append(node)
		r.Trace.EmitStepComplete(t.Name, step.Name, sc.Command.Rendered(), node.Status().String(), time.Since(stepStart))
	}
	return res
}

func (r *Runner) precheck(t *schema.Test) error {
	if r.Connector == nil {
		return ErrNoConnection
	}
	if len(t.Steps) == 0 {
		return ErrNoSteps
	}
	return nil
}

// runScripts executes one fixture batch and records it under label. It
// reports whether the batch committed or had nothing to run.
func (r *Runner) runScripts(ctx context.Context, root *report.Node, sr *scripts.Runner, t *schema.Test, label string, batch schema.Scripts, vs map[string]any) bool {
	if len(batch) == 0 {
		return true
	}
	out := sr.Run(ctx, batch, vs, t.Dir)
	r.Trace.EmitScriptComplete(t.Name, label, out.Skipped, out.Err)

	node := root.Add(label)
	node.Detail = out.Rendered
	switch {
	case out.Err != nil:
		node.Error("Exception", out.Err)
	case out.Skipped:
		node.Pass(LabelSkipped)
	default:
		node.Pass(report.SummaryOK)
	}
	return out.OK()
}

func resultStatus(s report.Status) string {
	switch s {
	case report.Pass:
		return StatusPassed
	case report.Fail:
		return StatusFailed
	default:
		return StatusError
	}
}
