// Package scripts runs Before and After fixture batches, each in a single
// transaction.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/schema"
	"github.com/ormasoftchile/sprocket/pkg/vars"
)

// Separator joins fragments into one batch.
const Separator = ";\n"

// Outcome is the captured result of running a batch.
type Outcome struct {
	Rendered string // the substituted batch that was executed
	Skipped  bool   // nothing to execute
	Err      error  // nil when the batch committed
}

// OK reports whether the batch committed or was skipped.
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Runner executes script batches on a session.
type Runner struct {
	Session dbconn.Session
	Logger  *zap.Logger
}

// Render substitutes each fragment and joins them into one batch. File
// fragments are read relative to baseDir.
func Render(scripts schema.Scripts, vs map[string]any, baseDir string) (string, error) {
	var parts []string
	for _, s := range scripts {
		frags, err := s.Fragments(baseDir)
		if err != nil {
			return "", err
		}
		for _, f := range frags {
			f = strings.TrimRight(strings.TrimSpace(vars.Substitute(f, vs)), ";")
			if strings.TrimSpace(f) == "" {
				continue
			}
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, Separator), nil
}

// Run renders and executes the batch inside one transaction. Any failure
// rolls the transaction back and is recorded on the outcome; Run never
// returns an error itself.
func (r *Runner) Run(ctx context.Context, scripts schema.Scripts, vs map[string]any, baseDir string) *Outcome {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	batch, err := Render(scripts, vs, baseDir)
	out := &Outcome{Rendered: batch}
	if err != nil {
		out.Err = err
		return out
	}
	if batch == "" {
		out.Skipped = true
		return out
	}
	if r.Session == nil {
		out.Err = dbconn.ErrNoSession
		return out
	}

	tx, err := r.Session.BeginTx(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	if err := tx.ExecBatch(ctx, batch); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		log.Warn("script batch rolled back", zap.Error(err))
		out.Err = err
		return out
	}
	if err := tx.Commit(); err != nil {
		out.Err = fmt.Errorf("commit: %w", err)
		return out
	}
	return out
}
