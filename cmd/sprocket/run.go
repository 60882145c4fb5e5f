package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/config"
	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/render"
	"github.com/ormasoftchile/sprocket/pkg/runner"
	"github.com/ormasoftchile/sprocket/pkg/trace"
	"github.com/ormasoftchile/sprocket/pkg/vars"
)

var (
	runFile     string
	runFolder   string
	runTCS      string
	runDriver   string
	runVerbose  bool
	runFormat   string
	runFailFast bool
	runTimeout  time.Duration
	runVars     []string
	runTrace    string
	runWatch    bool
	runWidth    int
)

// errTestsFailed makes the process exit 1 without printing anything more;
// the report already says what failed.
var errTestsFailed = errors.New("one or more tests failed")

var runCmd = &cobra.Command{
	Use:   "run [file|folder]",
	Short: "Run test definitions against a database",
	Long: `Run every test in a definition file, or in every .yml/.yaml file of a folder,
against the database named by --tcs. Exits 0 when every test passes, 1 otherwise.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runRun,
}

// openDB connects to the configured database. Replaced in tests.
var openDB = func(ctx context.Context, cfg config.Config) (dbconn.Connector, func() error, error) {
	db, err := dbconn.Open(ctx, cfg.Driver, cfg.ConnectionString,
		dbconn.WithCallTimeout(cfg.CallTimeout),
		dbconn.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := runTarget(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if runWatch {
		return watch(ctx, path, func() error {
			return runOnce(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), path, cfg)
		})
	}
	return runOnce(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), path, cfg)
}

// runTarget picks the definition path from the positional argument or the
// --file/--folder flags.
func runTarget(args []string) (string, error) {
	var candidates []string
	if len(args) == 1 {
		candidates = append(candidates, args[0])
	}
	for _, p := range []string{runFile, runFolder} {
		if p != "" {
			candidates = append(candidates, p)
		}
	}
	switch len(candidates) {
	case 0:
		return "", errors.New("a definition file or folder is required (argument, --file or --folder)")
	case 1:
		return candidates[0], nil
	}
	return "", errors.New("give exactly one of: argument, --file, --folder")
}

// resolveConfig layers defaults, environment and explicitly set flags.
func resolveConfig(cmd *cobra.Command, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("tcs") {
		cfg.ConnectionString = runTCS
	}
	if flags.Changed("driver") {
		cfg.Driver = runDriver
	}
	if flags.Changed("timeout") {
		cfg.CallTimeout = runTimeout
	}
	if flags.Changed("format") {
		cfg.Format = runFormat
	}
	cfg.Verbose = runVerbose
	cfg.FailFast = runFailFast
	cfg.TracePath = runTrace
	cfg.LogLevel = logLevel
	cfg.LogJSON = logJSON

	overrides, err := vars.ParseAssignments(runVars)
	if err != nil {
		return cfg, err
	}
	cfg.Vars = overrides

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runOnce loads, runs and renders every test under path.
func runOnce(ctx context.Context, stdout, stderr io.Writer, path string, cfg config.Config) error {
	tests, err := loadValidated(stderr, path)
	if err != nil {
		return err
	}

	conn, closeDB, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to %s: %s", cfg.Redacted(), config.Redact(err.Error(), config.ConnectionRedactions))
	}
	defer closeDB()

	var tw *trace.Writer
	if cfg.TracePath != "" {
		tw, err = trace.NewFileWriter(cfg.TracePath, trace.NewRunID())
		if err != nil {
			return err
		}
		tw.SetSecrets(cfg.ConnectionString)
		defer tw.Close()
	}

	r := &runner.Runner{
		Connector: conn,
		Logger:    logger,
		Trace:     tw,
		Overrides: cfg.Vars,
		Driver:    cfg.Driver,
	}
	out := r.RunAll(ctx, tests, cfg.FailFast)
	logger.Debug("run finished", zap.String("run_id", out.RunID), zap.Int("tests", len(out.Results)))

	if err := render.Write(stdout, cfg.Format, out, render.Options{Verbose: cfg.Verbose, Width: runWidth}); err != nil {
		return err
	}
	if !out.Summary.OK() {
		return errTestsFailed
	}
	return nil
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Definition file")
	runCmd.Flags().StringVarP(&runFolder, "folder", "d", "", "Folder of definition files")
	runCmd.Flags().StringVarP(&runTCS, "tcs", "c", "", "Target connection string (overrides "+config.EnvConnection+")")
	runCmd.Flags().StringVar(&runDriver, "driver", config.DefaultDriver, "Database driver: sqlserver or pgx")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show passing branches too")
	runCmd.Flags().StringVar(&runFormat, "format", render.FormatTree, "Output format: tree, markdown or json")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Skip remaining tests after the first failure")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", dbconn.DefaultCallTimeout, "Deadline for each database call")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Override a variable (key=value), repeatable")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Append a JSONL trace of the run to this file")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run when a definition file changes")
	runCmd.Flags().IntVar(&runWidth, "width", 0, "Truncate tree lines to this many columns (0 = no limit)")
	rootCmd.AddCommand(runCmd)
}
