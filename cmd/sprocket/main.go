// Package main provides the sprocket CLI: it runs stored-procedure test
// definitions against a database and reports a verdict tree per test.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/config"
	"github.com/ormasoftchile/sprocket/pkg/logging"
	"github.com/ormasoftchile/sprocket/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	logLevel string
	logJSON  bool
	envFile  string

	logger = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err unless the run report already explains it.
func reportError(w io.Writer, err error) {
	if errors.Is(err, errTestsFailed) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

var rootCmd = &cobra.Command{
	Use:   "sprocket",
	Short: "Stored procedure verification",
	Long:  "sprocket runs YAML test definitions against stored procedures and reports where results differ from expectations.",

	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if v := os.Getenv(config.EnvLogLevel); v != "" {
				level = v
			}
		}
		l, err := logging.New(level, logJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <file|folder>",
	Short: "Validate test definitions against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	tests, err := loadValidated(cmd.ErrOrStderr(), args[0])
	if err != nil {
		return err
	}
	steps := 0
	for _, t := range tests {
		steps += len(t.Steps)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d tests, %d steps)\n", args[0], len(tests), steps)
	return nil
}

// loadValidated loads and validates path, printing warnings and errors to w.
func loadValidated(w io.Writer, path string) ([]*schema.Test, error) {
	tests, errs := schema.ValidatePath(path)
	var failures []*schema.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(w, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(w, "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(w, "     at: %s\n", e.Path)
			}
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(failures))
	}
	return tests, nil
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the definition JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		formatted = data
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sprocket %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.DefaultLevel, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file loaded before reading the environment")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
