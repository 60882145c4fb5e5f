package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/sprocket/pkg/config"
	"github.com/ormasoftchile/sprocket/pkg/generate"
)

var (
	genFolder    string
	genTCS       string
	genDriver    string
	genOverwrite bool
)

var generateCmd = &cobra.Command{
	Use:          "generate",
	Short:        "Write skeleton definitions for every stored procedure in a database",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if cmd.Flags().Changed("tcs") {
		cfg.ConnectionString = genTCS
	}
	if cmd.Flags().Changed("driver") {
		cfg.Driver = genDriver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.CallTimeout+time.Second)
	defer cancel()

	pool, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Redacted(), err)
	}
	defer pool.Close()

	g, err := generate.New(pool, cfg.Driver, genFolder, logger)
	if err != nil {
		return err
	}
	g.Overwrite = genOverwrite

	written, err := g.Run(ctx)
	for _, p := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "Created template %s\n", p)
	}
	if err != nil {
		return fmt.Errorf("generate: %s", config.Redact(err.Error(), config.ConnectionRedactions))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d template(s) written to %s\n", len(written), genFolder)
	return nil
}

func init() {
	generateCmd.Flags().StringVarP(&genFolder, "folder", "d", ".", "Output folder for the skeletons")
	generateCmd.Flags().StringVarP(&genTCS, "tcs", "c", "", "Target connection string (overrides "+config.EnvConnection+")")
	generateCmd.Flags().StringVar(&genDriver, "driver", config.DefaultDriver, "Database driver: sqlserver or pgx")
	generateCmd.Flags().BoolVar(&genOverwrite, "overwrite", false, "Replace existing skeleton files")
	rootCmd.AddCommand(generateCmd)
}
