// Package main provides the sprocket-mcp binary, an MCP server over stdio
// that lets AI agents validate and run sprocket test definitions.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/sprocket/pkg/config"
	"github.com/ormasoftchile/sprocket/pkg/logging"
	smcp "github.com/ormasoftchile/sprocket/pkg/mcp"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(os.Getenv("SPROCKET_ENV_FILE")); err != nil {
		return err
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	// stdout carries the protocol; logs go to stderr.
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	s := smcp.NewServer(version, &smcp.Handlers{
		Config: cfg,
		Open:   smcp.OpenDB,
		Logger: logger,
	})
	return server.ServeStdio(s)
}
