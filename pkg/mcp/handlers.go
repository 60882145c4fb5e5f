package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/config"
	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/render"
	"github.com/ormasoftchile/sprocket/pkg/runner"
	"github.com/ormasoftchile/sprocket/pkg/schema"
)

// OpenFunc connects to the database described by cfg. The returned close
// function releases the connection pool.
type OpenFunc func(ctx context.Context, cfg config.Config) (dbconn.Connector, func() error, error)

// OpenDB opens a database/sql pool for cfg.
func OpenDB(ctx context.Context, cfg config.Config) (dbconn.Connector, func() error, error) {
	db, err := dbconn.Open(ctx, cfg.Driver, cfg.ConnectionString, dbconn.WithCallTimeout(cfg.CallTimeout))
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// Handlers implement the MCP tools. Config supplies defaults that tool
// arguments override.
type Handlers struct {
	Config config.Config
	Open   OpenFunc
	Logger *zap.Logger
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// HandleValidate implements the sprocket/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	tests, errs := schema.ValidatePath(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	steps := 0
	for _, t := range tests {
		steps += len(t.Steps)
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d tests, %d steps)", path, len(tests), steps)), nil
}

// HandleSchema implements the sprocket/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the sprocket/run MCP tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	tests, errs := schema.ValidatePath(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	cfg := h.Config
	if v, _ := args["connection"].(string); v != "" {
		cfg.ConnectionString = v
	}
	if v, _ := args["driver"].(string); v != "" {
		cfg.Driver = v
	}
	verbose, _ := args["verbose"].(bool)
	failFast, _ := args["fail_fast"].(bool)
	if err := cfg.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	open := h.Open
	if open == nil {
		open = OpenDB
	}
	conn, closeDB, err := open(ctx, cfg)
	if err != nil {
		return errorResult(fmt.Sprintf("connect: %s", config.Redact(err.Error(), config.ConnectionRedactions))), nil
	}
	defer closeDB()

	overrides, _ := args["vars"].(map[string]any)
	r := &runner.Runner{
		Connector: conn,
		Logger:    h.logger(),
		Overrides: overrides,
		Driver:    cfg.Driver,
	}
	out := r.RunAll(ctx, tests, failFast)

	var buf bytes.Buffer
	if err := render.JSON(&buf, out, render.Options{Verbose: verbose}); err != nil {
		return errorResult(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(buf.String())},
		IsError: !out.Summary.OK(),
	}, nil
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
