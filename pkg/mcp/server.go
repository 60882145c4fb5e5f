// Package mcp exposes validation, test runs and the definition schema as
// MCP tools for AI agents.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with sprocket tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"sprocket",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("sprocket/validate",
			mcp.WithDescription("Validate a sprocket test definition file or a folder of definition files"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to a definition YAML file or folder")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("sprocket/run",
			mcp.WithDescription("Run sprocket tests against a database and return the verdict trees as JSON"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to a definition YAML file or folder")),
			mcp.WithString("connection", mcp.Description("Connection string (defaults to SPROCKET_CONNECTION)")),
			mcp.WithString("driver", mcp.Description("Database driver: sqlserver or pgx")),
			mcp.WithObject("vars", mcp.Description("Variable overrides applied on top of each test's variables")),
			mcp.WithBoolean("verbose", mcp.Description("Keep passing branches in the report")),
			mcp.WithBoolean("fail_fast", mcp.Description("Skip remaining tests after the first failure")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("sprocket/schema",
			mcp.WithDescription("Export the JSON Schema of sprocket test definitions"),
		),
		h.HandleSchema,
	)

	return s
}
