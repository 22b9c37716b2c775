// ABOUTME: MCP server subcommand
// ABOUTME: Serves the crmsync tools over stdio
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/handlers"
)

// MCPCommand starts the MCP server on stdio.
func MCPCommand(ctx context.Context, app *App, version string) error {
	app.Logger.Info("starting MCP server", "version", version)

	server := handlers.NewServer(handlers.NewSyncHandlers(app.Engine, app.Journal), version)
	return server.Run(ctx, &mcp.StdioTransport{})
}
