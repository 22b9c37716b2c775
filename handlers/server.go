// ABOUTME: MCP server assembly
// ABOUTME: Registers every crmsync tool on a go-sdk server
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server exposing the sync tools.
func NewServer(h *SyncHandlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmsync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_constituent",
		Description: "Find the CRM constituent confirmed by an email address, falling back to a verified name search",
	}, h.FindConstituent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_entity",
		Description: "Push a local entity's identity and contact records to the CRM, creating the constituent if needed",
	}, h.SyncEntity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "attribute_purchase",
		Description: "Preview which fund, campaign, gift category, gift type and payment type an order would be recorded under",
	}, h.AttributePurchase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_purchase",
		Description: "Record an order as gifts on the purchaser's constituent and sync any membership it sold",
	}, h.RecordPurchase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "link_entities",
		Description: "Relate two local entities' constituents by relationship type, or add an entity's constituent to a group",
	}, h.LinkEntities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_failures",
		Description: "List remote writes that failed and are waiting for replay",
	}, h.ListFailures)

	return server
}
