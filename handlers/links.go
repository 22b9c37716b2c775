// ABOUTME: Link MCP tool handler
// ABOUTME: Implements link_entities for relationships and group memberships
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/models"
)

type LinkEntitiesInput struct {
	EntityID         string `json:"entity_id" jsonschema:"Local entity id (required)"`
	RelatedEntityID  string `json:"related_entity_id,omitempty" jsonschema:"Local entity id to relate to"`
	RelationshipType string `json:"relationship_type,omitempty" jsonschema:"Relationship type name, required with related_entity_id"`
	GroupID          string `json:"group_id,omitempty" jsonschema:"Remote group id to join"`
}

type LinkEntitiesOutput struct {
	Relationship string `json:"relationship,omitempty"`
	Group        string `json:"group,omitempty"`
}

func (h *SyncHandlers) LinkEntities(ctx context.Context, _ *mcp.CallToolRequest, input LinkEntitiesInput) (*mcp.CallToolResult, LinkEntitiesOutput, error) {
	if input.EntityID == "" {
		return nil, LinkEntitiesOutput{}, fmt.Errorf("entity_id is required")
	}
	if input.RelatedEntityID == "" && input.GroupID == "" {
		return nil, LinkEntitiesOutput{}, fmt.Errorf("related_entity_id or group_id is required")
	}

	var out LinkEntitiesOutput
	if input.RelatedEntityID != "" {
		if input.RelationshipType == "" {
			return nil, out, fmt.Errorf("relationship_type is required with related_entity_id")
		}
		action, err := h.engine.LinkEntities(ctx, input.EntityID, input.RelatedEntityID, input.RelationshipType)
		if err != nil {
			return nil, out, err
		}
		out.Relationship = string(action)
	}

	if input.GroupID != "" {
		action, err := h.engine.JoinGroup(ctx, input.EntityID, models.RemoteID(input.GroupID))
		if err != nil {
			return nil, out, err
		}
		out.Group = string(action)
	}
	return nil, out, nil
}
