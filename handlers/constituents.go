// ABOUTME: Constituent MCP tool handlers
// ABOUTME: Implements find_constituent and sync_entity tools
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/engine"
	"github.com/harperreed/crmsync/models"
)

// FailureLister reads the failure journal.
type FailureLister interface {
	List(ctx context.Context, status string, limit int) ([]models.JournalEntry, error)
}

type SyncHandlers struct {
	engine   *engine.Engine
	failures FailureLister
}

func NewSyncHandlers(e *engine.Engine, failures FailureLister) *SyncHandlers {
	return &SyncHandlers{engine: e, failures: failures}
}

type FindConstituentInput struct {
	Name   string   `json:"name,omitempty" jsonschema:"Full name or organization name"`
	Emails []string `json:"emails,omitempty" jsonschema:"Known email addresses, tagged forms allowed"`
}

type FindConstituentOutput struct {
	Found        bool   `json:"found"`
	ID           string `json:"id,omitempty"`
	MatchedEmail string `json:"matched_email,omitempty"`
	Method       string `json:"method,omitempty"`
}

func (h *SyncHandlers) FindConstituent(ctx context.Context, _ *mcp.CallToolRequest, input FindConstituentInput) (*mcp.CallToolResult, FindConstituentOutput, error) {
	if input.Name == "" && len(input.Emails) == 0 {
		return nil, FindConstituentOutput{}, fmt.Errorf("name or emails is required")
	}

	match, err := h.engine.Matcher().FindConstituent(ctx, input.Name, input.Emails)
	if err != nil {
		return nil, FindConstituentOutput{}, fmt.Errorf("failed to find constituent: %w", err)
	}
	if match == nil {
		return nil, FindConstituentOutput{}, nil
	}

	return nil, FindConstituentOutput{
		Found:        true,
		ID:           match.ID.String(),
		MatchedEmail: match.MatchedEmail,
		Method:       match.Method,
	}, nil
}

type SyncEntityInput struct {
	EntityID string `json:"entity_id" jsonschema:"Local entity id (required)"`
	Full     bool   `json:"full,omitempty" jsonschema:"Replace every remote contact record instead of converging incrementally"`
}

type ContactActionOutput struct {
	Kind     string `json:"kind"`
	Action   string `json:"action"`
	RecordID string `json:"record_id,omitempty"`
	Writes   int    `json:"writes"`
}

type SyncEntityOutput struct {
	ConstituentID string                `json:"constituent_id,omitempty"`
	MatchMethod   string                `json:"match_method,omitempty"`
	Created       bool                  `json:"created"`
	Contacts      []ContactActionOutput `json:"contacts"`
	Journaled     int                   `json:"journaled"`
	Error         string                `json:"error,omitempty"`
}

func (h *SyncHandlers) SyncEntity(ctx context.Context, _ *mcp.CallToolRequest, input SyncEntityInput) (*mcp.CallToolResult, SyncEntityOutput, error) {
	if input.EntityID == "" {
		return nil, SyncEntityOutput{}, fmt.Errorf("entity_id is required")
	}

	sync := h.engine.SyncEntity
	if input.Full {
		sync = h.engine.ResyncEntity
	}

	report, err := sync(ctx, input.EntityID)
	if report == nil {
		return nil, SyncEntityOutput{}, fmt.Errorf("failed to sync entity: %w", err)
	}

	// Partial progress is reported alongside the error so the caller can see what landed.
	out := syncReportToOutput(report)
	if err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

func syncReportToOutput(r *engine.SyncReport) SyncEntityOutput {
	out := SyncEntityOutput{
		ConstituentID: r.ConstituentID.String(),
		MatchMethod:   r.MatchMethod,
		Created:       r.Created(),
		Contacts:      make([]ContactActionOutput, 0, len(r.Contacts)),
		Journaled:     r.Journaled,
	}
	for _, c := range r.Contacts {
		out.Contacts = append(out.Contacts, ContactActionOutput{
			Kind:     string(c.Kind),
			Action:   string(c.Action),
			RecordID: c.RecordID.String(),
			Writes:   c.Writes(),
		})
	}
	return out
}
