// ABOUTME: Purchase MCP tool handlers
// ABOUTME: Implements attribute_purchase, record_purchase and list_failures tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/models"
)

type PurchaseItemInput struct {
	Name            string   `json:"name" jsonschema:"Item name"`
	Categories      []string `json:"categories,omitempty" jsonschema:"Store category slugs of the item"`
	Quantity        int      `json:"quantity,omitempty" jsonschema:"Quantity (default 1)"`
	Amount          string   `json:"amount" jsonschema:"Line total as a decimal, e.g. 75.00"`
	FundMarker      string   `json:"fund_marker,omitempty" jsonschema:"Explicit fund id carried by family-slot items"`
	MembershipLabel string   `json:"membership_label,omitempty" jsonschema:"Membership type sold by this item"`
}

type PurchaseInput struct {
	OrderID       string              `json:"order_id" jsonschema:"Order id (required)"`
	Date          string              `json:"date" jsonschema:"Order date as YYYY-MM-DD or RFC3339"`
	PaymentMethod string              `json:"payment_method,omitempty" jsonschema:"credit_card, bank_transfer, check or cash"`
	Coupons       []string            `json:"coupons,omitempty" jsonschema:"Coupon codes applied"`
	Discount      string              `json:"discount,omitempty" jsonschema:"Order discount as a decimal"`
	Items         []PurchaseItemInput `json:"items" jsonschema:"Order line items"`
}

// ToEvent validates the input and converts it to a purchase event.
func (in PurchaseInput) ToEvent() (*models.PurchaseEvent, error) {
	if in.OrderID == "" {
		return nil, fmt.Errorf("order_id is required")
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}

	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}

	event := &models.PurchaseEvent{
		OrderID:       in.OrderID,
		Date:          date,
		PaymentMethod: in.PaymentMethod,
		Coupons:       in.Coupons,
	}
	if in.Discount != "" {
		if event.DiscountCents, err = models.ParseAmount(in.Discount); err != nil {
			return nil, err
		}
	}

	for _, item := range in.Items {
		cents, err := models.ParseAmount(item.Amount)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", item.Name, err)
		}
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		event.Items = append(event.Items, models.PurchaseItem{
			Name:            item.Name,
			Categories:      item.Categories,
			Quantity:        qty,
			AmountCents:     cents,
			FundMarker:      item.FundMarker,
			MembershipLabel: item.MembershipLabel,
		})
	}
	return event, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

type PaymentOutput struct {
	ExternalID    string            `json:"external_id"`
	Amount        string            `json:"amount"`
	Date          string            `json:"date"`
	Category      string            `json:"category,omitempty"`
	FundID        string            `json:"fund_id"`
	CampaignID    string            `json:"campaign_id,omitempty"`
	GiftCategory  string            `json:"gift_category_id,omitempty"`
	GiftTypeID    string            `json:"gift_type_id,omitempty"`
	PaymentTypeID string            `json:"payment_type_id,omitempty"`
	Note          string            `json:"note,omitempty"`
	Resolution    map[string]string `json:"resolution,omitempty"`
}

type AttributePurchaseOutput struct {
	Payments []PaymentOutput `json:"payments"`
}

// AttributePurchase previews attribution without writing anything.
func (h *SyncHandlers) AttributePurchase(ctx context.Context, _ *mcp.CallToolRequest, input PurchaseInput) (*mcp.CallToolResult, AttributePurchaseOutput, error) {
	event, err := input.ToEvent()
	if err != nil {
		return nil, AttributePurchaseOutput{}, err
	}

	explained, err := h.engine.Attributor().Explain(ctx, event)
	if err != nil {
		return nil, AttributePurchaseOutput{}, fmt.Errorf("failed to attribute purchase: %w", err)
	}

	out := AttributePurchaseOutput{Payments: make([]PaymentOutput, len(explained))}
	for i, e := range explained {
		p := paymentToOutput(e.Payment)
		p.Category = e.Category
		p.Resolution = e.Trace
		out.Payments[i] = p
	}
	return nil, out, nil
}

type RecordPurchaseInput struct {
	EntityID string        `json:"entity_id" jsonschema:"Local entity id of the purchaser (required)"`
	Order    PurchaseInput `json:"order" jsonschema:"The placed order"`
}

type RecordPurchaseOutput struct {
	ConstituentID string          `json:"constituent_id,omitempty"`
	Recorded      []PaymentOutput `json:"recorded"`
	Skipped       []string        `json:"skipped,omitempty"`
	Memberships   []string        `json:"memberships,omitempty"`
	Journaled     int             `json:"journaled"`
	Error         string          `json:"error,omitempty"`
}

func (h *SyncHandlers) RecordPurchase(ctx context.Context, _ *mcp.CallToolRequest, input RecordPurchaseInput) (*mcp.CallToolResult, RecordPurchaseOutput, error) {
	if input.EntityID == "" {
		return nil, RecordPurchaseOutput{}, fmt.Errorf("entity_id is required")
	}
	event, err := input.Order.ToEvent()
	if err != nil {
		return nil, RecordPurchaseOutput{}, err
	}

	report, err := h.engine.RecordPurchase(ctx, input.EntityID, event)
	if report == nil {
		return nil, RecordPurchaseOutput{}, fmt.Errorf("failed to record purchase: %w", err)
	}

	out := RecordPurchaseOutput{
		ConstituentID: report.ConstituentID.String(),
		Recorded:      make([]PaymentOutput, 0, len(report.Recorded)),
		Skipped:       report.Skipped,
		Journaled:     report.Journaled,
	}
	for _, p := range report.Recorded {
		out.Recorded = append(out.Recorded, paymentToOutput(p))
	}
	for _, m := range report.Memberships {
		out.Memberships = append(out.Memberships, fmt.Sprintf("%s level %s", m.Action, m.LevelID))
	}
	if err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

type ListFailuresInput struct {
	Status string `json:"status,omitempty" jsonschema:"pending (default), resolved, or all"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of entries (default 50)"`
}

type FailureOutput struct {
	ID        string `json:"id"`
	EntityID  string `json:"entity_id"`
	Operation string `json:"operation"`
	Method    string `json:"method"`
	Endpoint  string `json:"endpoint"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type ListFailuresOutput struct {
	Failures []FailureOutput `json:"failures"`
}

func (h *SyncHandlers) ListFailures(ctx context.Context, _ *mcp.CallToolRequest, input ListFailuresInput) (*mcp.CallToolResult, ListFailuresOutput, error) {
	status := input.Status
	switch status {
	case "":
		status = models.JournalStatusPending
	case "all":
		status = ""
	case models.JournalStatusPending, models.JournalStatusResolved:
	default:
		return nil, ListFailuresOutput{}, fmt.Errorf("invalid status %q", input.Status)
	}

	limit := input.Limit
	if limit == 0 {
		limit = 50
	}

	entries, err := h.failures.List(ctx, status, limit)
	if err != nil {
		return nil, ListFailuresOutput{}, fmt.Errorf("failed to list failures: %w", err)
	}

	out := ListFailuresOutput{Failures: make([]FailureOutput, len(entries))}
	for i, e := range entries {
		out.Failures[i] = FailureOutput{
			ID:        e.ID,
			EntityID:  e.EntityID,
			Operation: e.Operation,
			Method:    e.Method,
			Endpoint:  e.Endpoint,
			Error:     e.ErrorMessage,
			Attempts:  e.Attempts,
			Status:    e.Status,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func paymentToOutput(p models.Payment) PaymentOutput {
	return PaymentOutput{
		ExternalID:    p.ExternalID,
		Amount:        models.FormatAmount(p.AmountCents),
		Date:          p.Date.Format("2006-01-02"),
		FundID:        p.FundID.String(),
		CampaignID:    p.CampaignID.String(),
		GiftCategory:  p.CategoryID.String(),
		GiftTypeID:    p.GiftTypeID.String(),
		PaymentTypeID: p.PaymentTypeID.String(),
		Note:          p.Note,
	}
}
