// ABOUTME: Typed helper for recording payments as remote gifts
// ABOUTME: Amounts are always sent as fixed two-decimal strings
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

// GiftPayload builds the gifts.json request body for a payment.
func GiftPayload(p models.Payment) Params {
	amount := models.FormatAmount(p.AmountCents)
	date := p.Date.Format(dateLayout)

	body := Params{
		"external_id":       p.ExternalID,
		"fund_id":           p.FundID.String(),
		"received_amount":   amount,
		"received_date":     date,
		"deductible_amount": amount,
		"deposit_date":      date,
		"deposited_amount":  amount,
	}
	optional := map[string]models.RemoteID{
		"gift_type_id":     p.GiftTypeID,
		"gift_category_id": p.CategoryID,
		"campaign_id":      p.CampaignID,
		"payment_type_id":  p.PaymentTypeID,
	}
	for k, v := range optional {
		if !v.IsZero() {
			body[k] = v.String()
		}
	}
	if p.Note != "" {
		body["note"] = p.Note
	}
	return body
}

// GiftsPath returns the nested gifts endpoint for a constituent.
func GiftsPath(id models.RemoteID) string {
	return fmt.Sprintf("%s/gifts.json", constituentPath(id))
}

// CreateGift records a payment. Gifts are append-only.
func (c *Client) CreateGift(ctx context.Context, id models.RemoteID, p models.Payment) (models.RemoteID, error) {
	if p.FundID.IsZero() {
		return "", fmt.Errorf("gift %s has no fund", p.ExternalID)
	}

	resp, err := c.fetch(ctx, GiftsPath(id), http.MethodPost, GiftPayload(p), false)
	if err != nil {
		return "", err
	}

	giftID, err := createdID(resp)
	if err != nil {
		return "", nil
	}
	return giftID, nil
}
