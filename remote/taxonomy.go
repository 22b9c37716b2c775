// ABOUTME: Typed helpers for remote taxonomy lists
// ABOUTME: Funds, campaigns, gift categories and types, payment types, relationship types, membership levels
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/harperreed/crmsync/models"
)

var taxonomyPaths = map[string]string{
	models.TaxonomyFunds:             "/funds.json",
	models.TaxonomyCampaigns:         "/campaigns.json",
	models.TaxonomyGiftCategories:    "/gift_categories.json",
	models.TaxonomyGiftTypes:         "/gift_types.json",
	models.TaxonomyPaymentTypes:      "/payment_types.json",
	models.TaxonomyRelationshipTypes: "/relationship_types",
	models.TaxonomyMembershipLevels:  "/membership_levels.json",
}

// TaxonomyNames lists every supported taxonomy in display order.
var TaxonomyNames = []string{
	models.TaxonomyFunds,
	models.TaxonomyCampaigns,
	models.TaxonomyGiftCategories,
	models.TaxonomyGiftTypes,
	models.TaxonomyPaymentTypes,
	models.TaxonomyRelationshipTypes,
	models.TaxonomyMembershipLevels,
}

// Taxonomy returns a reference list, served from the long-TTL cache when possible.
func (c *Client) Taxonomy(ctx context.Context, name string) ([]models.TaxonomyItem, error) {
	path, ok := taxonomyPaths[name]
	if !ok {
		return nil, fmt.Errorf("unknown taxonomy %q", name)
	}

	resp, err := c.fetch(ctx, path, http.MethodGet, nil, true)
	if err != nil {
		return nil, err
	}

	wires, err := DecodeRecords[taxonomyWire](resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.TaxonomyItem, 0, len(wires))
	for _, w := range wires {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			name = strings.TrimSpace(w.Description)
		}
		out = append(out, models.TaxonomyItem{ID: w.ID, Name: name})
	}
	return out, nil
}

// FindByName returns the first item whose name equals name case-insensitively.
func FindByName(items []models.TaxonomyItem, name string) (models.TaxonomyItem, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.TaxonomyItem{}, false
	}
	for _, item := range items {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return models.TaxonomyItem{}, false
}

// FindByID returns the item with the given id.
func FindByID(items []models.TaxonomyItem, id models.RemoteID) (models.TaxonomyItem, bool) {
	if id.IsZero() {
		return models.TaxonomyItem{}, false
	}
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.TaxonomyItem{}, false
}
