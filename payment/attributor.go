// ABOUTME: Payment attribution from purchase events to remote fund, campaign, category and type ids
// ABOUTME: Fetches taxonomy once per pass and degrades to fallbacks except when no fund resolves
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/models"
)

// ErrFundUnresolved means no fund could be attributed; no payment is produced.
var ErrFundUnresolved = errors.New("fund could not be resolved")

// MiscCategory is the gift category used when no better one exists.
const MiscCategory = "Misc."

// TaxonomySource supplies remote reference lists.
type TaxonomySource interface {
	Taxonomy(ctx context.Context, name string) ([]models.TaxonomyItem, error)
}

// Snapshot holds the taxonomy lists used during one attribution pass.
type Snapshot struct {
	Funds          []models.TaxonomyItem
	Campaigns      []models.TaxonomyItem
	GiftCategories []models.TaxonomyItem
	GiftTypes      []models.TaxonomyItem
	PaymentTypes   []models.TaxonomyItem
}

// Explanation is an attributed payment together with the chain step that
// resolved each field.
type Explanation struct {
	Payment  models.Payment
	Category string
	Trace    map[string]string
}

type Attributor struct {
	source TaxonomySource
	cfg    config.AttributionConfig
	logger *slog.Logger
}

func NewAttributor(source TaxonomySource, cfg config.AttributionConfig, logger *slog.Logger) *Attributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attributor{source: source, cfg: cfg, logger: logger.With("component", "attributor")}
}

// LoadSnapshot fetches every taxonomy list once.
func (a *Attributor) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	targets := []struct {
		name string
		dst  *[]models.TaxonomyItem
	}{
		{models.TaxonomyFunds, &snap.Funds},
		{models.TaxonomyCampaigns, &snap.Campaigns},
		{models.TaxonomyGiftCategories, &snap.GiftCategories},
		{models.TaxonomyGiftTypes, &snap.GiftTypes},
		{models.TaxonomyPaymentTypes, &snap.PaymentTypes},
	}

	for _, t := range targets {
		items, err := a.source.Taxonomy(ctx, t.name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", t.name, err)
		}
		*t.dst = items
	}
	return snap, nil
}

// Attribute produces one payment per item of the event.
func (a *Attributor) Attribute(ctx context.Context, event *models.PurchaseEvent) ([]models.Payment, error) {
	explained, err := a.Explain(ctx, event)
	if err != nil {
		return nil, err
	}

	payments := make([]models.Payment, len(explained))
	for i, e := range explained {
		payments[i] = e.Payment
	}
	return payments, nil
}

// Explain attributes the event and records which fallback resolved each field.
func (a *Attributor) Explain(ctx context.Context, event *models.PurchaseEvent) ([]Explanation, error) {
	if len(event.Items) == 0 {
		return nil, fmt.Errorf("order %s has no items", event.OrderID)
	}

	snap, err := a.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Explanation, 0, len(event.Items))
	for i := range event.Items {
		e, err := a.attributeItem(snap, event, i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *Attributor) attributeItem(snap *Snapshot, event *models.PurchaseEvent, index int) (Explanation, error) {
	item := event.Items[index]
	category := a.Classify(item)
	trace := make(map[string]string)

	fundID, how := a.fundChain(snap, item, category).resolve()
	if fundID.IsZero() {
		return Explanation{}, fmt.Errorf("%w: order %s item %q", ErrFundUnresolved, event.OrderID, item.Name)
	}
	trace["fund"] = how

	p := models.Payment{
		ExternalID:  ExternalID(event, index),
		AmountCents: item.AmountCents,
		Date:        event.Date,
		FundID:      fundID,
		Note:        a.Note(event, item, category),
	}

	p.CampaignID, trace["campaign"] = a.campaignChain(snap, category).resolve()
	p.CategoryID, trace["gift_category"] = a.categoryChain(snap, category).resolve()
	if p.CategoryID.IsZero() {
		a.logger.Warn("no gift category resolved", "order", event.OrderID, "item", item.Name, "category", category)
	}
	p.GiftTypeID, trace["gift_type"] = a.giftTypeChain(snap).resolve()
	p.PaymentTypeID, trace["payment_type"] = a.paymentTypeChain(snap, event.PaymentMethod).resolve()

	a.logger.Debug("payment attributed", "order", event.OrderID, "external_id", p.ExternalID,
		"category", category, "fund", p.FundID, "fund_step", trace["fund"])

	return Explanation{Payment: p, Category: category, Trace: trace}, nil
}

// ExternalID is the order id, suffixed -N for the N-th item of multi-item orders.
func ExternalID(event *models.PurchaseEvent, index int) string {
	if len(event.Items) <= 1 {
		return event.OrderID
	}
	return fmt.Sprintf("%s-%d", event.OrderID, index+1)
}

// Classify maps an item onto a purchase category using the configured slug lists.
func (a *Attributor) Classify(item models.PurchaseItem) string {
	if strings.TrimSpace(item.MembershipLabel) != "" {
		return models.CategoryMembership
	}

	rules := []struct {
		category string
		slugs    []string
	}{
		{models.CategoryMembership, a.cfg.MembershipSlugs},
		{models.CategoryLanguageClass, a.cfg.LanguageClassSlugs},
		{models.CategoryEvents, a.cfg.EventSlugs},
	}
	for _, rule := range rules {
		for _, cat := range item.Categories {
			if containsFold(rule.slugs, cat) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}

func (a *Attributor) fundChain(snap *Snapshot, item models.PurchaseItem, category string) chain {
	return chain{
		{"family_slot_marker", func() models.RemoteID {
			marker := strings.TrimSpace(item.FundMarker)
			if marker == "" || !containsFold(a.cfg.FamilySlotFundIDs, marker) {
				return ""
			}
			return models.RemoteID(marker)
		}},
		{"category_fund", func() models.RemoteID {
			return lookup(snap.Funds, a.cfg.CategoryFunds[category])
		}},
		{"general_fund", func() models.RemoteID {
			return lookup(snap.Funds, a.cfg.GeneralFundID)
		}},
	}
}

func (a *Attributor) campaignChain(snap *Snapshot, category string) chain {
	names := a.cfg.CampaignNames[category]
	byName := func(i int) func() models.RemoteID {
		return func() models.RemoteID {
			if i >= len(names) {
				return ""
			}
			return findName(snap.Campaigns, names[i])
		}
	}
	return chain{
		{"configured_id", func() models.RemoteID {
			return lookup(snap.Campaigns, a.cfg.CampaignIDs[category])
		}},
		{"primary_name", byName(0)},
		{"legacy_name", byName(1)},
	}
}

func (a *Attributor) categoryChain(snap *Snapshot, category string) chain {
	return chain{
		{"category_name", func() models.RemoteID {
			return findName(snap.GiftCategories, a.cfg.GiftCategories[category])
		}},
		{"misc", func() models.RemoteID {
			return findName(snap.GiftCategories, MiscCategory)
		}},
	}
}

func (a *Attributor) giftTypeChain(snap *Snapshot) chain {
	return chain{
		{"configured_name", func() models.RemoteID {
			return findName(snap.GiftTypes, a.cfg.GiftTypeName)
		}},
		{"first_remote", func() models.RemoteID { return first(snap.GiftTypes) }},
	}
}

func (a *Attributor) paymentTypeChain(snap *Snapshot, method string) chain {
	return chain{
		{"method_table", func() models.RemoteID {
			return findName(snap.PaymentTypes, a.cfg.PaymentTypes[method])
		}},
		{"first_remote", func() models.RemoteID { return first(snap.PaymentTypes) }},
	}
}

// Note describes the purchase for the gift record.
func (a *Attributor) Note(event *models.PurchaseEvent, item models.PurchaseItem, category string) string {
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}

	note := fmt.Sprintf("%s: %s x%d (order %s)", categoryLabel(category), strings.TrimSpace(item.Name), qty, event.OrderID)
	if len(event.Coupons) > 0 {
		note += "; coupon " + strings.Join(event.Coupons, ", ")
	}
	if event.DiscountCents > 0 {
		note += "; discount " + models.FormatAmount(event.DiscountCents)
	}
	return note
}

func categoryLabel(category string) string {
	switch category {
	case models.CategoryMembership:
		return "Membership"
	case models.CategoryLanguageClass:
		return "Language class"
	case models.CategoryEvents:
		return "Event"
	default:
		return "Purchase"
	}
}

// lookup accepts a configured id or name. When the remote list is empty the
// configured value is trusted as an id.
func lookup(items []models.TaxonomyItem, value string) models.RemoteID {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(items) == 0 {
		return models.RemoteID(value)
	}
	for _, item := range items {
		if item.ID.String() == value {
			return item.ID
		}
	}
	return findName(items, value)
}

func findName(items []models.TaxonomyItem, name string) models.RemoteID {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.Name), name) {
			return item.ID
		}
	}
	return ""
}

func first(items []models.TaxonomyItem) models.RemoteID {
	if len(items) == 0 {
		return ""
	}
	return items[0].ID
}

func containsFold(list []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}
