// ABOUTME: Tests for the MCP tool handlers
// ABOUTME: Drives each tool against the fake CRM and a temp SQLite store
package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/crmtest"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/engine"
	"github.com/harperreed/crmsync/remote"
)

type fixture struct {
	srv      *crmtest.Server
	attrs    *db.AttributeStore
	handlers *SyncHandlers
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := crmtest.NewServer(t)
	funds := srv.SetTaxonomy("funds.json", "General")
	srv.SetTaxonomy("payment_types.json", "Credit Card")
	srv.SetTaxonomy("membership_levels.json", "Individual")

	cfg := srv.Config()
	cfg.Attribution.GeneralFundID = funds["General"]

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "crmsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	client := remote.New(cfg, remote.WithLogger(config.DiscardLogger()))
	t.Cleanup(func() { _ = client.Close() })

	attrs := db.NewAttributeStore(database)
	journal := db.NewJournal(database)
	e := engine.New(client, attrs, journal, cfg, config.DiscardLogger())

	return &fixture{srv: srv, attrs: attrs, handlers: NewSyncHandlers(e, journal)}
}

func (f *fixture) seed(t *testing.T, entityID string, attrs map[string]string) {
	t.Helper()
	for k, v := range attrs {
		require.NoError(t, f.attrs.SetAttribute(context.Background(), entityID, k, v))
	}
}

func order() PurchaseInput {
	return PurchaseInput{
		OrderID:       "1001",
		Date:          "2026-03-01",
		PaymentMethod: "credit_card",
		Items: []PurchaseItemInput{{
			Name:            "Individual Membership",
			Amount:          "75.00",
			MembershipLabel: "Individual",
		}},
	}
}

func TestFindConstituentHandler(t *testing.T) {
	f := setup(t)
	id := f.srv.AddConstituent("Ann", "Lee", "ann@example.com")
	ctx := context.Background()

	_, out, err := f.handlers.FindConstituent(ctx, nil, FindConstituentInput{Emails: []string{"ann+crm@example.com"}})
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, "email", out.Method)

	_, out, err = f.handlers.FindConstituent(ctx, nil, FindConstituentInput{Emails: []string{"nobody@example.com"}})
	require.NoError(t, err)
	assert.False(t, out.Found)

	_, _, err = f.handlers.FindConstituent(ctx, nil, FindConstituentInput{})
	assert.Error(t, err)
}

func TestSyncEntityHandler(t *testing.T) {
	f := setup(t)
	f.seed(t, "e1", map[string]string{
		engine.AttrFirstName: "Bo",
		engine.AttrLastName:  "Park",
		engine.AttrEmail:     "bo@example.com",
		engine.AttrPhone:     "5551234",
	})

	_, out, err := f.handlers.SyncEntity(context.Background(), nil, SyncEntityInput{EntityID: "e1"})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.NotEmpty(t, out.ConstituentID)
	require.Len(t, out.Contacts, 2)
	assert.Equal(t, "add", out.Contacts[0].Action)
	assert.Equal(t, 1, out.Contacts[1].Writes)
	assert.Empty(t, out.Error)

	_, _, err = f.handlers.SyncEntity(context.Background(), nil, SyncEntityInput{})
	assert.Error(t, err)
}

func TestAttributePurchaseHandler(t *testing.T) {
	f := setup(t)

	_, out, err := f.handlers.AttributePurchase(context.Background(), nil, order())
	require.NoError(t, err)
	require.Len(t, out.Payments, 1)

	p := out.Payments[0]
	assert.Equal(t, "1001", p.ExternalID)
	assert.Equal(t, "75.00", p.Amount)
	assert.Equal(t, "2026-03-01", p.Date)
	assert.Equal(t, "membership", p.Category)
	assert.Equal(t, "general_fund", p.Resolution["fund"])
	assert.Equal(t, 0, f.srv.Writes())
}

func TestRecordPurchaseHandlerAndFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := f.srv.AddConstituent("Ann", "Lee", "ann@example.com")
	f.seed(t, "e1", map[string]string{engine.AttrLastName: "Lee", engine.AttrEmail: "ann@example.com"})

	f.srv.FailNext(http.MethodPost, "gifts.json", http.StatusServiceUnavailable, 1)
	_, out, err := f.handlers.RecordPurchase(ctx, nil, RecordPurchaseInput{EntityID: "e1", Order: order()})
	require.NoError(t, err)
	assert.Equal(t, id, out.ConstituentID)
	assert.Empty(t, out.Recorded)
	assert.Equal(t, 1, out.Journaled)
	assert.NotEmpty(t, out.Error)
	require.Len(t, out.Memberships, 1)
	assert.True(t, strings.HasPrefix(out.Memberships[0], "add level "))

	_, failures, err := f.handlers.ListFailures(ctx, nil, ListFailuresInput{})
	require.NoError(t, err)
	require.Len(t, failures.Failures, 1)
	assert.Equal(t, "create_gift", failures.Failures[0].Operation)
	assert.Equal(t, "/constituents/"+id+"/gifts.json", failures.Failures[0].Endpoint)

	_, failures, err = f.handlers.ListFailures(ctx, nil, ListFailuresInput{Status: "resolved"})
	require.NoError(t, err)
	assert.Empty(t, failures.Failures)

	_, _, err = f.handlers.ListFailures(ctx, nil, ListFailuresInput{Status: "bogus"})
	assert.Error(t, err)
}

func TestPurchaseInputToEvent(t *testing.T) {
	in := order()
	in.Discount = "5"
	in.Items = append(in.Items, PurchaseItemInput{Name: "Tote", Amount: "$12.5", Quantity: 2})

	event, err := in.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, int64(500), event.DiscountCents)
	require.Len(t, event.Items, 2)
	assert.Equal(t, 1, event.Items[0].Quantity)
	assert.Equal(t, int64(1250), event.Items[1].AmountCents)
	assert.Equal(t, 2026, event.Date.Year())

	bad := order()
	bad.Date = "03/01/2026"
	_, err = bad.ToEvent()
	assert.Error(t, err)

	bad = order()
	bad.Items = nil
	_, err = bad.ToEvent()
	assert.Error(t, err)
}

func TestLinkEntities(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.srv.SetTaxonomy("/relationship_types", "Spouse")
	a := f.srv.AddConstituent("Ann", "Lee")
	b := f.srv.AddConstituent("Bo", "Lee")
	f.seed(t, "a", map[string]string{"crm_id": a})
	f.seed(t, "b", map[string]string{"crm_id": b})

	_, out, err := f.handlers.LinkEntities(ctx, nil, LinkEntitiesInput{
		EntityID:         "a",
		RelatedEntityID:  "b",
		RelationshipType: "Spouse",
		GroupID:          "9",
	})
	require.NoError(t, err)
	assert.Equal(t, LinkEntitiesOutput{Relationship: "add", Group: "add"}, out)

	_, out, err = f.handlers.LinkEntities(ctx, nil, LinkEntitiesInput{EntityID: "a", GroupID: "9"})
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Group)
	assert.Len(t, f.srv.GroupMemberships(a), 1)

	_, _, err = f.handlers.LinkEntities(ctx, nil, LinkEntitiesInput{EntityID: "a", RelatedEntityID: "b"})
	assert.Error(t, err)
	_, _, err = f.handlers.LinkEntities(ctx, nil, LinkEntitiesInput{EntityID: "a"})
	assert.Error(t, err)
}
