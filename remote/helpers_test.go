// ABOUTME: Tests for the typed endpoint helpers
// ABOUTME: Verifies paths, payload fields and cache policy for each remote resource
package remote

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/crmtest"
	"github.com/harperreed/crmsync/models"
)

func TestConstituentCreateAndUpdate(t *testing.T) {
	srv := crmtest.NewServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	id, err := c.CreateConstituent(ctx, ConstituentFields{FirstName: "Ann", LastName: "Lee"})
	require.NoError(t, err)
	require.False(t, id.IsZero())

	stored := srv.Constituent(id.String())
	assert.Equal(t, "Ann", stored["first_name"])
	assert.NotContains(t, stored, "email_addresses", "sub-records are never embedded in the payload")

	got, err := c.GetConstituent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Lee", got.LastName)

	require.NoError(t, c.UpdateConstituent(ctx, id, Params{"last_name": "Leigh"}))

	got, err = c.GetConstituent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Leigh", got.LastName, "update invalidates the cached record")
	assert.NotNil(t, got.EmailAddresses)
}

func TestContactLifecycle(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	c := newTestClient(t, srv)
	ctx := context.Background()

	phoneID, err := c.AddContact(ctx, id, models.ContactRecord{
		Kind: models.KindPhone, Value: "864-555-0100", IsPreferred: true, TypeID: "3",
	})
	require.NoError(t, err)
	require.False(t, phoneID.IsZero())

	stored := srv.Contacts(id.String(), "phone_numbers")
	require.Len(t, stored, 1)
	assert.Equal(t, "864-555-0100", stored[0]["number"])
	assert.Equal(t, "3", stored[0]["phone_number_type_id"])
	assert.Equal(t, true, stored[0]["is_preferred"])

	require.NoError(t, c.UpdateContact(ctx, id, models.ContactRecord{
		ID: phoneID, Kind: models.KindPhone, Value: "864-555-0199", IsPreferred: true,
	}))

	phones, err := c.ListContacts(ctx, id, models.KindPhone, false)
	require.NoError(t, err)
	require.Len(t, phones, 1)
	assert.Equal(t, "864-555-0199", phones[0].Value)
	assert.Equal(t, models.KindPhone, phones[0].Kind)

	require.NoError(t, c.DeleteContact(ctx, id, models.KindPhone, phoneID))
	phones, err = c.ListContacts(ctx, id, models.KindPhone, false)
	require.NoError(t, err)
	assert.Empty(t, phones)
}

func TestAddressPayload(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	c := newTestClient(t, srv)

	_, err := c.AddContact(context.Background(), id, models.ContactRecord{
		Kind: models.KindAddress, Value: "12 Main St", City: "Greenville", State: "SC",
		PostalCode: "29601", Country: "US", IsPreferred: true,
	})
	require.NoError(t, err)

	addrs, err := c.ListContacts(context.Background(), id, models.KindAddress, false)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "12 Main St", addrs[0].Value)
	assert.Equal(t, "Greenville", addrs[0].City)
	assert.Equal(t, "29601", addrs[0].PostalCode)
}

func TestCreateGiftSendsTwoDecimalAmounts(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Alice", "Smith", "alice@example.org"))
	c := newTestClient(t, srv)

	date := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	giftID, err := c.CreateGift(context.Background(), id, models.Payment{
		ExternalID:    "1001",
		AmountCents:   7500,
		Date:          date,
		FundID:        "11",
		CategoryID:    "12",
		GiftTypeID:    "13",
		PaymentTypeID: "14",
		Note:          "Membership x1 (order 1001)",
	})
	require.NoError(t, err)
	assert.False(t, giftID.IsZero())

	gifts := srv.Gifts(id.String())
	require.Len(t, gifts, 1)
	g := gifts[0]
	assert.Equal(t, "75.00", g["received_amount"])
	assert.Equal(t, "75.00", g["deductible_amount"])
	assert.Equal(t, "75.00", g["deposited_amount"])
	assert.Equal(t, "2026-03-14", g["received_date"])
	assert.Equal(t, "2026-03-14", g["deposit_date"])
	assert.Equal(t, "1001", g["external_id"])
	assert.Equal(t, "11", g["fund_id"])
	assert.Equal(t, "14", g["payment_type_id"])
	assert.NotContains(t, g, "campaign_id", "unresolved ids are omitted")
}

func TestCreateGiftRequiresFund(t *testing.T) {
	srv := crmtest.NewServer(t)
	c := newTestClient(t, srv)

	_, err := c.CreateGift(context.Background(), "5", models.Payment{ExternalID: "x", AmountCents: 100})
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Writes())
}

func TestMembershipUpdateUsesDirectPath(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	memID := srv.AddMembership(id.String(), "7")
	c := newTestClient(t, srv)
	ctx := context.Background()

	list, err := c.ListMemberships(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RemoteID("7"), list[0].LevelID)

	end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	list[0].EndDate = &end
	require.NoError(t, c.UpdateMembership(ctx, id, list[0]))

	assert.Equal(t, 1, srv.CallsExact(http.MethodPut, "/memberships/"+memID))
	stored := srv.Memberships(id.String())
	require.Len(t, stored, 1)
	assert.Equal(t, "2027-01-01", stored[0]["end_date"])

	newID, err := c.AddMembership(ctx, id, models.Membership{LevelID: "8"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteMembership(ctx, id, newID))
	assert.Len(t, srv.Memberships(id.String()), 1)
}

func TestTaxonomyLookupHelpers(t *testing.T) {
	srv := crmtest.NewServer(t)
	ids := srv.SetTaxonomy("/gift_categories.json", "Memberships", "Misc.")
	c := newTestClient(t, srv)

	items, err := c.Taxonomy(context.Background(), models.TaxonomyGiftCategories)
	require.NoError(t, err)

	item, ok := FindByName(items, "  memberships ")
	require.True(t, ok)
	assert.Equal(t, models.RemoteID(ids["Memberships"]), item.ID)

	_, ok = FindByName(items, "Event Fee")
	assert.False(t, ok)

	byID, ok := FindByID(items, models.RemoteID(ids["Misc."]))
	require.True(t, ok)
	assert.Equal(t, "Misc.", byID.Name)

	_, err = c.Taxonomy(context.Background(), "colors")
	assert.Error(t, err)
}

func TestGroupMembershipListBypassesCache(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.AddGroupMembership(ctx, id, "55")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		groups, err := c.ListGroupMemberships(ctx, id)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, models.RemoteID("55"), groups[0].GroupID)
	}
	assert.Equal(t, 2, srv.CallsExact(http.MethodGet, "/constituents/"+id.String()+"/group_memberships"))
}

func TestDeleteGroupMembership(t *testing.T) {
	srv := crmtest.NewServer(t)
	id := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	c := newTestClient(t, srv)
	ctx := context.Background()

	gmID, err := c.AddGroupMembership(ctx, id, "55")
	require.NoError(t, err)
	require.False(t, gmID.IsZero())

	// Prime a cached read of the list so the delete has something to invalidate.
	_, err = c.Request(ctx, "/constituents/"+id.String()+"/group_memberships", http.MethodGet, nil, true)
	require.NoError(t, err)

	require.NoError(t, c.DeleteGroupMembership(ctx, id, gmID))
	assert.Equal(t, 1, srv.CallsExact(http.MethodDelete, "/group_memberships/"+gmID.String()))
	assert.Empty(t, srv.GroupMemberships(id.String()))

	resp, err := c.Request(ctx, "/constituents/"+id.String()+"/group_memberships", http.MethodGet, nil, true)
	require.NoError(t, err)
	assert.False(t, resp.Cached, "delete invalidates the constituent's group list")

	groups, err := c.ListGroupMemberships(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestRelationshipLifecycle(t *testing.T) {
	srv := crmtest.NewServer(t)
	a := models.RemoteID(srv.AddConstituent("Jane", "Doe"))
	b := models.RemoteID(srv.AddConstituent("John", "Doe"))
	c := newTestClient(t, srv)
	ctx := context.Background()

	relID, err := c.AddRelationship(ctx, a, models.Relationship{RelatedConstituentID: b, RelationshipTypeID: "4"})
	require.NoError(t, err)

	rels, err := c.ListRelationships(ctx, a)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, b, rels[0].RelatedConstituentID)

	require.NoError(t, c.DeleteRelationship(ctx, a, relID))
	rels, err = c.ListRelationships(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, rels)
	assert.Equal(t, 1, srv.CallsExact(http.MethodDelete, "/constituent_relationships/"+relID.String()+".json"))
}
