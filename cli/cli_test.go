// ABOUTME: Tests for CLI commands
// ABOUTME: Runs commands against the fake CRM and a temp database, checking printed output
package cli

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/crmtest"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/remote"
)

const orderJSON = `{
	"order_id": "1001",
	"date": "2026-03-01",
	"payment_method": "credit_card",
	"items": [{"name": "Individual Membership", "amount": "75.00", "membership_label": "Individual"}]
}`

func newTestApp(t *testing.T) (*App, *crmtest.Server, *bytes.Buffer) {
	t.Helper()
	srv := crmtest.NewServer(t)
	funds := srv.SetTaxonomy("funds.json", "General")
	srv.SetTaxonomy("membership_levels.json", "Individual")

	cfg := srv.Config()
	cfg.Attribution.GeneralFundID = funds["General"]
	cfg.DatabasePath = filepath.Join(t.TempDir(), "crmsync.db")

	database, err := db.OpenDatabase(cfg.DatabasePath)
	require.NoError(t, err)

	client := remote.New(cfg, remote.WithLogger(config.DiscardLogger()))
	out := &bytes.Buffer{}
	app := newApp(cfg, database, client, out, config.DiscardLogger())
	t.Cleanup(func() { _ = app.Close() })
	return app, srv, out
}

func writeOrder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, []byte(orderJSON), 0644))
	return path
}

func TestAttrCommand(t *testing.T) {
	app, _, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, AttrCommand(ctx, app, []string{"set", "--entity", "e1", "--key", "email", "--value", "ann@example.com"}))
	require.NoError(t, AttrCommand(ctx, app, []string{"set", "--entity", "e1", "--key", "last_name", "--value", "Lee"}))

	out.Reset()
	require.NoError(t, AttrCommand(ctx, app, []string{"get", "--entity", "e1", "--key", "email"}))
	assert.Equal(t, "ann@example.com\n", out.String())

	out.Reset()
	require.NoError(t, AttrCommand(ctx, app, []string{"list", "--entity", "e1"}))
	assert.Equal(t, "email=ann@example.com\nlast_name=Lee\n", out.String())

	assert.Error(t, AttrCommand(ctx, app, []string{"get", "--entity", "e1", "--key", "phone"}))
	assert.Error(t, AttrCommand(ctx, app, []string{"get", "--key", "email"}))
	assert.Error(t, AttrCommand(ctx, app, []string{"explode", "--entity", "e1"}))
	assert.Error(t, AttrCommand(ctx, app, nil))
}

func TestFindCommand(t *testing.T) {
	app, srv, out := newTestApp(t)
	id := srv.AddConstituent("Ann", "Lee", "ann@example.com")

	require.NoError(t, FindCommand(context.Background(), app, []string{"--email", "ann@example.com"}))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "method: email")

	out.Reset()
	require.NoError(t, FindCommand(context.Background(), app, []string{"--email", "zed@example.com"}))
	assert.Contains(t, out.String(), "No confirmed constituent")

	assert.Error(t, FindCommand(context.Background(), app, nil))
}

func TestSyncCommand(t *testing.T) {
	app, srv, out := newTestApp(t)
	ctx := context.Background()
	id := srv.AddConstituent("Ann", "Lee", "ann@example.com")
	require.NoError(t, app.Attrs.SetAttribute(ctx, "e1", "email", "ann@example.com"))
	require.NoError(t, app.Attrs.SetAttribute(ctx, "e1", "phone", "5551234"))

	require.NoError(t, SyncCommand(ctx, app, []string{"--entity", "e1"}))
	assert.Contains(t, out.String(), "e1 -> "+id)
	assert.Contains(t, out.String(), "phone")
	assert.Len(t, srv.Contacts(id, "phone_numbers"), 1)

	assert.Error(t, SyncCommand(ctx, app, nil))
}

func TestSyncAllRecordsJobState(t *testing.T) {
	app, _, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, app.Attrs.SetAttribute(ctx, "e1", "last_name", "Lee"))

	require.NoError(t, SyncAllCommand(ctx, app, nil))
	assert.Contains(t, out.String(), "1 entities")

	state, err := db.GetSyncState(ctx, app.DB, jobSyncAll)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
	assert.NotNil(t, state.LastSyncTime)
}

func TestAttributeCommandWritesNothing(t *testing.T) {
	app, srv, out := newTestApp(t)

	require.NoError(t, AttributeCommand(context.Background(), app, []string{"--order", writeOrder(t)}))
	assert.Contains(t, out.String(), "1001")
	assert.Contains(t, out.String(), "75.00")
	assert.Contains(t, out.String(), "general_fund")
	assert.Equal(t, 0, srv.Writes())

	assert.Error(t, AttributeCommand(context.Background(), app, nil))
}

func TestPayAndReplayCommands(t *testing.T) {
	app, srv, out := newTestApp(t)
	ctx := context.Background()
	id := srv.AddConstituent("Ann", "Lee", "ann@example.com")
	require.NoError(t, app.Attrs.SetAttribute(ctx, "e1", "email", "ann@example.com"))
	order := writeOrder(t)

	srv.FailNext(http.MethodPost, "gifts.json", http.StatusServiceUnavailable, 1)
	err := PayCommand(ctx, app, []string{"--entity", "e1", "--order", order})
	require.Error(t, err)
	assert.Contains(t, out.String(), "journaled")

	out.Reset()
	require.NoError(t, StatusCommand(ctx, app, nil))
	assert.Contains(t, out.String(), "Pending failures")
	assert.Contains(t, out.String(), "create_gift")

	out.Reset()
	require.NoError(t, ReplayCommand(ctx, app, nil))
	assert.Contains(t, out.String(), "resolved")
	assert.Len(t, srv.Gifts(id), 1)

	out.Reset()
	require.NoError(t, PayCommand(ctx, app, []string{"--entity", "e1", "--order", order}))
	assert.Contains(t, out.String(), "already recorded")
	assert.Len(t, srv.Gifts(id), 1)
}

func TestTaxonomyCommand(t *testing.T) {
	app, _, out := newTestApp(t)

	require.NoError(t, TaxonomyCommand(context.Background(), app, []string{"funds", "campaigns"}))
	assert.Contains(t, out.String(), "General")
	assert.Contains(t, out.String(), "(none)")

	assert.Error(t, TaxonomyCommand(context.Background(), app, []string{"colors"}))
}

func TestConfigShowRedactsKey(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "supersecret"
	out := &bytes.Buffer{}

	require.NoError(t, ConfigCommand(cfg, "/tmp/crmsync.yaml", out, []string{"show"}))
	assert.Contains(t, out.String(), "*******cret")
	assert.NotContains(t, out.String(), "supersecret")

	assert.Error(t, ConfigCommand(cfg, "", out, []string{"nope"}))
}

func TestSetAPIKeySaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out := &bytes.Buffer{}

	require.NoError(t, setAPIKey(config.Default(), path, "  new-key \n", out))
	loaded, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new-key", loaded.APIKey)

	assert.Error(t, setAPIKey(config.Default(), path, " ", out))
}

func TestLinkCommand(t *testing.T) {
	app, srv, out := newTestApp(t)
	ctx := context.Background()
	srv.SetTaxonomy("/relationship_types", "Parent")
	a := srv.AddConstituent("Ann", "Lee")
	b := srv.AddConstituent("Cy", "Lee")
	require.NoError(t, app.Attrs.SetAttribute(ctx, "a", "crm_id", a))
	require.NoError(t, app.Attrs.SetAttribute(ctx, "b", "crm_id", b))

	require.NoError(t, LinkCommand(ctx, app, []string{"--entity", "a", "--to", "b", "--type", "Parent"}))
	assert.Contains(t, out.String(), "add a -> b (Parent)")
	assert.Len(t, srv.Relationships(a), 1)

	out.Reset()
	require.NoError(t, LinkCommand(ctx, app, []string{"--entity", "a", "--group", "5"}))
	assert.Contains(t, out.String(), "in group 5")

	assert.Error(t, LinkCommand(ctx, app, []string{"--entity", "a", "--to", "b"}))
	assert.Error(t, LinkCommand(ctx, app, []string{"--entity", "a"}))
}
