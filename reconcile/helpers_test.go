// ABOUTME: Shared fixtures for reconcile tests
// ABOUTME: Builds remote clients against the fake CRM with logging discarded
package reconcile

import (
	"testing"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/crmtest"
	"github.com/harperreed/crmsync/remote"
)

func newClient(t *testing.T, srv *crmtest.Server) *remote.Client {
	t.Helper()
	c := remote.New(srv.Config(), remote.WithLogger(config.DiscardLogger()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}
