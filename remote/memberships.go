// ABOUTME: Typed helpers for constituent memberships
// ABOUTME: Lists and creates through the nested path, updates through the direct /memberships/{id} path
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

func membershipsPath(id models.RemoteID) string {
	return constituentPath(id) + "/memberships"
}

// ListMemberships always reads fresh state.
func (c *Client) ListMemberships(ctx context.Context, id models.RemoteID) ([]models.Membership, error) {
	resp, err := c.fetch(ctx, membershipsPath(id), http.MethodGet, nil, false)
	if err != nil {
		return nil, err
	}

	wires, err := DecodeRecords[membershipWire](resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.Membership, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toMembership())
	}
	return out, nil
}

func (c *Client) AddMembership(ctx context.Context, id models.RemoteID, m models.Membership) (models.RemoteID, error) {
	resp, err := c.fetch(ctx, membershipsPath(id), http.MethodPost, membershipPayload(m), false)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx, membershipsPath(id))

	newID, err := createdID(resp)
	if err != nil {
		return "", nil
	}
	return newID, nil
}

// UpdateMembership must use the non-nested path; the nested form is rejected remotely.
func (c *Client) UpdateMembership(ctx context.Context, constituentID models.RemoteID, m models.Membership) error {
	if m.ID.IsZero() {
		return fmt.Errorf("membership update requires an id")
	}
	path := fmt.Sprintf("/memberships/%s", m.ID)
	if _, err := c.fetch(ctx, path, http.MethodPut, membershipPayload(m), false); err != nil {
		return err
	}
	c.invalidate(ctx, membershipsPath(constituentID))
	return nil
}

func (c *Client) DeleteMembership(ctx context.Context, constituentID, membershipID models.RemoteID) error {
	path := fmt.Sprintf("%s/%s", membershipsPath(constituentID), membershipID)
	if _, err := c.fetch(ctx, path, http.MethodDelete, nil, false); err != nil {
		return err
	}
	c.invalidate(ctx, membershipsPath(constituentID))
	return nil
}
