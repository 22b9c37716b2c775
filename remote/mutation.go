// ABOUTME: Replayable descriptions of remote writes
// ABOUTME: Failed writes are journaled as method, endpoint and JSON params and re-sent later
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/harperreed/crmsync/models"
)

// Mutation is a remote write detached from the call that produced it.
type Mutation struct {
	Method   string
	Endpoint string
	Params   Params
}

// Payload encodes the params for storage. Writes without params encode as "".
func (m Mutation) Payload() (string, error) {
	if len(m.Params) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode mutation payload: %w", err)
	}
	return string(data), nil
}

// ParseMutation rebuilds a mutation from its stored form.
func ParseMutation(method, endpoint, payload string) (Mutation, error) {
	m := Mutation{Method: method, Endpoint: endpoint}
	if payload == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(payload), &m.Params); err != nil {
		return m, fmt.Errorf("failed to decode mutation payload: %w", err)
	}
	return m, nil
}

// ContactMutation describes an add, update or delete of a contact record.
func ContactMutation(id models.RemoteID, action string, rec models.ContactRecord) (Mutation, error) {
	switch action {
	case "add":
		return Mutation{Method: http.MethodPost, Endpoint: contactsPath(id, rec.Kind), Params: contactPayload(rec)}, nil
	case "update":
		return Mutation{Method: http.MethodPut, Endpoint: contactPath(id, rec.Kind, rec.ID), Params: contactPayload(rec)}, nil
	case "delete":
		return Mutation{Method: http.MethodDelete, Endpoint: contactPath(id, rec.Kind, rec.ID)}, nil
	}
	return Mutation{}, fmt.Errorf("unknown contact action %q", action)
}

func GiftMutation(id models.RemoteID, p models.Payment) Mutation {
	return Mutation{Method: http.MethodPost, Endpoint: GiftsPath(id), Params: GiftPayload(p)}
}

// MembershipMutation describes an add, or an update when m carries an id.
func MembershipMutation(constituentID models.RemoteID, m models.Membership) Mutation {
	if m.ID.IsZero() {
		return Mutation{Method: http.MethodPost, Endpoint: membershipsPath(constituentID), Params: membershipPayload(m)}
	}
	return Mutation{Method: http.MethodPut, Endpoint: fmt.Sprintf("/memberships/%s", m.ID), Params: membershipPayload(m)}
}

// Apply sends a mutation and drops cached reads of the endpoint and its parent.
func (c *Client) Apply(ctx context.Context, m Mutation) error {
	if _, err := c.fetch(ctx, m.Endpoint, m.Method, m.Params, false); err != nil {
		return err
	}
	c.invalidate(ctx, m.Endpoint, path.Dir(m.Endpoint), constituentsEndpoint)
	return nil
}
