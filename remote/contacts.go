// ABOUTME: Typed helpers for email, phone and street address sub-records
// ABOUTME: Every mutation invalidates the kind's cached list and constituent search results
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

func contactsPath(id models.RemoteID, kind models.ContactKind) string {
	return fmt.Sprintf("%s/%s", constituentPath(id), collection(kind))
}

func contactPath(id models.RemoteID, kind models.ContactKind, recordID models.RemoteID) string {
	return fmt.Sprintf("%s/%s", contactsPath(id, kind), recordID)
}

// ListContacts returns every record of kind attached to the constituent.
func (c *Client) ListContacts(ctx context.Context, id models.RemoteID, kind models.ContactKind, useCache bool) ([]models.ContactRecord, error) {
	if collection(kind) == "" {
		return nil, fmt.Errorf("unknown contact kind %q", kind)
	}

	resp, err := c.fetch(ctx, contactsPath(id, kind), http.MethodGet, nil, useCache)
	if err != nil {
		return nil, err
	}

	wires, err := DecodeRecords[contactWire](resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.ContactRecord, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toRecord(kind))
	}
	return out, nil
}

// AddContact creates a record and returns its id.
func (c *Client) AddContact(ctx context.Context, id models.RemoteID, rec models.ContactRecord) (models.RemoteID, error) {
	resp, err := c.fetch(ctx, contactsPath(id, rec.Kind), http.MethodPost, contactPayload(rec), false)
	if err != nil {
		return "", err
	}
	c.invalidateContacts(ctx, id, rec.Kind)

	newID, err := createdID(resp)
	if err != nil {
		// The record exists remotely even when the body omitted its id.
		c.logger.Warn("contact created without id in response", "constituent", id, "kind", rec.Kind)
		return "", nil
	}
	return newID, nil
}

// UpdateContact replaces the record identified by rec.ID.
func (c *Client) UpdateContact(ctx context.Context, id models.RemoteID, rec models.ContactRecord) error {
	if _, err := c.fetch(ctx, contactPath(id, rec.Kind, rec.ID), http.MethodPut, contactPayload(rec), false); err != nil {
		return err
	}
	c.invalidateContacts(ctx, id, rec.Kind)
	return nil
}

func (c *Client) DeleteContact(ctx context.Context, id models.RemoteID, kind models.ContactKind, recordID models.RemoteID) error {
	if _, err := c.fetch(ctx, contactPath(id, kind, recordID), http.MethodDelete, nil, false); err != nil {
		return err
	}
	c.invalidateContacts(ctx, id, kind)
	return nil
}

func (c *Client) invalidateContacts(ctx context.Context, id models.RemoteID, kind models.ContactKind) {
	c.invalidate(ctx, contactsPath(id, kind), constituentPath(id), constituentsEndpoint)
}
