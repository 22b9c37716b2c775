// ABOUTME: Typed helpers for constituent relationships and group memberships
// ABOUTME: Group membership lists always bypass the cache to avoid double adds
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

func relationshipsPath(id models.RemoteID) string {
	return constituentPath(id) + "/constituent_relationships.json"
}

func groupMembershipsPath(id models.RemoteID) string {
	return constituentPath(id) + "/group_memberships"
}

type relationshipWire struct {
	ID                   models.RemoteID `json:"id"`
	RelatedConstituentID models.RemoteID `json:"related_constituent_id"`
	RelationshipTypeID   models.RemoteID `json:"relationship_type_id"`
	ReciprocalTypeID     models.RemoteID `json:"reciprocal_relationship_type_id"`
}

type groupMembershipWire struct {
	ID      models.RemoteID `json:"id"`
	GroupID models.RemoteID `json:"group_id"`
}

func (c *Client) ListRelationships(ctx context.Context, id models.RemoteID) ([]models.Relationship, error) {
	resp, err := c.fetch(ctx, relationshipsPath(id), http.MethodGet, nil, true)
	if err != nil {
		return nil, err
	}

	wires, err := DecodeRecords[relationshipWire](resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.Relationship, 0, len(wires))
	for _, w := range wires {
		out = append(out, models.Relationship(w))
	}
	return out, nil
}

func (c *Client) AddRelationship(ctx context.Context, id models.RemoteID, rel models.Relationship) (models.RemoteID, error) {
	body := Params{
		"related_constituent_id": rel.RelatedConstituentID.String(),
		"relationship_type_id":   rel.RelationshipTypeID.String(),
	}
	if !rel.ReciprocalTypeID.IsZero() {
		body["reciprocal_relationship_type_id"] = rel.ReciprocalTypeID.String()
	}

	resp, err := c.fetch(ctx, relationshipsPath(id), http.MethodPost, body, false)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx, relationshipsPath(id), relationshipsPath(rel.RelatedConstituentID))

	relID, err := createdID(resp)
	if err != nil {
		return "", nil
	}
	return relID, nil
}

// DeleteRelationship removes a relationship through the direct path.
func (c *Client) DeleteRelationship(ctx context.Context, id, relationshipID models.RemoteID) error {
	path := fmt.Sprintf("/constituent_relationships/%s.json", relationshipID)
	if _, err := c.fetch(ctx, path, http.MethodDelete, nil, false); err != nil {
		return err
	}
	c.invalidate(ctx, relationshipsPath(id))
	return nil
}

// ListGroupMemberships never uses the cache.
func (c *Client) ListGroupMemberships(ctx context.Context, id models.RemoteID) ([]models.GroupMembership, error) {
	resp, err := c.fetch(ctx, groupMembershipsPath(id), http.MethodGet, nil, false)
	if err != nil {
		return nil, err
	}

	wires, err := DecodeRecords[groupMembershipWire](resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.GroupMembership, 0, len(wires))
	for _, w := range wires {
		out = append(out, models.GroupMembership(w))
	}
	return out, nil
}

func (c *Client) AddGroupMembership(ctx context.Context, id, groupID models.RemoteID) (models.RemoteID, error) {
	resp, err := c.fetch(ctx, groupMembershipsPath(id), http.MethodPost, Params{"group_id": groupID.String()}, false)
	if err != nil {
		return "", err
	}

	gmID, err := createdID(resp)
	if err != nil {
		return "", nil
	}
	return gmID, nil
}

// DeleteGroupMembership removes a group membership through the direct path.
func (c *Client) DeleteGroupMembership(ctx context.Context, id, groupMembershipID models.RemoteID) error {
	path := fmt.Sprintf("/group_memberships/%s", groupMembershipID)
	if _, err := c.fetch(ctx, path, http.MethodDelete, nil, false); err != nil {
		return err
	}
	c.invalidate(ctx, groupMembershipsPath(id))
	return nil
}
