// ABOUTME: Relationship and group links between synced entities
// ABOUTME: Both sides are resolved to constituents before linking
package engine

import (
	"context"
	"fmt"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/reconcile"
)

// LinkEntities relates entity a to entity b with the named relationship type.
func (e *Engine) LinkEntities(ctx context.Context, a, b, typeName string) (reconcile.Action, error) {
	idA, err := e.constituentOf(ctx, a)
	if err != nil {
		return "", err
	}
	idB, err := e.constituentOf(ctx, b)
	if err != nil {
		return "", err
	}
	if idA == idB {
		return "", fmt.Errorf("%s and %s resolve to the same constituent %s", a, b, idA)
	}

	action, err := e.linker.EnsureRelationship(ctx, idA, idB, typeName)
	if err != nil {
		return "", fmt.Errorf("failed to link %s to %s: %w", a, b, err)
	}
	return action, nil
}

// JoinGroup adds the entity's constituent to a remote group.
func (e *Engine) JoinGroup(ctx context.Context, entityID string, groupID models.RemoteID) (reconcile.Action, error) {
	id, err := e.constituentOf(ctx, entityID)
	if err != nil {
		return "", err
	}

	action, err := e.linker.EnsureGroupMembership(ctx, id, groupID)
	if err != nil {
		return "", fmt.Errorf("failed to add %s to group %s: %w", entityID, groupID, err)
	}
	return action, nil
}

func (e *Engine) constituentOf(ctx context.Context, entityID string) (models.RemoteID, error) {
	attrs, err := e.attrs.Attributes(ctx, entityID)
	if err != nil {
		return "", err
	}
	id, _, err := e.ensureConstituent(ctx, entityID, attrs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve constituent for %s: %w", entityID, err)
	}
	return id, nil
}
