// ABOUTME: Idempotent helpers for constituent relationships and group memberships
// ABOUTME: Each helper checks remote state before posting so repeated calls never duplicate links
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harperreed/crmsync/models"
)

// LinkStore is the slice of the remote client the link helpers need.
type LinkStore interface {
	Taxonomy(ctx context.Context, name string) ([]models.TaxonomyItem, error)
	ListRelationships(ctx context.Context, id models.RemoteID) ([]models.Relationship, error)
	AddRelationship(ctx context.Context, id models.RemoteID, rel models.Relationship) (models.RemoteID, error)
	ListGroupMemberships(ctx context.Context, id models.RemoteID) ([]models.GroupMembership, error)
	AddGroupMembership(ctx context.Context, id, groupID models.RemoteID) (models.RemoteID, error)
}

type Linker struct {
	store  LinkStore
	logger *slog.Logger
}

func NewLinker(store LinkStore, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{store: store, logger: logger.With("component", "linker")}
}

// EnsureRelationship links a to b with the named relationship type unless an
// identical link already exists.
func (l *Linker) EnsureRelationship(ctx context.Context, a, b models.RemoteID, typeName string) (Action, error) {
	types, err := l.store.Taxonomy(ctx, models.TaxonomyRelationshipTypes)
	if err != nil {
		return "", err
	}

	var typeID models.RemoteID
	for _, t := range types {
		if equalFoldTrim(t.Name, typeName) {
			typeID = t.ID
			break
		}
	}
	if typeID.IsZero() {
		return "", fmt.Errorf("unknown relationship type %q", typeName)
	}

	existing, err := l.store.ListRelationships(ctx, a)
	if err != nil {
		return "", err
	}
	for _, rel := range existing {
		if rel.RelatedConstituentID == b && rel.RelationshipTypeID == typeID {
			return ActionSkip, nil
		}
	}

	if _, err := l.store.AddRelationship(ctx, a, models.Relationship{RelatedConstituentID: b, RelationshipTypeID: typeID}); err != nil {
		return "", err
	}
	l.logger.Info("relationship added", "constituent", a, "related", b, "type", typeName)
	return ActionAdd, nil
}

// EnsureGroupMembership adds the constituent to a group unless it is already a member.
func (l *Linker) EnsureGroupMembership(ctx context.Context, id, groupID models.RemoteID) (Action, error) {
	existing, err := l.store.ListGroupMemberships(ctx, id)
	if err != nil {
		return "", err
	}
	for _, gm := range existing {
		if gm.GroupID == groupID {
			return ActionSkip, nil
		}
	}

	if _, err := l.store.AddGroupMembership(ctx, id, groupID); err != nil {
		return "", err
	}
	l.logger.Info("group membership added", "constituent", id, "group", groupID)
	return ActionAdd, nil
}
