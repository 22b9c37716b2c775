// ABOUTME: Membership level resolution and membership upsert
// ABOUTME: Resolves levels by configured id first and remote name second; price matching is not used
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
)

// ErrLevelUnresolved is returned when a membership label maps to no level.
var ErrLevelUnresolved = errors.New("membership level could not be resolved")

// MembershipStore is the slice of the remote client membership sync needs.
type MembershipStore interface {
	Taxonomy(ctx context.Context, name string) ([]models.TaxonomyItem, error)
	ListMemberships(ctx context.Context, id models.RemoteID) ([]models.Membership, error)
	AddMembership(ctx context.Context, id models.RemoteID, m models.Membership) (models.RemoteID, error)
	UpdateMembership(ctx context.Context, constituentID models.RemoteID, m models.Membership) error
}

type MembershipSyncer struct {
	store  MembershipStore
	levels map[string]string
	logger *slog.Logger
}

// NewMembershipSyncer takes the configured label -> level id table.
func NewMembershipSyncer(store MembershipStore, levels map[string]string, logger *slog.Logger) *MembershipSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipSyncer{store: store, levels: levels, logger: logger.With("component", "membership")}
}

// ResolveLevel maps a local label to a remote level: configured id first, then
// a remote level whose name equals the label case-insensitively.
func (s *MembershipSyncer) ResolveLevel(ctx context.Context, label string) (models.TaxonomyItem, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.TaxonomyItem{}, fmt.Errorf("%w: empty label", ErrLevelUnresolved)
	}

	if id := s.levels[label]; id != "" {
		return models.TaxonomyItem{ID: models.RemoteID(id), Name: label}, nil
	}
	// Case-insensitive fallback in sorted key order so the winner never depends on map order.
	configured := make([]string, 0, len(s.levels))
	for k := range s.levels {
		configured = append(configured, k)
	}
	sort.Strings(configured)
	for _, k := range configured {
		if strings.EqualFold(strings.TrimSpace(k), label) && s.levels[k] != "" {
			return models.TaxonomyItem{ID: models.RemoteID(s.levels[k]), Name: k}, nil
		}
	}

	levels, err := s.store.Taxonomy(ctx, models.TaxonomyMembershipLevels)
	if err != nil {
		return models.TaxonomyItem{}, err
	}
	for _, level := range levels {
		if strings.EqualFold(strings.TrimSpace(level.Name), label) {
			return level, nil
		}
	}

	return models.TaxonomyItem{}, fmt.Errorf("%w: %q", ErrLevelUnresolved, label)
}

// MembershipResult describes what Sync did. On a failed write, Action and
// Membership describe the write that was attempted.
type MembershipResult struct {
	Action       Action
	MembershipID models.RemoteID
	LevelID      models.RemoteID
	Membership   models.Membership
}

// Sync ensures the constituent holds a membership of the labelled level with the
// given term. An existing membership of the same level is updated in place.
func (s *MembershipSyncer) Sync(ctx context.Context, constituentID models.RemoteID, label string, start, end *time.Time, note string) (MembershipResult, error) {
	level, err := s.ResolveLevel(ctx, label)
	if err != nil {
		return MembershipResult{}, err
	}
	return s.SyncLevel(ctx, constituentID, level, start, end, note)
}

// SyncLevel is Sync for an already resolved level.
func (s *MembershipSyncer) SyncLevel(ctx context.Context, constituentID models.RemoteID, level models.TaxonomyItem, start, end *time.Time, note string) (MembershipResult, error) {
	wanted := models.Membership{LevelID: level.ID, LevelName: level.Name, StartDate: start, EndDate: end, Note: note}
	result := MembershipResult{LevelID: level.ID}

	existing, err := s.store.ListMemberships(ctx, constituentID)
	if err != nil {
		return result, err
	}

	for _, m := range existing {
		if m.LevelID != level.ID {
			continue
		}
		result.MembershipID = m.ID
		if sameDay(m.StartDate, start) && sameDay(m.EndDate, end) {
			result.Action = ActionSkip
			return result, nil
		}

		wanted.ID = m.ID
		if wanted.StartDate == nil {
			wanted.StartDate = m.StartDate
		}
		result.Action = ActionUpdate
		result.Membership = wanted
		if err := s.store.UpdateMembership(ctx, constituentID, wanted); err != nil {
			return result, err
		}
		s.logger.Info("membership updated", "constituent", constituentID, "membership", m.ID, "level", level.ID)
		return result, nil
	}

	result.Action = ActionAdd
	result.Membership = wanted
	id, err := s.store.AddMembership(ctx, constituentID, wanted)
	if err != nil {
		return result, err
	}
	result.MembershipID = id
	s.logger.Info("membership added", "constituent", constituentID, "membership", id, "level", level.ID)
	return result, nil
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return b == nil
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
