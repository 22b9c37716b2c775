// ABOUTME: Failure journaling and replay of remote writes
// ABOUTME: Replay converges current state instead of re-sending stale requests blindly
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/remote"
)

const (
	opCreateGift      = "create_gift"
	subjectMembership = "membership"
)

// record journals a failed write and reports whether it was stored.
func (e *Engine) record(ctx context.Context, entityID, operation string, m remote.Mutation, cause error) bool {
	if e.journal == nil {
		return false
	}
	// Bad credentials or config fail every replay the same way.
	if errors.Is(cause, remote.ErrConfiguration) {
		return false
	}

	payload, err := m.Payload()
	if err != nil {
		e.logger.Warn("cannot journal write", "entity", entityID, "operation", operation, "error", err)
		return false
	}

	entry := &models.JournalEntry{
		EntityID:     entityID,
		Operation:    operation,
		Method:       m.Method,
		Endpoint:     m.Endpoint,
		Payload:      payload,
		ErrorMessage: cause.Error(),
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.Error("failed to journal write", "entity", entityID, "operation", operation, "error", err)
		return false
	}

	e.logger.Warn("write journaled", "entity", entityID, "operation", operation, "journal_id", entry.ID, "error", cause)
	return true
}

// settle resolves the entity's pending entries that match, after the state they
// describe has been written by a later call.
func (e *Engine) settle(ctx context.Context, entityID string, match func(models.JournalEntry) bool) {
	if e.journal == nil {
		return
	}
	pending, err := e.journal.PendingFor(ctx, entityID)
	if err != nil {
		e.logger.Warn("cannot read pending journal entries", "entity", entityID, "error", err)
		return
	}
	for _, entry := range pending {
		if !match(entry) {
			continue
		}
		if err := e.journal.Resolve(ctx, entry.ID); err != nil {
			e.logger.Warn("cannot resolve journal entry", "journal_id", entry.ID, "error", err)
			continue
		}
		e.logger.Info("journal entry settled", "entity", entityID, "journal_id", entry.ID, "operation", entry.Operation)
	}
}

// contactKindOf returns the contact kind an operation such as "add_phone" touches.
func contactKindOf(operation string) (models.ContactKind, bool) {
	_, subject, ok := strings.Cut(operation, "_")
	if !ok {
		return "", false
	}
	for _, kind := range models.ContactKinds {
		if subject == string(kind) {
			return kind, true
		}
	}
	return "", false
}

func isMembershipOp(operation string) bool {
	_, subject, _ := strings.Cut(operation, "_")
	return subject == subjectMembership
}

// membershipLevelOf returns the level id of a journaled membership write.
func membershipLevelOf(entry models.JournalEntry) models.RemoteID {
	var body struct {
		LevelID models.RemoteID `json:"membership_level_id"`
	}
	if err := json.Unmarshal([]byte(entry.Payload), &body); err != nil {
		return ""
	}
	return body.LevelID
}

func giftExternalID(entry models.JournalEntry) string {
	var body struct {
		ExternalID string `json:"external_id"`
	}
	if err := json.Unmarshal([]byte(entry.Payload), &body); err != nil {
		return ""
	}
	return body.ExternalID
}

// ReplayReport counts the outcome of a replay pass.
type ReplayReport struct {
	Resolved int
	Failed   int
}

// Replay retries up to limit pending journal entries, oldest first.
func (e *Engine) Replay(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport
	if e.journal == nil {
		return report, nil
	}

	entries, err := e.journal.Pending(ctx, limit)
	if err != nil {
		return report, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := e.replay(ctx, entry); err != nil {
			report.Failed++
			e.logger.Warn("replay failed", "journal_id", entry.ID, "operation", entry.Operation, "error", err)
			if err := e.journal.IncrementAttempts(ctx, entry.ID, err.Error()); err != nil {
				return report, err
			}
			continue
		}

		if err := e.journal.Resolve(ctx, entry.ID); err != nil {
			return report, err
		}
		report.Resolved++
		e.logger.Info("replay succeeded", "journal_id", entry.ID, "operation", entry.Operation)
	}
	return report, nil
}

func (e *Engine) replay(ctx context.Context, entry models.JournalEntry) error {
	if entry.Operation == opCreateGift {
		return e.replayGift(ctx, entry)
	}
	if kind, ok := contactKindOf(entry.Operation); ok {
		return e.replayContacts(ctx, entry.EntityID, kind)
	}
	if isMembershipOp(entry.Operation) {
		return e.replayMembership(ctx, entry)
	}

	m, err := remote.ParseMutation(entry.Method, entry.Endpoint, entry.Payload)
	if err != nil {
		return err
	}
	return e.client.Apply(ctx, m)
}

// replayContacts reconciles the kind against the entity's current attributes,
// so a write that a later sync already made is not repeated.
func (e *Engine) replayContacts(ctx context.Context, entityID string, kind models.ContactKind) error {
	attrs, err := e.attrs.Attributes(ctx, entityID)
	if err != nil {
		return err
	}
	id := models.RemoteID(strings.TrimSpace(attrs[AttrCRMID]))
	if id.IsZero() {
		return fmt.Errorf("entity %s has no %s", entityID, AttrCRMID)
	}

	rec, ok := recordOf(ContactRecordsOf(attrs), kind)
	if !ok {
		e.logger.Info("no local record left to replay", "entity", entityID, "kind", kind)
		return nil
	}
	_, err = e.reconciler.Reconcile(ctx, id, rec)
	return err
}

// replayGift posts a journaled gift unless the entity already records it.
func (e *Engine) replayGift(ctx context.Context, entry models.JournalEntry) error {
	externalID := giftExternalID(entry)
	if externalID != "" {
		_, done, err := e.attrs.GetAttribute(ctx, entry.EntityID, giftKeyPrefix+externalID)
		if err != nil {
			return err
		}
		if done {
			e.logger.Info("gift already recorded, not re-sending", "entity", entry.EntityID, "external_id", externalID)
			return nil
		}
	}

	m, err := remote.ParseMutation(entry.Method, entry.Endpoint, entry.Payload)
	if err != nil {
		return err
	}
	if err := e.client.Apply(ctx, m); err != nil {
		return err
	}
	if externalID == "" {
		return nil
	}
	return e.markGift(ctx, entry.EntityID, externalID, "")
}

// replayMembership re-runs the level sync from the journaled term, which
// updates or skips a membership a later purchase already wrote.
func (e *Engine) replayMembership(ctx context.Context, entry models.JournalEntry) error {
	var body struct {
		LevelID   models.RemoteID `json:"membership_level_id"`
		StartDate string          `json:"start_date"`
		EndDate   string          `json:"end_date"`
		Note      string          `json:"note"`
	}
	if err := json.Unmarshal([]byte(entry.Payload), &body); err != nil {
		return fmt.Errorf("failed to decode membership payload: %w", err)
	}
	if body.LevelID.IsZero() {
		return fmt.Errorf("journaled membership has no level")
	}

	start, err := parseDay(body.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDay(body.EndDate)
	if err != nil {
		return err
	}

	id, _, err := e.attrs.GetAttribute(ctx, entry.EntityID, AttrCRMID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("entity %s has no %s", entry.EntityID, AttrCRMID)
	}

	_, err = e.memberships.SyncLevel(ctx, models.RemoteID(strings.TrimSpace(id)),
		models.TaxonomyItem{ID: body.LevelID}, start, end, body.Note)
	return err
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid journaled date %q: %w", s, err)
	}
	return &t, nil
}
