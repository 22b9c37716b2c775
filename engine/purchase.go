// ABOUTME: Purchase recording and membership sync for local entities
// ABOUTME: Gifts are append-only and recorded once per external id
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/reconcile"
	"github.com/harperreed/crmsync/remote"
)

// PurchaseReport describes one recorded purchase.
type PurchaseReport struct {
	EntityID      string
	ConstituentID models.RemoteID
	Recorded      []models.Payment
	Skipped       []string
	Memberships   []reconcile.MembershipResult
	Journaled     int
}

// RecordPurchase attributes the event, posts each gift not yet recorded for the
// entity, and syncs memberships for membership items.
func (e *Engine) RecordPurchase(ctx context.Context, entityID string, event *models.PurchaseEvent) (*PurchaseReport, error) {
	payments, err := e.attributor.Attribute(ctx, event)
	if err != nil {
		return nil, err
	}

	attrs, err := e.attrs.Attributes(ctx, entityID)
	if err != nil {
		return nil, err
	}

	report := &PurchaseReport{EntityID: entityID}
	report.ConstituentID, _, err = e.ensureConstituent(ctx, entityID, attrs)
	if err != nil {
		return report, fmt.Errorf("failed to resolve constituent for %s: %w", entityID, err)
	}

	var errs []error
	for _, p := range payments {
		key := giftKeyPrefix + p.ExternalID
		if _, done := attrs[key]; done {
			report.Skipped = append(report.Skipped, p.ExternalID)
			continue
		}

		giftID, err := e.client.CreateGift(ctx, report.ConstituentID, p)
		if err != nil {
			if e.record(ctx, entityID, opCreateGift, remote.GiftMutation(report.ConstituentID, p), err) {
				report.Journaled++
			}
			errs = append(errs, fmt.Errorf("failed to record gift %s: %w", p.ExternalID, err))
			continue
		}
		if err := e.markGift(ctx, entityID, p.ExternalID, giftID); err != nil {
			errs = append(errs, err)
		}
		externalID := p.ExternalID
		e.settle(ctx, entityID, func(entry models.JournalEntry) bool {
			return entry.Operation == opCreateGift && giftExternalID(entry) == externalID
		})
		report.Recorded = append(report.Recorded, p)
	}

	start := day(event.Date)
	end := start.AddDate(0, e.termMonths, 0)
	for _, item := range event.Items {
		if item.MembershipLabel == "" {
			continue
		}
		result, journaled, err := e.syncMembership(ctx, entityID, report.ConstituentID, item.MembershipLabel, &start, &end, "order "+event.OrderID)
		if journaled {
			report.Journaled++
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Memberships = append(report.Memberships, result)
	}

	e.logger.Info("purchase recorded", "entity", entityID, "order", event.OrderID,
		"recorded", len(report.Recorded), "skipped", len(report.Skipped))
	return report, errors.Join(errs...)
}

// SyncMembership ensures the entity's constituent holds the labelled membership.
func (e *Engine) SyncMembership(ctx context.Context, entityID, label string, start, end *time.Time) (reconcile.MembershipResult, error) {
	attrs, err := e.attrs.Attributes(ctx, entityID)
	if err != nil {
		return reconcile.MembershipResult{}, err
	}
	id, _, err := e.ensureConstituent(ctx, entityID, attrs)
	if err != nil {
		return reconcile.MembershipResult{}, fmt.Errorf("failed to resolve constituent for %s: %w", entityID, err)
	}

	result, _, err := e.syncMembership(ctx, entityID, id, label, start, end, "")
	return result, err
}

func (e *Engine) syncMembership(ctx context.Context, entityID string, id models.RemoteID, label string, start, end *time.Time, note string) (reconcile.MembershipResult, bool, error) {
	result, err := e.memberships.Sync(ctx, id, label, start, end, note)
	if err == nil {
		// A newer term supersedes any journaled write for the same level.
		e.settle(ctx, entityID, func(entry models.JournalEntry) bool {
			return isMembershipOp(entry.Operation) && membershipLevelOf(entry) == result.LevelID
		})
		return result, false, nil
	}

	journaled := false
	if result.Action == reconcile.ActionAdd || result.Action == reconcile.ActionUpdate {
		journaled = e.record(ctx, entityID, string(result.Action)+"_membership", remote.MembershipMutation(id, result.Membership), err)
	}
	return result, journaled, fmt.Errorf("failed to sync membership %q: %w", label, err)
}

func (e *Engine) markGift(ctx context.Context, entityID, externalID string, giftID models.RemoteID) error {
	value := giftID.String()
	if value == "" {
		value = "recorded"
	}
	return e.attrs.SetAttribute(ctx, entityID, giftKeyPrefix+externalID, value)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
