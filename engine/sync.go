// ABOUTME: Entity sync flows for contact records
// ABOUTME: Incremental sync converges each kind to one record; resync replaces them wholesale
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

// SyncReport describes one entity sync.
type SyncReport struct {
	EntityID      string
	ConstituentID models.RemoteID
	MatchMethod   string
	Contacts      []reconcile.Result
	Journaled     int
}

// Created reports whether the constituent was created by this sync.
func (r *SyncReport) Created() bool {
	return r.MatchMethod == "created"
}

// SyncEntity pushes the entity's identity and contact records to the CRM.
func (e *Engine) SyncEntity(ctx context.Context, entityID string) (*SyncReport, error) {
	return e.sync(ctx, entityID, false)
}

// ResyncEntity replaces every remote record of each supplied kind.
func (e *Engine) ResyncEntity(ctx context.Context, entityID string) (*SyncReport, error) {
	return e.sync(ctx, entityID, true)
}

func (e *Engine) sync(ctx context.Context, entityID string, full bool) (*SyncReport, error) {
	attrs, err := e.attrs.Attributes(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("entity %s has no attributes", entityID)
	}

	report := &SyncReport{EntityID: entityID}
	report.ConstituentID, report.MatchMethod, err = e.ensureConstituent(ctx, entityID, attrs)
	if err != nil {
		return report, fmt.Errorf("failed to resolve constituent for %s: %w", entityID, err)
	}

	records := ContactRecordsOf(attrs)
	var errs []error
	for _, kind := range models.ContactKinds {
		var result reconcile.Result
		if full {
			result, err = e.reconciler.Resync(ctx, report.ConstituentID, kind, records)
		} else {
			rec, ok := recordOf(records, kind)
			if !ok {
				continue
			}
			result, err = e.reconciler.Reconcile(ctx, report.ConstituentID, rec)
		}

		report.Contacts = append(report.Contacts, result)
		if err != nil {
			report.Journaled += e.journalSteps(ctx, entityID, result, err)
			errs = append(errs, fmt.Errorf("failed to reconcile %s: %w", kind, err))
			continue
		}
		e.settle(ctx, entityID, func(entry models.JournalEntry) bool {
			k, ok := contactKindOf(entry.Operation)
			return ok && k == kind
		})
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}

	if err := e.attrs.SetAttribute(ctx, entityID, AttrSyncedAt, e.now().UTC().Format(time.RFC3339)); err != nil {
		return report, err
	}

	e.logger.Info("entity synced", "entity", entityID, "constituent", report.ConstituentID,
		"match", report.MatchMethod, "full", full)
	return report, nil
}

// SyncAll syncs every entity that carries identity attributes and keeps going
// past individual failures.
func (e *Engine) SyncAll(ctx context.Context) ([]*SyncReport, error) {
	ids, err := e.attrs.ListEntitiesMatching(ctx, IdentityKeys...)
	if err != nil {
		return nil, err
	}

	var reports []*SyncReport
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := e.SyncEntity(ctx, id)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			e.logger.Warn("entity sync failed", "entity", id, "error", err)
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

func recordOf(records []models.ContactRecord, kind models.ContactKind) (models.ContactRecord, bool) {
	for _, r := range records {
		if r.Kind == kind {
			return r, true
		}
	}
	return models.ContactRecord{}, false
}

// journalSteps records every step of a failed plan that did not complete.
func (e *Engine) journalSteps(ctx context.Context, entityID string, result reconcile.Result, cause error) int {
	n := 0
	for _, step := range result.Steps {
		if step.Status == reconcile.StepDone {
			continue
		}
		m, err := remote.ContactMutation(result.ConstituentID, string(step.Action), step.Record)
		if err != nil {
			e.logger.Warn("cannot journal contact step", "entity", entityID, "action", step.Action, "error", err)
			continue
		}
		stepErr := step.Err
		if stepErr == nil {
			stepErr = cause
		}
		if e.record(ctx, entityID, string(step.Action)+"_"+string(result.Kind), m, stepErr) {
			n++
		}
	}
	return n
}
