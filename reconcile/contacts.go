// ABOUTME: Contact sub-record reconciliation enforcing at most one record per kind
// ABOUTME: Plans skip/update/add with extras deleted first, and reports per-step status on partial failure
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harperreed/crmsync/models"
)

// Action is what reconciliation did, or will do, to one record.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionUpdate Action = "update"
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// StepStatus tracks one remote call of a plan.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// ContactStore is the slice of the remote client the reconciler needs.
type ContactStore interface {
	ListContacts(ctx context.Context, id models.RemoteID, kind models.ContactKind, useCache bool) ([]models.ContactRecord, error)
	AddContact(ctx context.Context, id models.RemoteID, rec models.ContactRecord) (models.RemoteID, error)
	UpdateContact(ctx context.Context, id models.RemoteID, rec models.ContactRecord) error
	DeleteContact(ctx context.Context, id models.RemoteID, kind models.ContactKind, recordID models.RemoteID) error
}

// Step is one add, update or delete call.
type Step struct {
	Action Action
	Record models.ContactRecord
	Status StepStatus
	Err    error
}

// Result describes the outcome for one kind. Action is the primary action on
// the surviving record; Steps lists every remote call in execution order.
type Result struct {
	ConstituentID models.RemoteID
	Kind          models.ContactKind
	Action        Action
	RecordID      models.RemoteID
	Steps         []Step
}

// Writes counts the remote mutations that succeeded.
func (r Result) Writes() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepDone {
			n++
		}
	}
	return n
}

// PartialReconciliationError reports a plan that failed after at least one
// step succeeded. It unwraps to the first failure.
type PartialReconciliationError struct {
	Result Result
}

func (e *PartialReconciliationError) Error() string {
	parts := make([]string, 0, len(e.Result.Steps))
	for _, s := range e.Result.Steps {
		part := fmt.Sprintf("%s %s", s.Action, s.Status)
		if !s.Record.ID.IsZero() {
			part = fmt.Sprintf("%s %s %s", s.Action, s.Record.ID, s.Status)
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("partial reconciliation of %s for constituent %s: [%s]: %v",
		e.Result.Kind, e.Result.ConstituentID, strings.Join(parts, ", "), e.Unwrap())
}

func (e *PartialReconciliationError) Unwrap() error {
	for _, s := range e.Result.Steps {
		if s.Status == StepFailed {
			return s.Err
		}
	}
	return nil
}

// FailedSteps returns the steps that did not complete.
func (e *PartialReconciliationError) FailedSteps() []Step {
	var out []Step
	for _, s := range e.Result.Steps {
		if s.Status != StepDone {
			out = append(out, s)
		}
	}
	return out
}

type Reconciler struct {
	store  ContactStore
	logger *slog.Logger
}

func NewReconciler(store ContactStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger.With("component", "reconciler")}
}

// Reconcile converges the constituent's records of rec.Kind to a single record
// holding rec's value.
func (r *Reconciler) Reconcile(ctx context.Context, constituentID models.RemoteID, rec models.ContactRecord) (Result, error) {
	result := Result{ConstituentID: constituentID, Kind: rec.Kind}

	existing, err := r.store.ListContacts(ctx, constituentID, rec.Kind, false)
	if err != nil {
		return result, err
	}

	result = planIncremental(constituentID, existing, rec)
	return r.execute(ctx, result)
}

// planIncremental chooses the surviving record and the calls needed to reach it.
func planIncremental(constituentID models.RemoteID, existing []models.ContactRecord, rec models.ContactRecord) Result {
	result := Result{ConstituentID: constituentID, Kind: rec.Kind}

	chosen := -1
	valueMatch := false
	for i, e := range existing {
		if SameValue(e, rec) {
			chosen, valueMatch = i, true
			break
		}
	}
	if chosen < 0 {
		for i, e := range existing {
			if e.IsPreferred {
				chosen = i
				break
			}
		}
	}
	if chosen < 0 && len(existing) > 0 {
		chosen = 0
	}

	for i, e := range existing {
		if i != chosen {
			result.Steps = append(result.Steps, Step{Action: ActionDelete, Record: e, Status: StepPending})
		}
	}

	if chosen < 0 {
		result.Action = ActionAdd
		result.Steps = append(result.Steps, Step{Action: ActionAdd, Record: rec, Status: StepPending})
		return result
	}

	current := existing[chosen]
	result.RecordID = current.ID

	if valueMatch && !attributesDiffer(current, rec) {
		result.Action = ActionSkip
		return result
	}

	updated := rec
	updated.ID = current.ID
	if updated.TypeID.IsZero() {
		updated.TypeID = current.TypeID
	}
	result.Action = ActionUpdate
	result.Steps = append(result.Steps, Step{Action: ActionUpdate, Record: updated, Status: StepPending})
	return result
}

// Resync deletes every record of kind and adds the first supplied record of
// that kind. With no supplied record of the kind nothing is touched.
func (r *Reconciler) Resync(ctx context.Context, constituentID models.RemoteID, kind models.ContactKind, records []models.ContactRecord) (Result, error) {
	result := Result{ConstituentID: constituentID, Kind: kind, Action: ActionSkip}

	var wanted *models.ContactRecord
	for i := range records {
		if records[i].Kind == kind {
			wanted = &records[i]
			break
		}
	}
	if wanted == nil {
		return result, nil
	}

	existing, err := r.store.ListContacts(ctx, constituentID, kind, false)
	if err != nil {
		return result, err
	}

	for _, e := range existing {
		result.Steps = append(result.Steps, Step{Action: ActionDelete, Record: e, Status: StepPending})
	}
	add := *wanted
	add.ID = ""
	result.Action = ActionAdd
	result.Steps = append(result.Steps, Step{Action: ActionAdd, Record: add, Status: StepPending})

	return r.execute(ctx, result)
}

// RetryFailed re-executes only the steps that did not complete.
func (r *Reconciler) RetryFailed(ctx context.Context, perr *PartialReconciliationError) (Result, error) {
	result := perr.Result
	result.Steps = append([]Step(nil), perr.Result.Steps...)
	for i := range result.Steps {
		if result.Steps[i].Status == StepFailed {
			result.Steps[i].Status = StepPending
			result.Steps[i].Err = nil
		}
	}
	return r.execute(ctx, result)
}

// execute runs pending steps in order and stops at the first failure.
func (r *Reconciler) execute(ctx context.Context, result Result) (Result, error) {
	succeeded := 0
	for i := range result.Steps {
		step := &result.Steps[i]
		if step.Status == StepDone {
			succeeded++
			continue
		}

		err := r.apply(ctx, result.ConstituentID, step)
		if err != nil {
			step.Status = StepFailed
			step.Err = err
			r.logger.Warn("contact step failed", "constituent", result.ConstituentID, "kind", result.Kind,
				"action", step.Action, "record", step.Record.ID, "error", err)

			// Nothing changed remotely: report the failure as is.
			if succeeded == 0 {
				return result, err
			}
			return result, &PartialReconciliationError{Result: result}
		}

		step.Status = StepDone
		succeeded++
		if step.Action == ActionAdd {
			result.RecordID = step.Record.ID
		}
		r.logger.Info("contact reconciled", "constituent", result.ConstituentID, "kind", result.Kind,
			"action", step.Action, "record", step.Record.ID)
	}

	if len(result.Steps) == 0 {
		r.logger.Debug("contact unchanged", "constituent", result.ConstituentID, "kind", result.Kind)
	}
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, constituentID models.RemoteID, step *Step) error {
	switch step.Action {
	case ActionDelete:
		return r.store.DeleteContact(ctx, constituentID, step.Record.Kind, step.Record.ID)
	case ActionUpdate:
		return r.store.UpdateContact(ctx, constituentID, step.Record)
	case ActionAdd:
		id, err := r.store.AddContact(ctx, constituentID, step.Record)
		if err != nil {
			return err
		}
		step.Record.ID = id
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}
