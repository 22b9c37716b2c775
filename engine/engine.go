// ABOUTME: Orchestrates matching, contact reconciliation, payments and memberships for local entities
// ABOUTME: Reads identity from the attribute store and journals every failed remote write
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/payment"
	"github.com/harperreed/crmsync/reconcile"
	"github.com/harperreed/crmsync/remote"
)

// Attribute keys read and written by the engine.
const (
	AttrFirstName  = "first_name"
	AttrLastName   = "last_name"
	AttrOrgName    = "org_name"
	AttrEmail      = "email"
	AttrAltEmails  = "alt_emails"
	AttrPhone      = "phone"
	AttrStreet     = "street"
	AttrCity       = "city"
	AttrState      = "state"
	AttrPostalCode = "postal_code"
	AttrCountry    = "country"
	AttrCRMID      = "crm_id"
	AttrSyncedAt   = "crm_synced_at"

	giftKeyPrefix = "gift:"
)

// IdentityKeys are the attributes that make an entity syncable.
var IdentityKeys = []string{AttrEmail, AttrLastName, AttrOrgName}

// ErrNoIdentity means the entity has neither a name nor an email to match on.
var ErrNoIdentity = errors.New("entity has no name or email")

// AttributeStore is the local key/value store for entities.
type AttributeStore interface {
	GetAttribute(ctx context.Context, entityID, key string) (string, bool, error)
	SetAttribute(ctx context.Context, entityID, key, value string) error
	Attributes(ctx context.Context, entityID string) (map[string]string, error)
	ListEntitiesMatching(ctx context.Context, keys ...string) ([]string, error)
}

// Journal records failed writes for replay.
type Journal interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
	Pending(ctx context.Context, limit int) ([]models.JournalEntry, error)
	PendingFor(ctx context.Context, entityID string) ([]models.JournalEntry, error)
	Resolve(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id, errMsg string) error
}

type Engine struct {
	client      *remote.Client
	attrs       AttributeStore
	journal     Journal
	matcher     *reconcile.Matcher
	reconciler  *reconcile.Reconciler
	memberships *reconcile.MembershipSyncer
	linker      *reconcile.Linker
	attributor  *payment.Attributor
	termMonths  int
	logger      *slog.Logger
	now         func() time.Time
}

func New(client *remote.Client, attrs AttributeStore, journal Journal, cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	term := cfg.Membership.TermMonths
	if term <= 0 {
		term = 12
	}
	matcher := reconcile.NewMatcher(client, logger)
	matcher.StrictNames = cfg.Matcher.StrictNames
	if cfg.Matcher.MaxVerify > 0 {
		matcher.MaxVerify = cfg.Matcher.MaxVerify
	}

	return &Engine{
		client:      client,
		attrs:       attrs,
		journal:     journal,
		matcher:     matcher,
		reconciler:  reconcile.NewReconciler(client, logger),
		memberships: reconcile.NewMembershipSyncer(client, cfg.Membership.Levels, logger),
		linker:      reconcile.NewLinker(client, logger),
		attributor:  payment.NewAttributor(client, cfg.Attribution, logger),
		termMonths:  term,
		logger:      logger.With("component", "engine"),
		now:         time.Now,
	}
}

// Matcher exposes the constituent matcher for direct lookups.
func (e *Engine) Matcher() *reconcile.Matcher {
	return e.matcher
}

// Attributor exposes the payment attributor for previews.
func (e *Engine) Attributor() *payment.Attributor {
	return e.attributor
}

// Identity is the matching input derived from an entity's attributes.
type Identity struct {
	Name   string
	Emails []string
	Fields remote.ConstituentFields
}

// IdentityOf derives the display name, emails and create fields of an entity.
func IdentityOf(attrs map[string]string) Identity {
	fields := remote.ConstituentFields{
		FirstName: strings.TrimSpace(attrs[AttrFirstName]),
		LastName:  strings.TrimSpace(attrs[AttrLastName]),
		OrgName:   strings.TrimSpace(attrs[AttrOrgName]),
	}
	name := strings.TrimSpace(fields.FirstName + " " + fields.LastName)
	if name == "" && fields.OrgName != "" {
		name = fields.OrgName
		fields.IsOrg = true
	}

	var emails []string
	for _, raw := range append([]string{attrs[AttrEmail]}, strings.Split(attrs[AttrAltEmails], ",")...) {
		if v := strings.TrimSpace(raw); v != "" {
			emails = append(emails, v)
		}
	}

	return Identity{Name: name, Emails: emails, Fields: fields}
}

// ContactRecordsOf builds the wanted contact records of an entity, at most one per kind.
func ContactRecordsOf(attrs map[string]string) []models.ContactRecord {
	var records []models.ContactRecord
	if v := strings.TrimSpace(attrs[AttrEmail]); v != "" {
		records = append(records, models.ContactRecord{Kind: models.KindEmail, Value: v, IsPreferred: true})
	}
	if v := strings.TrimSpace(attrs[AttrPhone]); v != "" {
		records = append(records, models.ContactRecord{Kind: models.KindPhone, Value: v, IsPreferred: true})
	}
	if v := strings.TrimSpace(attrs[AttrStreet]); v != "" {
		records = append(records, models.ContactRecord{
			Kind:        models.KindAddress,
			Value:       v,
			IsPreferred: true,
			City:        strings.TrimSpace(attrs[AttrCity]),
			State:       strings.TrimSpace(attrs[AttrState]),
			PostalCode:  strings.TrimSpace(attrs[AttrPostalCode]),
			Country:     strings.TrimSpace(attrs[AttrCountry]),
		})
	}
	return records
}

// ensureConstituent returns the remote id for the entity, matching or creating
// the constituent and storing crm_id when it was not known yet.
func (e *Engine) ensureConstituent(ctx context.Context, entityID string, attrs map[string]string) (models.RemoteID, string, error) {
	if id := strings.TrimSpace(attrs[AttrCRMID]); id != "" {
		return models.RemoteID(id), "stored", nil
	}

	ident := IdentityOf(attrs)
	if ident.Name == "" && len(ident.Emails) == 0 {
		return "", "", ErrNoIdentity
	}

	match, err := e.matcher.FindConstituent(ctx, ident.Name, ident.Emails)
	if err != nil {
		return "", "", err
	}

	var id models.RemoteID
	method := "created"
	if match != nil {
		id = match.ID
		method = match.Method
	} else {
		id, err = e.client.CreateConstituent(ctx, ident.Fields)
		if err != nil {
			return "", "", err
		}
		e.logger.Info("constituent created", "entity", entityID, "constituent", id)
	}

	if err := e.attrs.SetAttribute(ctx, entityID, AttrCRMID, id.String()); err != nil {
		return "", "", err
	}
	attrs[AttrCRMID] = id.String()
	return id, method, nil
}
