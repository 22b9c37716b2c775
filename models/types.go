// ABOUTME: Data models for remote CRM entities and local purchase events
// ABOUTME: Defines Constituent, ContactRecord, Membership, Payment, and taxonomy structs
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RemoteID is an opaque identifier assigned by the remote CRM.
// The API returns ids as JSON numbers in some responses and strings in others.
type RemoteID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid remote id %s: %w", data, err)
		}
		*id = RemoteID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid remote id %s: %w", data, err)
	}
	*id = RemoteID(n.String())
	return nil
}

// IsZero reports whether the id is absent.
func (id RemoteID) IsZero() bool {
	return id == "" || id == "0"
}

func (id RemoteID) String() string {
	return string(id)
}

// ContactKind identifies one of the contact sub-record collections.
type ContactKind string

const (
	KindEmail   ContactKind = "email"
	KindPhone   ContactKind = "phone"
	KindAddress ContactKind = "address"
)

// ContactKinds lists every kind in reconciliation order.
var ContactKinds = []ContactKind{KindEmail, KindPhone, KindAddress}

// ContactRecord is an email, phone, or street address attached to a constituent.
// Value holds the address, the phone number, or the street line depending on Kind.
type ContactRecord struct {
	ID          RemoteID    `json:"id,omitempty"`
	Kind        ContactKind `json:"kind"`
	Value       string      `json:"value"`
	IsPreferred bool        `json:"is_preferred"`
	TypeID      RemoteID    `json:"type_id,omitempty"`

	// Address-only fields.
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Constituent struct {
	ID        RemoteID `json:"id"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	OrgName   string   `json:"org_name,omitempty"`
	IsOrg     bool     `json:"is_org,omitempty"`

	// Embedded sub-records are nil when the response did not include them.
	EmailAddresses  []ContactRecord `json:"email_addresses,omitempty"`
	PhoneNumbers    []ContactRecord `json:"phone_numbers,omitempty"`
	StreetAddresses []ContactRecord `json:"street_addresses,omitempty"`
}

// DisplayName returns the organization name or "first last".
func (c *Constituent) DisplayName() string {
	if c.IsOrg && c.OrgName != "" {
		return c.OrgName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Membership struct {
	ID        RemoteID   `json:"id,omitempty"`
	LevelID   RemoteID   `json:"level_id"`
	LevelName string     `json:"level_name,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// Payment is a gift record. Payments are append-only and keyed by ExternalID.
type Payment struct {
	ExternalID    string    `json:"external_id"`
	AmountCents   int64     `json:"amount_cents"`
	Date          time.Time `json:"date"`
	FundID        RemoteID  `json:"fund_id"`
	CategoryID    RemoteID  `json:"category_id,omitempty"`
	CampaignID    RemoteID  `json:"campaign_id,omitempty"`
	GiftTypeID    RemoteID  `json:"gift_type_id,omitempty"`
	PaymentTypeID RemoteID  `json:"payment_type_id,omitempty"`
	Note          string    `json:"note,omitempty"`
}

// FormatAmount renders cents as a fixed two-decimal string, e.g. 7500 -> "75.00".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseAmount reads a decimal amount such as "75", "75.5" or "$1,075.00" as cents.
func ParseAmount(s string) (int64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	neg := strings.HasPrefix(clean, "-")
	clean = strings.TrimPrefix(clean, "-")

	whole, frac, _ := strings.Cut(clean, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	if whole == "" {
		whole = "0"
	}

	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

// TaxonomyItem is one entry of a remote reference list (fund, campaign, gift category, ...).
type TaxonomyItem struct {
	ID   RemoteID `json:"id"`
	Name string   `json:"name"`
}

// Taxonomy list names.
const (
	TaxonomyFunds             = "funds"
	TaxonomyCampaigns         = "campaigns"
	TaxonomyGiftCategories    = "gift_categories"
	TaxonomyGiftTypes         = "gift_types"
	TaxonomyPaymentTypes      = "payment_types"
	TaxonomyRelationshipTypes = "relationship_types"
	TaxonomyMembershipLevels  = "membership_levels"
)

type Relationship struct {
	ID                   RemoteID `json:"id,omitempty"`
	RelatedConstituentID RemoteID `json:"related_constituent_id"`
	RelationshipTypeID   RemoteID `json:"relationship_type_id"`
	ReciprocalTypeID     RemoteID `json:"reciprocal_relationship_type_id,omitempty"`
}

type GroupMembership struct {
	ID      RemoteID `json:"id,omitempty"`
	GroupID RemoteID `json:"group_id"`
}

// Purchase categories used for payment attribution.
const (
	CategoryMembership    = "membership"
	CategoryLanguageClass = "language_class"
	CategoryEvents        = "events"
	CategoryOther         = "other"
)

// Payment method constants for the originating order.
const (
	MethodCreditCard   = "credit_card"
	MethodBankTransfer = "bank_transfer"
	MethodCheck        = "check"
	MethodCash         = "cash"
)

// PurchaseEvent is a placed order as seen by the reconciliation engine.
type PurchaseEvent struct {
	OrderID       string         `json:"order_id"`
	Date          time.Time      `json:"date"`
	PaymentMethod string         `json:"payment_method"`
	Coupons       []string       `json:"coupons,omitempty"`
	DiscountCents int64          `json:"discount_cents,omitempty"`
	Items         []PurchaseItem `json:"items"`
}

// TotalCents sums the line amounts of every item.
func (e *PurchaseEvent) TotalCents() int64 {
	var total int64
	for _, item := range e.Items {
		total += item.AmountCents
	}
	return total
}

type PurchaseItem struct {
	Name        string   `json:"name"`
	Categories  []string `json:"categories,omitempty"`
	Quantity    int      `json:"quantity"`
	AmountCents int64    `json:"amount_cents"`
	FundMarker  string   `json:"fund_marker,omitempty"`

	// MembershipLabel names the membership type sold by this item, if any.
	MembershipLabel string `json:"membership_label,omitempty"`
}

// Journal entry status constants.
const (
	JournalStatusPending  = "pending"
	JournalStatusResolved = "resolved"
)

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// JournalEntry records one failed remote mutation so it can be replayed later.
type JournalEntry struct {
	ID           string     `json:"id"`
	EntityID     string     `json:"entity_id"`
	Operation    string     `json:"operation"`
	Method       string     `json:"method"`
	Endpoint     string     `json:"endpoint"`
	Payload      string     `json:"payload,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

type SyncState struct {
	Job          string     `json:"job"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
