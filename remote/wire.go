// ABOUTME: Wire formats for remote CRM payloads
// ABOUTME: Tolerates loosely typed fields such as booleans sent as "1" or "true"
package remote

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
)

// looseBool decodes true, "true", "1", 1 and their negations.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch s {
	case "true", "1", "yes", "t":
		*b = true
	default:
		*b = false
	}
	return nil
}

const dateLayout = "2006-01-02"

// looseDate decodes "2006-01-02", RFC 3339 timestamps, or null.
type looseDate struct {
	t *time.Time
}

func (d *looseDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		d.t = nil
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			d.t = &parsed
			return nil
		}
	}
	d.t = nil
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// collection returns the nested path segment for a contact kind.
func collection(kind models.ContactKind) string {
	switch kind {
	case models.KindEmail:
		return "email_addresses"
	case models.KindPhone:
		return "phone_numbers"
	case models.KindAddress:
		return "street_addresses"
	}
	return ""
}

// contactWire is the union of the three contact sub-record payloads.
type contactWire struct {
	ID          models.RemoteID `json:"id"`
	IsPreferred looseBool       `json:"is_preferred"`

	Address            string          `json:"address"`
	EmailAddressTypeID models.RemoteID `json:"email_address_type_id"`

	Number            string          `json:"number"`
	PhoneNumberTypeID models.RemoteID `json:"phone_number_type_id"`

	Street              string          `json:"street"`
	City                string          `json:"city"`
	State               string          `json:"state"`
	PostalCode          string          `json:"postal_code"`
	Country             string          `json:"country"`
	StreetAddressTypeID models.RemoteID `json:"street_address_type_id"`
}

func (w contactWire) toRecord(kind models.ContactKind) models.ContactRecord {
	rec := models.ContactRecord{
		ID:          w.ID,
		Kind:        kind,
		IsPreferred: bool(w.IsPreferred),
	}
	switch kind {
	case models.KindEmail:
		rec.Value = w.Address
		rec.TypeID = w.EmailAddressTypeID
	case models.KindPhone:
		rec.Value = w.Number
		rec.TypeID = w.PhoneNumberTypeID
	case models.KindAddress:
		rec.Value = w.Street
		rec.TypeID = w.StreetAddressTypeID
		rec.City = w.City
		rec.State = w.State
		rec.PostalCode = w.PostalCode
		rec.Country = w.Country
	}
	return rec
}

// contactPayload builds the flat request body for a contact record.
func contactPayload(rec models.ContactRecord) Params {
	p := Params{"is_preferred": rec.IsPreferred}
	switch rec.Kind {
	case models.KindEmail:
		p["address"] = rec.Value
		if !rec.TypeID.IsZero() {
			p["email_address_type_id"] = rec.TypeID.String()
		}
	case models.KindPhone:
		p["number"] = rec.Value
		if !rec.TypeID.IsZero() {
			p["phone_number_type_id"] = rec.TypeID.String()
		}
	case models.KindAddress:
		p["street"] = rec.Value
		p["city"] = rec.City
		p["state"] = rec.State
		p["postal_code"] = rec.PostalCode
		p["country"] = rec.Country
		if !rec.TypeID.IsZero() {
			p["street_address_type_id"] = rec.TypeID.String()
		}
	}
	return p
}

type constituentWire struct {
	ID              models.RemoteID `json:"id"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	OrgName         string          `json:"org_name"`
	IsOrg           looseBool       `json:"is_org"`
	EmailAddresses  *[]contactWire  `json:"email_addresses"`
	PhoneNumbers    *[]contactWire  `json:"phone_numbers"`
	StreetAddresses *[]contactWire  `json:"street_addresses"`
}

func (w constituentWire) toConstituent() models.Constituent {
	c := models.Constituent{
		ID:        w.ID,
		FirstName: w.FirstName,
		LastName:  w.LastName,
		OrgName:   w.OrgName,
		IsOrg:     bool(w.IsOrg),
	}
	c.EmailAddresses = embedded(w.EmailAddresses, models.KindEmail)
	c.PhoneNumbers = embedded(w.PhoneNumbers, models.KindPhone)
	c.StreetAddresses = embedded(w.StreetAddresses, models.KindAddress)
	return c
}

// embedded keeps the nil/empty distinction: nil means the response omitted the collection.
func embedded(wires *[]contactWire, kind models.ContactKind) []models.ContactRecord {
	if wires == nil {
		return nil
	}
	out := make([]models.ContactRecord, 0, len(*wires))
	for _, w := range *wires {
		out = append(out, w.toRecord(kind))
	}
	return out
}

type membershipWire struct {
	ID        models.RemoteID `json:"id"`
	LevelID   models.RemoteID `json:"membership_level_id"`
	LevelName string          `json:"membership_level_name"`
	StartDate looseDate       `json:"start_date"`
	EndDate   looseDate       `json:"end_date"`
	Note      string          `json:"note"`
}

func (w membershipWire) toMembership() models.Membership {
	return models.Membership{
		ID:        w.ID,
		LevelID:   w.LevelID,
		LevelName: w.LevelName,
		StartDate: w.StartDate.t,
		EndDate:   w.EndDate.t,
		Note:      w.Note,
	}
}

func membershipPayload(m models.Membership) Params {
	p := Params{"membership_level_id": m.LevelID.String()}
	if s := formatDate(m.StartDate); s != "" {
		p["start_date"] = s
	}
	if s := formatDate(m.EndDate); s != "" {
		p["end_date"] = s
	}
	if m.Note != "" {
		p["note"] = m.Note
	}
	return p
}

type taxonomyWire struct {
	ID          models.RemoteID `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
}

// idWire extracts the id from a create response.
type idWire struct {
	ID models.RemoteID `json:"id"`
}
