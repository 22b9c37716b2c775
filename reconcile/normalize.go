// ABOUTME: Normalized comparison of contact values
// ABOUTME: Emails compare lower-cased with +tag base forms, phones by digits, addresses by street and city
package reconcile

import (
	"strings"
	"unicode"

	"github.com/harperreed/crmsync/models"
)

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BaseEmail strips a +tag from the local part: "jane+promo@x.org" -> "jane@x.org".
// Addresses without a tag are returned normalized.
func BaseEmail(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	return local + domain
}

// EmailCandidates normalizes and deduplicates addresses, adding the base form
// of every tagged address right after it.
func EmailCandidates(emails []string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(e string) {
		if e == "" || !strings.Contains(e, "@") || seen[e] {
			return
		}
		seen[e] = true
		out = append(out, e)
	}

	for _, raw := range emails {
		e := NormalizeEmail(raw)
		add(e)
		add(BaseEmail(e))
	}
	return out
}

// EmailMatches reports whether a remote address confirms a candidate: equal
// case-insensitively, or equal once the remote address's tag is removed.
func EmailMatches(remote, candidate string) bool {
	r := NormalizeEmail(remote)
	c := NormalizeEmail(candidate)
	if r == "" || c == "" {
		return false
	}
	return r == c || BaseEmail(r) == c
}

// NormalizePhone keeps digits only.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizePostal(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// SameValue reports whether two records of the same kind hold the same value
// for deduplication purposes.
func SameValue(a, b models.ContactRecord) bool {
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case models.KindEmail:
		return NormalizeEmail(a.Value) != "" && NormalizeEmail(a.Value) == NormalizeEmail(b.Value)

	case models.KindPhone:
		return NormalizePhone(a.Value) != "" && NormalizePhone(a.Value) == NormalizePhone(b.Value)

	case models.KindAddress:
		if normalizeText(a.Value) == "" || normalizeText(a.Value) != normalizeText(b.Value) {
			return false
		}
		if normalizeText(a.City) != normalizeText(b.City) {
			return false
		}
		pa, pb := normalizePostal(a.PostalCode), normalizePostal(b.PostalCode)
		if pa != "" && pb != "" && pa != pb {
			return false
		}
		return true
	}

	return false
}

// attributesDiffer reports whether an existing record with the same value still
// needs an update to carry the wanted type, preferred flag, or address detail.
func attributesDiffer(existing, wanted models.ContactRecord) bool {
	if !wanted.TypeID.IsZero() && wanted.TypeID != existing.TypeID {
		return true
	}
	if wanted.IsPreferred != existing.IsPreferred {
		return true
	}
	if wanted.Kind == models.KindAddress {
		for _, pair := range [][2]string{
			{wanted.State, existing.State},
			{wanted.Country, existing.Country},
			{wanted.PostalCode, existing.PostalCode},
		} {
			if normalizeText(pair[0]) != "" && normalizeText(pair[0]) != normalizeText(pair[1]) {
				return true
			}
		}
	}
	return false
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
