// ABOUTME: Tests for contact value normalization
// ABOUTME: Covers tagged email bases, phone digits and address equality rules
package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/crmsync/models"
)

func TestBaseEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"jane+promo@x.com", "jane@x.com"},
		{" Jane+Promo@X.com ", "jane@x.com"},
		{"jane@x.com", "jane@x.com"},
		{"+only@x.com", "+only@x.com"},
		{"not-an-email", "not-an-email"},
	}

	for _, tt := range tests {
		if got := BaseEmail(tt.input); got != tt.expected {
			t.Errorf("BaseEmail(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestEmailCandidates(t *testing.T) {
	got := EmailCandidates([]string{"Jane+Promo@x.com", "jane@x.com", "", "bogus", "JANE+promo@X.COM", "bob@y.org"})
	assert.Equal(t, []string{"jane+promo@x.com", "jane@x.com", "bob@y.org"}, got)
	assert.Empty(t, EmailCandidates(nil))
}

func TestEmailMatches(t *testing.T) {
	assert.True(t, EmailMatches("Jane@X.com", "jane@x.com"))
	assert.True(t, EmailMatches("jane+promo@x.com", "jane@x.com"), "tagged remote confirms base candidate")
	assert.False(t, EmailMatches("jane@x.com", "jane+promo@x.com"), "candidates carry their own base form")
	assert.False(t, EmailMatches("jane.doe@x.com", "jane@x.com"))
	assert.False(t, EmailMatches("", "jane@x.com"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "8645550100", NormalizePhone("(864) 555-0100"))
	assert.Equal(t, "8645550100", NormalizePhone("864-555-0100"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestSameValue(t *testing.T) {
	phone := func(v string) models.ContactRecord { return models.ContactRecord{Kind: models.KindPhone, Value: v} }
	email := func(v string) models.ContactRecord { return models.ContactRecord{Kind: models.KindEmail, Value: v} }
	addr := func(street, city, postal string) models.ContactRecord {
		return models.ContactRecord{Kind: models.KindAddress, Value: street, City: city, PostalCode: postal}
	}

	tests := []struct {
		name string
		a, b models.ContactRecord
		want bool
	}{
		{"phone formats", phone("(864) 555-0100"), phone("864-555-0100"), true},
		{"different phones", phone("864-555-0100"), phone("864-555-0101"), false},
		{"empty phones", phone("ext."), phone(""), false},
		{"email case", email("Alice@Example.org"), email("alice@example.org"), true},
		{"email tags differ", email("alice+x@example.org"), email("alice@example.org"), false},
		{"address case", addr("12 Main St", "Greenville", "29601"), addr("12 main st", "GREENVILLE", "29601"), true},
		{"address postal one side", addr("12 Main St", "Greenville", ""), addr("12 Main St", "Greenville", "29601"), true},
		{"address postal differs", addr("12 Main St", "Greenville", "29601"), addr("12 Main St", "Greenville", "29602"), false},
		{"address city differs", addr("12 Main St", "Greenville", ""), addr("12 Main St", "Easley", ""), false},
		{"kinds differ", phone("1"), email("1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameValue(tt.a, tt.b))
		})
	}
}
