// ABOUTME: Tests for CRM data models
// ABOUTME: Validates remote id decoding, amount formatting, and display names
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteIDUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected RemoteID
	}{
		{"number", `{"id": 1234}`, "1234"},
		{"string", `{"id": "abc-9"}`, "abc-9"},
		{"padded string", `{"id": " 77 "}`, "77"},
		{"null", `{"id": null}`, ""},
		{"missing", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				ID RemoteID `json:"id"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.input), &out))
			assert.Equal(t, tt.expected, out.ID)
		})
	}
}

func TestRemoteIDUnmarshalRejectsObjects(t *testing.T) {
	var id RemoteID
	err := json.Unmarshal([]byte(`{"nested": true}`), &id)
	assert.Error(t, err)
}

func TestRemoteIDIsZero(t *testing.T) {
	assert.True(t, RemoteID("").IsZero())
	assert.True(t, RemoteID("0").IsZero())
	assert.False(t, RemoteID("12").IsZero())
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents    int64
		expected string
	}{
		{7500, "75.00"},
		{5, "0.05"},
		{0, "0.00"},
		{123456, "1234.56"},
		{-250, "-2.50"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.expected {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.expected)
		}
	}
}

func TestParseAmount(t *testing.T) {
	valid := map[string]int64{
		"75":        7500,
		"75.00":     7500,
		"75.5":      7550,
		".05":       5,
		"$1,075.00": 107500,
		"-2.50":     -250,
	}
	for in, want := range valid {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", ".", "abc", "1.234"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestConstituentDisplayName(t *testing.T) {
	person := &Constituent{FirstName: "Jane", LastName: "Doe"}
	assert.Equal(t, "Jane Doe", person.DisplayName())

	org := &Constituent{OrgName: "Alliance Française", IsOrg: true}
	assert.Equal(t, "Alliance Française", org.DisplayName())

	firstOnly := &Constituent{FirstName: "Cher"}
	assert.Equal(t, "Cher", firstOnly.DisplayName())
}

func TestEmbeddedRecordsNilWhenAbsent(t *testing.T) {
	var without Constituent
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "first_name": "A"}`), &without))
	assert.Nil(t, without.EmailAddresses)

	var withEmpty Constituent
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "email_addresses": []}`), &withEmpty))
	assert.NotNil(t, withEmpty.EmailAddresses)
	assert.Empty(t, withEmpty.EmailAddresses)
}

func TestPurchaseEventTotal(t *testing.T) {
	ev := &PurchaseEvent{Items: []PurchaseItem{{AmountCents: 5000}, {AmountCents: 2500}}}
	assert.Equal(t, int64(7500), ev.TotalCents())
}
