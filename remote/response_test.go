// ABOUTME: Tests for response normalization
// ABOUTME: Every observed response shape must yield the same ordered record list
package remote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRecords(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"items envelope", `{"items":[{"id":1},{"id":2}]}`, []string{`{"id":1}`, `{"id":2}`}},
		{"bare array", `[{"id":1},{"id":2}]`, []string{`{"id":1}`, `{"id":2}`}},
		{"single object", `{"id":7,"first_name":"Ann"}`, []string{`{"id":7,"first_name":"Ann"}`}},
		{"empty items", `{"items":[]}`, []string{}},
		{"null items", `{"items":null}`, []string{`{"items":null}`}},
		{"null", `null`, []string{}},
		{"empty body", ``, []string{}},
		{"whitespace", "  \n", []string{}},
		{"array with nulls", `[null,{"id":3}]`, []string{`{"id":3}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NormalizeRecords(json.RawMessage(tt.raw))
			require.NoError(t, err)

			got := make([]string, 0, len(records))
			for _, r := range records {
				got = append(got, string(r))
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeRecordsRejectsScalars(t *testing.T) {
	_, err := NormalizeRecords(json.RawMessage(`"hello"`))
	assert.Error(t, err)

	_, err = NormalizeRecords(json.RawMessage(`42`))
	assert.Error(t, err)
}

func TestDecodeRecordsPropagatesFailure(t *testing.T) {
	resp := failed(503, &APIError{Status: 503})
	_, err := DecodeRecords[idWire](resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
}

func TestDecodeRecordsAcrossShapes(t *testing.T) {
	for _, raw := range []string{`{"items":[{"id":"12"}]}`, `[{"id":12}]`, `{"id":12}`} {
		resp := &Response{Success: true, Data: json.RawMessage(raw)}
		ids, err := DecodeRecords[idWire](resp)
		require.NoError(t, err, raw)
		require.Len(t, ids, 1, raw)
		assert.Equal(t, "12", ids[0].ID.String(), raw)
	}
}

func TestLooseBool(t *testing.T) {
	var w contactWire
	for raw, want := range map[string]bool{
		`{"is_preferred":true}`:    true,
		`{"is_preferred":"1"}`:     true,
		`{"is_preferred":1}`:       true,
		`{"is_preferred":"false"}`: false,
		`{"is_preferred":0}`:       false,
		`{"is_preferred":null}`:    false,
	} {
		w = contactWire{}
		require.NoError(t, json.Unmarshal([]byte(raw), &w))
		assert.Equal(t, want, bool(w.IsPreferred), raw)
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(&TransportError{Err: assert.AnError}))
	assert.True(t, IsRetryable(&RateLimitError{}))
	assert.True(t, IsRetryable(&APIError{Status: 429}))
	assert.True(t, IsRetryable(&APIError{Status: 502}))
	assert.False(t, IsRetryable(&APIError{Status: 404}))
	assert.False(t, IsRetryable(&APIError{Status: 422}))
	assert.False(t, IsRetryable(&DecodeError{Err: assert.AnError}))
	assert.False(t, IsRetryable(&ConfigurationError{Field: "api_key"}))
	assert.False(t, IsRetryable(nil))

	assert.ErrorIs(t, &ConfigurationError{Field: "api_key"}, ErrConfiguration)
	assert.Equal(t, 429, StatusOf(&APIError{Status: 429}))
	assert.Equal(t, 0, StatusOf(assert.AnError))
}
