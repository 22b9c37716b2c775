package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(openTestDB(t))

	first := &models.JournalEntry{
		EntityID:     "e1",
		Operation:    "add_contact",
		Method:       "POST",
		Endpoint:     "/constituents/101/phone_numbers",
		Payload:      `{"number":"5551234"}`,
		ErrorMessage: "503",
	}
	second := &models.JournalEntry{EntityID: "e2", Operation: "create_gift", Method: "POST", Endpoint: "/constituents/102/gifts"}
	require.NoError(t, j.Record(ctx, first))
	require.NoError(t, j.Record(ctx, second))
	assert.Len(t, first.ID, 26)
	assert.Equal(t, 1, first.Attempts)

	pending, err := j.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest entry first")
	assert.Equal(t, `{"number":"5551234"}`, pending[0].Payload)

	limited, err := j.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, j.IncrementAttempts(ctx, first.ID, "still down"))
	got, err := j.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "still down", got.ErrorMessage)
	assert.Nil(t, got.ResolvedAt)

	require.NoError(t, j.Resolve(ctx, first.ID))
	got, err = j.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JournalStatusResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)

	n, err := j.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := j.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestJournalUnknownEntry(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(openTestDB(t))

	_, err := j.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.ErrorIs(t, j.Resolve(ctx, "missing"), ErrEntryNotFound)
	assert.ErrorIs(t, j.IncrementAttempts(ctx, "missing", "x"), ErrEntryNotFound)
}

func TestJournalPendingFor(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(openTestDB(t))

	a1 := &models.JournalEntry{EntityID: "a", Operation: "add_phone", Method: "POST", Endpoint: "/constituents/1/phone_numbers"}
	b1 := &models.JournalEntry{EntityID: "b", Operation: "add_phone", Method: "POST", Endpoint: "/constituents/2/phone_numbers"}
	a2 := &models.JournalEntry{EntityID: "a", Operation: "create_gift", Method: "POST", Endpoint: "/constituents/1/gifts"}
	for _, e := range []*models.JournalEntry{a1, b1, a2} {
		require.NoError(t, j.Record(ctx, e))
	}
	require.NoError(t, j.Resolve(ctx, a2.ID))

	got, err := j.PendingFor(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a1.ID, got[0].ID)

	got, err = j.PendingFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
