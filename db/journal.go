// ABOUTME: Failure journal stored in the sync_log table
// ABOUTME: Records failed remote mutations under ULID keys for later replay
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/crmsync/models"
)

// ErrEntryNotFound is returned when a journal entry id does not exist.
var ErrEntryNotFound = errors.New("journal entry not found")

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores a new pending entry and fills in its id and timestamps.
func (j *Journal) Record(ctx context.Context, entry *models.JournalEntry) error {
	now := j.now().UTC()
	entry.ID = ulid.Make().String()
	entry.Status = models.JournalStatusPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Attempts == 0 {
		entry.Attempts = 1
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_log (id, entity_id, operation, method, endpoint, payload, error_message, attempts, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.EntityID, entry.Operation, entry.Method, entry.Endpoint,
		entry.Payload, entry.ErrorMessage, entry.Attempts, entry.Status, entry.CreatedAt, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, id string) (*models.JournalEntry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, entity_id, operation, method, endpoint, payload, error_message, attempts, status, created_at, updated_at, resolved_at
		FROM sync_log WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return entry, nil
}

// List returns entries with the given status, oldest first. An empty status lists all.
// A limit of zero or less means no limit.
func (j *Journal) List(ctx context.Context, status string, limit int) ([]models.JournalEntry, error) {
	var where []string
	var args []any
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	return j.query(ctx, where, args, limit)
}

// PendingFor returns the pending entries of one entity, oldest first.
func (j *Journal) PendingFor(ctx context.Context, entityID string) ([]models.JournalEntry, error) {
	return j.query(ctx, []string{"status = ?", "entity_id = ?"}, []any{models.JournalStatusPending, entityID}, 0)
}

func (j *Journal) query(ctx context.Context, where []string, args []any, limit int) ([]models.JournalEntry, error) {
	query := `
		SELECT id, entity_id, operation, method, endpoint, payload, error_message, attempts, status, created_at, updated_at, resolved_at
		FROM sync_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

func (j *Journal) Pending(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	return j.List(ctx, models.JournalStatusPending, limit)
}

func (j *Journal) CountPending(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_log WHERE status = ?`, models.JournalStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

func (j *Journal) Resolve(ctx context.Context, id string) error {
	now := j.now().UTC()
	return j.update(ctx, `
		UPDATE sync_log SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?
	`, models.JournalStatusResolved, now, now, id)
}

// IncrementAttempts bumps the attempt counter and stores the latest error.
func (j *Journal) IncrementAttempts(ctx context.Context, id, errMsg string) error {
	return j.update(ctx, `
		UPDATE sync_log SET attempts = attempts + 1, error_message = ?, updated_at = ? WHERE id = ?
	`, errMsg, j.now().UTC(), id)
}

func (j *Journal) update(ctx context.Context, query string, args ...any) error {
	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	var payload, errorMessage sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.EntityID,
		&entry.Operation,
		&entry.Method,
		&entry.Endpoint,
		&payload,
		&errorMessage,
		&entry.Attempts,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Payload = payload.String
	entry.ErrorMessage = errorMessage.String
	if resolvedAt.Valid {
		entry.ResolvedAt = &resolvedAt.Time
	}
	return &entry, nil
}
