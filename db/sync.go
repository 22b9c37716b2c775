// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks status and last completion time of sync jobs
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// GetSyncState retrieves the state of a job, or nil if it never ran.
func GetSyncState(ctx context.Context, db *sql.DB, job string) (*models.SyncState, error) {
	row := db.QueryRowContext(ctx, `
		SELECT job, last_sync_time, status, error_message, updated_at
		FROM sync_state
		WHERE job = ?
	`, job)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// UpdateSyncStatus sets the status of a job. errMsg is cleared when empty.
func UpdateSyncStatus(ctx context.Context, db *sql.DB, job, status, errMsg string) error {
	var errorMsgVal sql.NullString
	if errMsg != "" {
		errorMsgVal = sql.NullString{String: errMsg, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (job, status, error_message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, job, status, errorMsgVal, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// MarkSynced records a successful run of a job.
func MarkSynced(ctx context.Context, db *sql.DB, job string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (job, last_sync_time, status, updated_at)
		VALUES (?, ?, 'idle', ?)
		ON CONFLICT(job) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			status = 'idle',
			error_message = NULL,
			updated_at = excluded.updated_at
	`, job, at.UTC(), time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to mark sync complete: %w", err)
	}
	return nil
}

// GetAllSyncStates retrieves the state of every job.
func GetAllSyncStates(ctx context.Context, db *sql.DB) ([]models.SyncState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT job, last_sync_time, status, error_message, updated_at
		FROM sync_state
		ORDER BY job
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}
	return states, nil
}

func scanState(row scanner) (*models.SyncState, error) {
	var state models.SyncState
	var lastSyncTime sql.NullTime
	var errorMessage sql.NullString

	if err := row.Scan(&state.Job, &lastSyncTime, &state.Status, &errorMessage, &state.UpdatedAt); err != nil {
		return nil, err
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	state.ErrorMessage = errorMessage.String
	return &state, nil
}
