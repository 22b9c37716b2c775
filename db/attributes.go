// ABOUTME: Key/value attribute storage for local entities
// ABOUTME: Holds identity fields, the remote constituent id and idempotency markers
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type AttributeStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAttributeStore(db *sql.DB) *AttributeStore {
	return &AttributeStore{db: db, now: time.Now}
}

// GetAttribute returns the value and whether it was present.
func (s *AttributeStore) GetAttribute(ctx context.Context, entityID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM attributes WHERE entity_id = ? AND key = ?
	`, entityID, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get attribute %s: %w", key, err)
	}
	return value, true, nil
}

func (s *AttributeStore) SetAttribute(ctx context.Context, entityID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attributes (entity_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, entityID, key, value, s.now().UTC())

	if err != nil {
		return fmt.Errorf("failed to set attribute %s: %w", key, err)
	}
	return nil
}

func (s *AttributeStore) DeleteAttribute(ctx context.Context, entityID, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attributes WHERE entity_id = ? AND key = ?`, entityID, key); err != nil {
		return fmt.Errorf("failed to delete attribute %s: %w", key, err)
	}
	return nil
}

// Attributes returns every attribute of an entity.
func (s *AttributeStore) Attributes(ctx context.Context, entityID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM attributes WHERE entity_id = ?
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attrs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		attrs[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attributes: %w", err)
	}
	return attrs, nil
}

// ListEntitiesMatching returns the ids of entities that carry any of the keys.
func (s *AttributeStore) ListEntitiesMatching(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	query := `SELECT DISTINCT entity_id FROM attributes WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `) AND value != '' ORDER BY entity_id`
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return ids, nil
}
