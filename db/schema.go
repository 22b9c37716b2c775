// ABOUTME: Database schema definitions
// ABOUTME: Creates the attribute, failure journal and sync state tables
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS attributes (
	entity_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (entity_id, key)
);

CREATE INDEX IF NOT EXISTS idx_attributes_key ON attributes(key);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	method TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	payload TEXT,
	error_message TEXT,
	attempts INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'resolved')),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sync_log_status ON sync_log(status, id);
CREATE INDEX IF NOT EXISTS idx_sync_log_entity ON sync_log(entity_id);

CREATE TABLE IF NOT EXISTS sync_state (
	job TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	status TEXT NOT NULL CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	updated_at DATETIME NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
