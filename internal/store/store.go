// Package store is the modernc.org/sqlite-backed implementation of
// channel.Store, channel.Recoverer, and connector.QueueStore (spec §3,
// §4.1 T1-T4, §4.4 recovery). One *Store instance serves every channel;
// tables are namespaced by channel_id rather than one schema per channel,
// which keeps EnsureChannelTables a cheap idempotent no-op after the first
// call instead of a dynamic CREATE TABLE per channel name.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/connector"
)

// Store is a SQLite-backed persistence layer, opened once per process and
// shared by every running Channel.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	migrated map[string]bool
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema migration. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across connections
	s := &Store{db: db, migrated: make(map[string]bool)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		channel_id    TEXT NOT NULL,
		message_id    INTEGER NOT NULL,
		server_id     TEXT NOT NULL,
		received_date TIMESTAMP NOT NULL,
		processed     BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (channel_id, message_id)
	);

	CREATE TABLE IF NOT EXISTS connector_messages (
		channel_id             TEXT NOT NULL,
		message_id             INTEGER NOT NULL,
		meta_data_id           INTEGER NOT NULL,
		status                 INTEGER NOT NULL,
		send_attempts          INTEGER NOT NULL DEFAULT 0,
		send_date              TIMESTAMP,
		response_date          TIMESTAMP,
		processing_error       TEXT,
		response_error         TEXT,
		post_processor_error   TEXT,
		error_code             INTEGER,
		source_map             TEXT,
		channel_map            TEXT,
		connector_map          TEXT,
		response_map           TEXT,
		PRIMARY KEY (channel_id, message_id, meta_data_id)
	);
	CREATE INDEX IF NOT EXISTS idx_cm_status
		ON connector_messages(channel_id, meta_data_id, status);

	CREATE TABLE IF NOT EXISTS content (
		channel_id   TEXT NOT NULL,
		message_id   INTEGER NOT NULL,
		meta_data_id INTEGER NOT NULL,
		content_type INTEGER NOT NULL,
		data         TEXT NOT NULL,
		data_type    TEXT,
		encrypted    BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (channel_id, message_id, meta_data_id, content_type)
	);

	CREATE TABLE IF NOT EXISTS statistics (
		channel_id   TEXT NOT NULL,
		meta_data_id INTEGER NOT NULL,
		status       INTEGER NOT NULL,
		count        INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (channel_id, meta_data_id, status)
	);

	CREATE TABLE IF NOT EXISTS queue_entries (
		channel_id   TEXT NOT NULL,
		meta_data_id INTEGER NOT NULL,
		message_id   INTEGER NOT NULL,
		payload      TEXT NOT NULL,
		PRIMARY KEY (channel_id, meta_data_id, message_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ChannelTablesExist reports whether EnsureChannelTables has been called
// for channel_id in this process or channel_id has at least one persisted
// message row — spec §3's "durable when channel tables exist" is
// satisfied here by the shared schema always existing and this check
// standing in for "has this channel ever run" (used to decide whether
// LastMessageID should seed from zero or from the store).
func (s *Store) ChannelTablesExist(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.migrated[channelID] {
		return true
	}
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE channel_id = ? LIMIT 1`, channelID)
	if err := row.Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// EnsureChannelTables is a no-op beyond the process-wide schema migration
// already applied in Open: the shared-schema design (channel_id as a
// partitioning column, not a per-channel table name) means there is
// nothing left to provision per channel.
func (s *Store) EnsureChannelTables(ctx context.Context, channelID string) error {
	s.mu.Lock()
	s.migrated[channelID] = true
	s.mu.Unlock()
	return nil
}

var (
	_ channel.Store        = (*Store)(nil)
	_ channel.Recoverer    = (*Store)(nil)
	_ connector.QueueStore = (*Store)(nil)
)
