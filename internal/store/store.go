// Package store provides the single durable persistence layer: a
// WAL-mode SQLite database holding messages, facts, episodes, chat
// summaries, quota records, bans, system prompts and the media cache.
// Every row in the system is owned exclusively by this package; other
// components hold only identifiers and re-fetch on demand.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ThatHunky/gryag-sub007/internal/logging"
)

// Store is the shared handle every repository is built from. Schema
// evolution is idempotent: every migration is "create if absent / add
// column if missing", applied in deterministic order on Open so a
// pre-existing database file upgrades in place.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a WAL-mode SQLite database at path and
// applies all pending migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", ErrSchemaIncompatible(err))
	}

	logging.Logger().With("component", "store").Info("opened database", "path", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for repositories that live in this
// package but in their own file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id          INTEGER NOT NULL,
    thread_id        INTEGER,
    user_id          INTEGER,
    role             TEXT NOT NULL,
    text             TEXT,
    media_json       TEXT,
    embedding_json   TEXT,
    metadata_json    TEXT,
    external_msg_id  TEXT,
    reply_to_ext_id  TEXT,
    deleted          BOOLEAN NOT NULL DEFAULT 0,
    ts               DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts);
CREATE INDEX IF NOT EXISTS idx_messages_chat_thread_ts ON messages(chat_id, thread_id, ts);

CREATE TABLE IF NOT EXISTS facts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type     TEXT NOT NULL,
    entity_id       INTEGER NOT NULL,
    chat_context    INTEGER,
    category        TEXT NOT NULL,
    key             TEXT NOT NULL,
    value           TEXT NOT NULL,
    confidence      REAL NOT NULL,
    evidence_count  INTEGER NOT NULL DEFAULT 1,
    evidence_text   TEXT,
    source_msg_id   INTEGER,
    first_observed  DATETIME NOT NULL,
    last_reinforced DATETIME NOT NULL,
    is_active       BOOLEAN NOT NULL DEFAULT 1,
    decay_rate      REAL NOT NULL DEFAULT 0,
    embedding_json  TEXT
);
CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts(entity_type, entity_id, is_active);
-- Partial: only one *active* fact may occupy a given identity at a time,
-- but a superseded row stays in the table (is_active = 0) alongside its
-- replacement so both versions of an evolved/contradicted fact survive.
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_identity_active
    ON facts(entity_type, entity_id, chat_context, category, key)
    WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS episodes (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id            INTEGER NOT NULL,
    thread_id          INTEGER,
    topic              TEXT NOT NULL,
    summary            TEXT NOT NULL,
    summary_embedding  TEXT,
    importance         REAL NOT NULL,
    emotional_valence  TEXT NOT NULL DEFAULT 'neutral',
    message_ids_json   TEXT NOT NULL,
    participant_ids    TEXT NOT NULL,
    tags_json          TEXT,
    created_at         DATETIME NOT NULL,
    last_accessed      DATETIME NOT NULL,
    access_count       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_episodes_chat ON episodes(chat_id, thread_id);

CREATE TABLE IF NOT EXISTS chat_summaries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id      INTEGER NOT NULL,
    type         TEXT NOT NULL,
    period_start DATETIME NOT NULL,
    period_end   DATETIME NOT NULL,
    text         TEXT NOT NULL,
    token_count  INTEGER NOT NULL,
    generated_at DATETIME NOT NULL,
    UNIQUE(chat_id, type, period_start)
);

CREATE TABLE IF NOT EXISTS quota_windows (
    user_id      INTEGER PRIMARY KEY,
    count        INTEGER NOT NULL DEFAULT 0,
    window_start DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_usage (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      INTEGER NOT NULL,
    feature      TEXT NOT NULL,
    requested_at DATETIME NOT NULL,
    throttled    BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_feature_usage_user_feature ON feature_usage(user_id, feature, requested_at);

CREATE TABLE IF NOT EXISTS reputation (
    user_id    INTEGER PRIMARY KEY,
    multiplier REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS bans (
    chat_id        INTEGER NOT NULL,
    user_id        INTEGER NOT NULL,
    ts             DATETIME NOT NULL,
    last_notice_ts DATETIME,
    PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS system_prompts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    admin_id    INTEGER NOT NULL,
    chat_id     INTEGER,
    scope       TEXT NOT NULL,
    text        TEXT NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT 1,
    version     INTEGER NOT NULL,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    activated_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_prompts_scope ON system_prompts(scope, chat_id, is_active);

CREATE TABLE IF NOT EXISTS media_cache (
    media_id   TEXT PRIMARY KEY,
    chat_id    INTEGER NOT NULL,
    user_id    INTEGER,
    file_path  TEXT NOT NULL,
    media_type TEXT NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Additive migrations applied to databases created before a column existed.
	additions := []struct{ table, column, ddl string }{
		{"messages", "deleted", "BOOLEAN NOT NULL DEFAULT 0"},
	}
	for _, a := range additions {
		if err := addColumnIfMissing(s.db, a.table, a.column, a.ddl); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "duplicate column name") {
		return nil
	}
	return err
}
