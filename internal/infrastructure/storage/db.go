package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version. Bump it when adding migrations.
const CurrentSchemaVersion = 1

// Open opens (creating if needed) the SQLite database at path and applies migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS recipients (
		  id          TEXT PRIMARY KEY,
		  name        TEXT NOT NULL,
		  email       TEXT,
		  phone       TEXT,
		  telegram_id TEXT,
		  created_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS topics (
		  id          TEXT PRIMARY KEY,
		  name        TEXT NOT NULL UNIQUE,
		  description TEXT
		);

		CREATE TABLE IF NOT EXISTS recipient_topics (
		  recipient_id TEXT NOT NULL REFERENCES recipients(id) ON DELETE CASCADE,
		  topic_id     TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		  position     INTEGER NOT NULL,
		  PRIMARY KEY (recipient_id, topic_id)
		);

		CREATE TABLE IF NOT EXISTS deliveries (
		  id           TEXT PRIMARY KEY,
		  recipient_id TEXT NOT NULL,
		  title        TEXT NOT NULL,
		  topics_json  TEXT NOT NULL,
		  channel      TEXT NOT NULL,
		  sent_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_recipient_sent
		ON deliveries(recipient_id, sent_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
