package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		email                 TEXT NOT NULL DEFAULT '',
		name                  TEXT NOT NULL DEFAULT '',
		goal                  TEXT NOT NULL DEFAULT 'toC_newsletter',
		chatwork_token        TEXT NOT NULL DEFAULT '',
		chatwork_room_id      TEXT NOT NULL DEFAULT '',
		meta_access_token     TEXT NOT NULL DEFAULT '',
		meta_account_id       TEXT NOT NULL DEFAULT '',
		daily_report_enabled  INTEGER NOT NULL DEFAULT 1,
		update_enabled        INTEGER NOT NULL DEFAULT 1,
		alert_enabled         INTEGER NOT NULL DEFAULT 1,
		meta_token_updated_at DATETIME,
		created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS targets (
		user_id    TEXT NOT NULL,
		metric     TEXT NOT NULL,
		value      REAL NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, metric)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		metric        TEXT NOT NULL,
		target_value  REAL NOT NULL DEFAULT 0,
		current_value REAL NOT NULL DEFAULT 0,
		severity      TEXT NOT NULL CHECK(severity IN ('warning', 'critical')),
		message       TEXT NOT NULL DEFAULT '',
		check_items   TEXT NOT NULL DEFAULT '[]',
		improvements  TEXT NOT NULL DEFAULT '[]',
		triggered_at  DATETIME NOT NULL,
		status        TEXT NOT NULL CHECK(status IN ('active', 'resolved')),
		resolved_at   DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_user_metric_status ON alerts(user_id, metric, status);
	CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered_at);

	CREATE TABLE IF NOT EXISTS send_records (
		send_key TEXT PRIMARY KEY,
		sent_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
