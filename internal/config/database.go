package config

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := CreateTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// schema lists the DDL statements in dependency order. ledger_changes has
// no foreign key to ledgers: its rows may outlive a deleted ledger. Entries
// keep the id of their source template after it is deleted, so
// entries.template_id has no foreign key either. Emails are unique without
// regard to case.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS ledgers (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		created_by VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_access (
		ledger_id VARCHAR(36) NOT NULL REFERENCES ledgers(id) ON DELETE CASCADE,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		level VARCHAR(10) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (ledger_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_sequences (
		ledger_id VARCHAR(36) PRIMARY KEY REFERENCES ledgers(id) ON DELETE CASCADE,
		current_sequence BIGINT NOT NULL,
		last_timestamp TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id VARCHAR(36) PRIMARY KEY,
		ledger_id VARCHAR(36) NOT NULL REFERENCES ledgers(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		value NUMERIC NOT NULL,
		unit VARCHAR(64) NOT NULL,
		group_name VARCHAR(255) NOT NULL,
		color VARCHAR(32),
		notes TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id VARCHAR(36) PRIMARY KEY,
		ledger_id VARCHAR(36) NOT NULL REFERENCES ledgers(id) ON DELETE CASCADE,
		template_id VARCHAR(36),
		title VARCHAR(255) NOT NULL,
		base_value NUMERIC NOT NULL,
		value NUMERIC NOT NULL,
		unit VARCHAR(64) NOT NULL,
		group_name VARCHAR(255) NOT NULL,
		color VARCHAR(32),
		notes TEXT,
		multiplier NUMERIC NOT NULL,
		author VARCHAR(36) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	// Older databases detached entries when their template was deleted
	`ALTER TABLE entries DROP CONSTRAINT IF EXISTS entries_template_id_fkey`,
	`CREATE TABLE IF NOT EXISTS ledger_changes (
		id VARCHAR(36) PRIMARY KEY,
		ledger_id VARCHAR(36) NOT NULL,
		sequence_number BIGINT NOT NULL,
		entity_kind VARCHAR(16) NOT NULL,
		entity_id VARCHAR(36) NOT NULL,
		action VARCHAR(16) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		UNIQUE (ledger_id, sequence_number)
	)`,
}

// indexes are not critical; failures are logged and skipped
var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_ledger_access_user_id ON ledger_access(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_templates_ledger_id ON templates(ledger_id)",
	"CREATE INDEX IF NOT EXISTS idx_entries_ledger_id ON entries(ledger_id)",
	"CREATE INDEX IF NOT EXISTS idx_ledger_changes_ledger_ts ON ledger_changes(ledger_id, timestamp)",
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "statement", idx, "error", err)
		}
	}

	return nil
}
