package store

import (
	"context"
	"fmt"
)

// Constraint names are shared by every dialect so uniqueness violations can
// be attributed to a field (see constraintFields).
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'USER',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_users_username UNIQUE (username),
		CONSTRAINT uq_users_email UNIQUE (email)
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key_hash TEXT NOT NULL,
		key_ciphertext TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_admin INTEGER NOT NULL DEFAULT 0,
		is_revoked INTEGER NOT NULL DEFAULT 0,
		expires_at DATETIME,
		last_used DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_api_keys_hash UNIQUE (key_hash),
		CONSTRAINT uq_api_keys_ciphertext UNIQUE (key_ciphertext)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		username VARCHAR(30) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash TEXT NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'USER',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_users_username UNIQUE (username),
		CONSTRAINT uq_users_email UNIQUE (email)
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key_hash CHAR(64) NOT NULL,
		key_ciphertext VARCHAR(255) NOT NULL,
		key_prefix VARCHAR(32) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMPTZ,
		last_used TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_api_keys_hash UNIQUE (key_hash),
		CONSTRAINT uq_api_keys_ciphertext UNIQUE (key_ciphertext)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
// Open sets parseTime so DATETIME columns scan as time.Time (see mysqlDSN).
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		username VARCHAR(30) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash TEXT NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'USER',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT uq_users_username UNIQUE (username),
		CONSTRAINT uq_users_email UNIQUE (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		key_hash CHAR(64) NOT NULL,
		key_ciphertext VARCHAR(255) NOT NULL,
		key_prefix VARCHAR(32) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at DATETIME(6) NULL,
		last_used DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT uq_api_keys_hash UNIQUE (key_hash),
		CONSTRAINT uq_api_keys_ciphertext UNIQUE (key_ciphertext),
		KEY idx_api_keys_user_id (user_id),
		CONSTRAINT fk_api_keys_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func (s *Store) migrations() []string {
	switch s.dialect {
	case Postgres:
		return postgresMigrations
	case MySQL:
		return mysqlMigrations
	default:
		return sqliteMigrations
	}
}

// migrate applies the schema. Every statement is CREATE ... IF NOT EXISTS,
// so it can run on each start.
func (s *Store) migrate(ctx context.Context) error {
	for _, m := range s.migrations() {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
