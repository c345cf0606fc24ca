package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			name TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			signin_method TEXT NOT NULL DEFAULT 'browser_waf',
			login_path TEXT NOT NULL DEFAULT '/login',
			sign_in_path TEXT NOT NULL DEFAULT '',
			user_info_path TEXT NOT NULL DEFAULT '/api/user/self',
			api_user_key TEXT NOT NULL DEFAULT 'new-api-user',
			waf_cookie_names_json TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			api_user TEXT NOT NULL,
			cookies_json TEXT NOT NULL DEFAULT '{}',
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (provider, api_user)
		);`,
		`CREATE TABLE IF NOT EXISTS checkin_records (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			account_key TEXT NOT NULL,
			account_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			balance_before REAL,
			balance_after REAL,
			balance_diff REAL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_checkin_records_account
			ON checkin_records(account_key, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_checkin_records_run
			ON checkin_records(run_id);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
