package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"checkin_engine/internal/model"
)

func (s *Store) UpsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.Provider == "" || acc.APIUser == "" {
		return model.Account{}, errors.New("provider and api_user are required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	cookiesJSON, err := json.Marshal(acc.Cookies)
	if err != nil {
		return model.Account{}, err
	}

	active := 0
	if acc.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, provider, api_user, cookies_json, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, api_user) DO UPDATE SET
			name = excluded.name,
			cookies_json = excluded.cookies_json,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, acc.ID, acc.Name, acc.Provider, acc.APIUser, string(cookiesJSON), active,
		acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// ListActiveAccounts 按创建顺序返回启用的账号，作为环境变量之外的配置来源。
func (s *Store) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider, api_user, cookies_json, active, created_at, updated_at
		FROM accounts WHERE active = 1 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var (
			acc         model.Account
			cookiesJSON string
			active      int
			createdAt   int64
			updatedAt   int64
		)
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Provider, &acc.APIUser,
			&cookiesJSON, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(cookiesJSON), &acc.Cookies)
		acc.Active = active == 1
		acc.CreatedAt = time.UnixMilli(createdAt)
		acc.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}
