package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"checkin_engine/internal/model"
)

func (s *Store) UpsertProvider(ctx context.Context, p model.ProviderConfig) error {
	if p.Name == "" || p.Domain == "" {
		return errors.New("provider name and domain are required")
	}
	p.ApplyDefaults()

	wafJSON, err := json.Marshal(p.WAFCookieNames)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO providers
			(name, domain, signin_method, login_path, sign_in_path, user_info_path, api_user_key, waf_cookie_names_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			domain = excluded.domain,
			signin_method = excluded.signin_method,
			login_path = excluded.login_path,
			sign_in_path = excluded.sign_in_path,
			user_info_path = excluded.user_info_path,
			api_user_key = excluded.api_user_key,
			waf_cookie_names_json = excluded.waf_cookie_names_json,
			updated_at = excluded.updated_at
	`, p.Name, p.Domain, string(p.SigninMethod), p.LoginPath, p.SignInPath,
		p.UserInfoPath, p.APIUserKey, string(wafJSON), now, now)
	return err
}

func (s *Store) ListProviders(ctx context.Context) (map[string]model.ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, domain, signin_method, login_path, sign_in_path, user_info_path, api_user_key, waf_cookie_names_json
		FROM providers
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.ProviderConfig)
	for rows.Next() {
		var (
			p       model.ProviderConfig
			method  string
			wafJSON string
		)
		if err := rows.Scan(&p.Name, &p.Domain, &method, &p.LoginPath, &p.SignInPath,
			&p.UserInfoPath, &p.APIUserKey, &wafJSON); err != nil {
			return nil, err
		}
		p.SigninMethod = model.SigninMethod(method)
		_ = json.Unmarshal([]byte(wafJSON), &p.WAFCookieNames)
		out[p.Name] = p
	}
	return out, rows.Err()
}
