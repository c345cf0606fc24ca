package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"checkin_engine/internal/result"
)

const balanceHashKey = "balance_hash"

func (s *Store) getValue(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) putValue(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}

// GetBalanceHash 读取上次运行的余额指纹；没有则 ok=false（首次运行）。
func (s *Store) GetBalanceHash(ctx context.Context) (string, bool, error) {
	var hash string
	ok, err := s.getValue(ctx, balanceHashKey, &hash)
	if err != nil || !ok {
		return "", false, err
	}
	return hash, hash != "", nil
}

func (s *Store) PutBalanceHash(ctx context.Context, hash string) error {
	return s.putValue(ctx, balanceHashKey, hash)
}

func recordKey(accountKey string) string {
	return "signin_record:" + accountKey
}

// GetSigninRecord 读取账号最近一次签到记录，没有历史时返回 nil。
func (s *Store) GetSigninRecord(ctx context.Context, accountKey string) (*result.SigninRecord, error) {
	var rec result.SigninRecord
	ok, err := s.getValue(ctx, recordKey(accountKey), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) PutSigninRecord(ctx context.Context, accountKey string, rec result.SigninRecord) error {
	return s.putValue(ctx, recordKey(accountKey), rec)
}
