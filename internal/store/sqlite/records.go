package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"checkin_engine/internal/result"
)

// Record 签到历史表的一行，按运行追加、从不修改。
type Record struct {
	ID            string        `json:"id"`
	RunID         string        `json:"runId"`
	AccountKey    string        `json:"accountKey"`
	AccountName   string        `json:"accountName,omitempty"`
	Status        result.Status `json:"status"`
	BalanceBefore *float64      `json:"balanceBefore,omitempty"`
	BalanceAfter  *float64      `json:"balanceAfter,omitempty"`
	BalanceDiff   *float64      `json:"balanceDiff,omitempty"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (s *Store) AppendRecord(ctx context.Context, runID string, r result.SigninResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkin_records
			(id, run_id, account_key, account_name, status, balance_before, balance_after, balance_diff, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), runID, r.AccountKey, r.AccountName, string(r.Status),
		r.BalanceBefore, r.BalanceAfter, r.BalanceDiff, r.Error, time.Now().UnixMilli())
	return err
}

func (s *Store) ListRecords(ctx context.Context, accountKey string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, account_key, account_name, status, balance_before, balance_after, balance_diff, error, created_at
		FROM checkin_records
		WHERE (? = '' OR account_key = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, accountKey, accountKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			status    string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.AccountKey, &rec.AccountName, &status,
			&rec.BalanceBefore, &rec.BalanceAfter, &rec.BalanceDiff, &rec.Error, &createdAt); err != nil {
			return nil, err
		}
		rec.Status = result.Status(status)
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
