package engine

import (
	"context"
	"sync"

	"checkin_engine/internal/result"
)

// MemoryStore 仅活到进程结束，用于禁用数据库的场景（如 CI 环境）。
// 没有历史基线，每次运行都按首次运行处理。
type MemoryStore struct {
	mu      sync.Mutex
	hash    string
	hasHash bool
	records map[string]result.SigninRecord
	history []result.SigninResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]result.SigninRecord)}
}

func (s *MemoryStore) GetBalanceHash(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash, s.hasHash, nil
}

func (s *MemoryStore) PutBalanceHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash, s.hasHash = hash, true
	return nil
}

func (s *MemoryStore) GetSigninRecord(_ context.Context, accountKey string) (*result.SigninRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[accountKey]; ok {
		r := rec
		return &r, nil
	}
	return nil, nil
}

func (s *MemoryStore) PutSigninRecord(_ context.Context, accountKey string, rec result.SigninRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[accountKey] = rec
	return nil
}

func (s *MemoryStore) AppendRecord(_ context.Context, _ string, r result.SigninResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	return nil
}

// History 返回本进程内累计的签到结果，按写入顺序。
func (s *MemoryStore) History() []result.SigninResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]result.SigninResult, len(s.history))
	copy(out, s.history)
	return out
}
