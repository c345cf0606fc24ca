package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"
)

// 模拟一个 NewAPI 风格的站点，便于本地跑通完整签到流程：
//
//	CHECKIN_PROVIDERS='{"local":{"domain":"http://127.0.0.1:8080","signin_method":"http_login"}}'
//	CHECKIN_ACCOUNTS='[{"provider":"local","api_user":"1","cookies":{"session":"mock"}}]'
func main() {
	addr := flag.String("addr", ":8080", "listen address")
	quota := flag.Int64("quota", 5_000_000, "initial raw quota")
	reward := flag.Int64("reward", 250_000, "raw quota added per sign-in")
	flag.Parse()

	s := &mockSite{quota: *quota, reward: *reward}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/api/user/self", s.handleUserInfo)
	mux.HandleFunc("/api/user/sign_in", s.handleSignIn)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock 平台监听 %s, 初始额度 %d", *addr, *quota)
	log.Fatal(srv.ListenAndServe())
}

type mockSite struct {
	mu         sync.Mutex
	quota      int64
	usedQuota  int64
	reward     int64
	lastSignIn time.Time
}

func (s *mockSite) authorized(r *http.Request) bool {
	if r.Header.Get("new-api-user") == "" {
		return false
	}
	_, err := r.Cookie("session")
	return err == nil
}

// handleLogin 访问登录页即触发签到，对应 http_login 类型的站点。
func (s *mockSite) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("session"); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.signIn()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body>已登录</body></html>"))
}

func (s *mockSite) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	quota, used := s.quota, s.usedQuota
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"quota":      quota,
			"used_quota": used,
		},
	})
}

func (s *mockSite) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !s.signIn() {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ret": 0, "msg": "今日已签到",
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ret": 1, "msg": "签到成功",
	})
}

// signIn 每 24 小时只发一次额度，模拟真实平台的冷却行为。
func (s *mockSite) signIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastSignIn) < 24*time.Hour {
		return false
	}
	s.lastSignIn = time.Now()
	s.quota += s.reward
	return true
}
