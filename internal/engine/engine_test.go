package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"checkin_engine/internal/config"
	"checkin_engine/internal/model"
	"checkin_engine/internal/provider"
	"checkin_engine/internal/provider/newapi"
	"checkin_engine/internal/result"
)

type fakeStore struct {
	mu      sync.Mutex
	hash    string
	hasHash bool
	records map[string]result.SigninRecord
	history []result.SigninResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]result.SigninRecord)}
}

func (s *fakeStore) GetBalanceHash(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash, s.hasHash, nil
}

func (s *fakeStore) PutBalanceHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash, s.hasHash = hash, true
	return nil
}

func (s *fakeStore) GetSigninRecord(_ context.Context, key string) (*result.SigninRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		r := rec
		return &r, nil
	}
	return nil, nil
}

func (s *fakeStore) PutSigninRecord(_ context.Context, key string, rec result.SigninRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *fakeStore) AppendRecord(_ context.Context, _ string, r result.SigninResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []string
}

func (n *fakeNotifier) ChannelCount() int { return 1 }

func (n *fakeNotifier) Push(_ context.Context, title, content string) map[string]bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, title+"\n"+content)
	return map[string]bool{"fake": true}
}

// fakeClient 按 cookie 条件决定签到是否成功，签到成功后余额加 diff。
type fakeClient struct {
	mu         sync.Mutex
	quota      float64
	diff       float64
	signErr    error
	needCookie string // 非空时，缺少该 cookie 的 SignIn 一律被拒
	rejectErr  error  // 缺 cookie 时返回的错误，默认普通 403
	signCalls  int
}

func (c *fakeClient) GetUserInfo(context.Context, model.Account, map[string]string) (result.UserBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return result.UserBalance{Quota: c.quota}, nil
}

func (c *fakeClient) SignIn(_ context.Context, _ model.Account, cookies map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signCalls++
	if c.signErr != nil {
		return c.signErr
	}
	if c.needCookie != "" {
		if _, ok := cookies[c.needCookie]; !ok {
			if c.rejectErr != nil {
				return c.rejectErr
			}
			return errors.New("HTTP 403")
		}
	}
	c.quota += c.diff
	return nil
}

func (c *fakeClient) VisitLogin(context.Context, model.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signCalls++
	c.quota += c.diff
	return nil
}

type fakeBrowser struct {
	cookies map[string]string
	err     error
	calls   int
}

func (b *fakeBrowser) WAFCookies(_ context.Context, _ string, _ []string) (map[string]string, error) {
	b.calls++
	return b.cookies, b.err
}

func testRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	return provider.NewRegistry(map[string]model.ProviderConfig{
		"anyrouter": {
			Name:           "anyrouter",
			Domain:         "https://anyrouter.test",
			SigninMethod:   model.SigninMethodBrowserWAF,
			WAFCookieNames: []string{"acw_tc"},
		},
		"agentrouter": {
			Name:         "agentrouter",
			Domain:       "https://agentrouter.test",
			SigninMethod: model.SigninMethodHTTPLogin,
		},
	})
}

func testEngine(t *testing.T, store Store, notifier Notifier, browser WAFFetcher, clients map[string]*fakeClient) *Engine {
	t.Helper()
	return New(Options{
		Registry: testRegistry(t),
		Store:    store,
		Notifier: notifier,
		Browser:  browser,
		Clients: func(prov model.ProviderConfig) APIClient {
			return clients[prov.Name]
		},
		Limits: config.LimitsConfig{MaxConcurrentAccounts: 3, GlobalQPS: 1000, GlobalBurst: 1000},
	})
}

func account(provider, apiUser string) model.Account {
	return model.Account{
		Provider: provider,
		APIUser:  apiUser,
		Cookies:  map[string]string{"session": "s-" + apiUser},
		Active:   true,
	}
}

func TestRunOneResultPerAccount(t *testing.T) {
	store := newFakeStore()
	clients := map[string]*fakeClient{
		"anyrouter":   {quota: 10, diff: 0.5},
		"agentrouter": {quota: 20, diff: 0.5},
	}
	eng := testEngine(t, store, &fakeNotifier{}, nil, clients)

	accounts := []model.Account{
		account("anyrouter", "1"),
		account("nosuch", "2"),
		account("agentrouter", "3"),
	}
	summary, err := eng.Run(context.Background(), accounts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 3 || len(summary.Results) != 3 {
		t.Fatalf("total = %d, results = %d", summary.Total, len(summary.Results))
	}
	// 结果顺序与输入一致
	if summary.Results[1].Status != result.StatusError {
		t.Fatalf("unknown provider status = %s", summary.Results[1].Status)
	}
	if !strings.Contains(summary.Results[1].Error, "nosuch") {
		t.Fatalf("error = %q", summary.Results[1].Error)
	}
	if summary.Results[0].Status != result.StatusFirstRun || summary.Results[2].Status != result.StatusFirstRun {
		t.Fatalf("statuses = %s, %s", summary.Results[0].Status, summary.Results[2].Status)
	}
	if summary.Failed != 1 || summary.AllSucceeded() {
		t.Fatalf("failed = %d", summary.Failed)
	}
	if len(store.history) != 3 {
		t.Fatalf("history = %d", len(store.history))
	}
}

func TestRunFirstRunNotifies(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	clients := map[string]*fakeClient{"agentrouter": {quota: 5, diff: 0.5}}
	eng := testEngine(t, store, notifier, nil, clients)

	summary, err := eng.Run(context.Background(), []model.Account{account("agentrouter", "1")})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.FirstRun {
		t.Fatal("首次运行应标记 FirstRun")
	}
	if len(notifier.pushes) != 1 {
		t.Fatalf("pushes = %d", len(notifier.pushes))
	}
	if !store.hasHash {
		t.Fatal("应保存余额指纹")
	}
	if rec, _ := store.GetSigninRecord(context.Background(), "agentrouter_1"); rec == nil {
		t.Fatal("应保存签到记录")
	}
}

func TestRunCooldownIsIdempotent(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	client := &fakeClient{quota: 5, diff: 0.5}
	clients := map[string]*fakeClient{"agentrouter": client}
	now := time.Now()
	eng := testEngine(t, store, notifier, nil, clients)
	eng.now = func() time.Time { return now }

	accounts := []model.Account{account("agentrouter", "1")}
	if _, err := eng.Run(context.Background(), accounts); err != nil {
		t.Fatal(err)
	}
	firstRec := store.records["agentrouter_1"]

	// 第二次运行余额不再增长
	client.diff = 0
	eng.now = func() time.Time { return now.Add(time.Hour) }
	summary, err := eng.Run(context.Background(), accounts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Results[0].Status != result.StatusCooldown {
		t.Fatalf("status = %s", summary.Results[0].Status)
	}
	if summary.NeedsNotification() {
		t.Fatal("冷却且无余额变化不应通知")
	}
	if len(notifier.pushes) != 1 {
		t.Fatalf("pushes = %d", len(notifier.pushes))
	}
	// 冷却不推进基线
	if got := store.records["agentrouter_1"]; !got.Time.Equal(firstRec.Time) {
		t.Fatalf("基线时间被改写: %v -> %v", firstRec.Time, got.Time)
	}
}

func TestRunNoCreditPastCooldownFails(t *testing.T) {
	store := newFakeStore()
	base := time.Now().Add(-25 * time.Hour)
	quota := 5.0
	store.records["agentrouter_1"] = result.SigninRecord{Time: base, Balance: &quota}
	store.hash = "stale"
	store.hasHash = true

	clients := map[string]*fakeClient{"agentrouter": {quota: 5, diff: 0}}
	eng := testEngine(t, store, &fakeNotifier{}, nil, clients)

	summary, err := eng.Run(context.Background(), []model.Account{account("agentrouter", "1")})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Results[0].Status != result.StatusFailed {
		t.Fatalf("status = %s", summary.Results[0].Status)
	}
}

func TestRunAuthExpiredIsolated(t *testing.T) {
	store := newFakeStore()
	expired := &fakeClient{quota: 1, signErr: newapi.ErrAuthExpired}
	healthy := &fakeClient{quota: 2, diff: 0.5}
	clients := map[string]*fakeClient{"anyrouter": expired, "agentrouter": healthy}
	browser := &fakeBrowser{cookies: map[string]string{"acw_tc": "x"}}
	eng := testEngine(t, store, &fakeNotifier{}, browser, clients)

	accounts := []model.Account{account("anyrouter", "1"), account("agentrouter", "2")}
	summary, err := eng.Run(context.Background(), accounts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Results[0].Status != result.StatusFailed {
		t.Fatalf("status = %s", summary.Results[0].Status)
	}
	// 401/403 也可能是 WAF 拦截，先带 WAF cookies 重试一次，之后才判定认证失效
	if browser.calls != 1 {
		t.Fatalf("browser calls = %d", browser.calls)
	}
	if !strings.Contains(summary.Results[0].Error, "session expired") {
		t.Fatalf("error = %q", summary.Results[0].Error)
	}
	if summary.Results[1].Status != result.StatusFirstRun {
		t.Fatalf("healthy status = %s", summary.Results[1].Status)
	}
}

func TestRunWAFBlockedAsForbiddenStillRetries(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{
		quota:      3,
		diff:       0.5,
		needCookie: "acw_tc",
		rejectErr:  fmt.Errorf("%w (HTTP 403)", newapi.ErrAuthExpired),
	}
	browser := &fakeBrowser{cookies: map[string]string{"acw_tc": "v"}}
	eng := testEngine(t, store, &fakeNotifier{}, browser, map[string]*fakeClient{"anyrouter": client})

	summary, err := eng.Run(context.Background(), []model.Account{account("anyrouter", "1")})
	if err != nil {
		t.Fatal(err)
	}
	// WAF 以 403 拦截直连请求时，必须走浏览器 bypass 而不是直接报 session 失效
	if summary.Results[0].Status != result.StatusFirstRun {
		t.Fatalf("status = %s, error = %s", summary.Results[0].Status, summary.Results[0].Error)
	}
	if browser.calls != 1 {
		t.Fatalf("browser calls = %d", browser.calls)
	}
	if client.signCalls != 2 {
		t.Fatalf("sign calls = %d", client.signCalls)
	}
}

func TestRunWAFRetry(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{quota: 3, diff: 0.5, needCookie: "acw_tc"}
	browser := &fakeBrowser{cookies: map[string]string{"acw_tc": "v"}}
	eng := testEngine(t, store, &fakeNotifier{}, browser, map[string]*fakeClient{"anyrouter": client})

	summary, err := eng.Run(context.Background(), []model.Account{account("anyrouter", "1")})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Results[0].Status != result.StatusFirstRun {
		t.Fatalf("status = %s, error = %s", summary.Results[0].Status, summary.Results[0].Error)
	}
	if browser.calls != 1 {
		t.Fatalf("browser calls = %d", browser.calls)
	}
	if client.signCalls != 2 {
		t.Fatalf("sign calls = %d", client.signCalls)
	}
}

func TestRunWAFFetchFailure(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{quota: 3, diff: 0.5, needCookie: "acw_tc"}
	browser := &fakeBrowser{err: errors.New("浏览器启动失败")}
	eng := testEngine(t, store, &fakeNotifier{}, browser, map[string]*fakeClient{"anyrouter": client})

	summary, err := eng.Run(context.Background(), []model.Account{account("anyrouter", "1")})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Results[0].Status != result.StatusFailed {
		t.Fatalf("status = %s", summary.Results[0].Status)
	}
	if !strings.Contains(summary.Results[0].Error, "浏览器启动失败") {
		t.Fatalf("error = %q", summary.Results[0].Error)
	}
}

func TestRunBalanceChangeDetection(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	client := &fakeClient{quota: 5, diff: 0.5}
	eng := testEngine(t, store, notifier, nil, map[string]*fakeClient{"agentrouter": client})

	accounts := []model.Account{account("agentrouter", "1")}
	if _, err := eng.Run(context.Background(), accounts); err != nil {
		t.Fatal(err)
	}
	hashAfterFirst := store.hash

	// 余额变化，指纹应更新并触发通知
	client.diff = 1.0
	summary, err := eng.Run(context.Background(), accounts)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.BalanceChanged {
		t.Fatal("应检测到余额变化")
	}
	if store.hash == hashAfterFirst {
		t.Fatal("指纹未更新")
	}
	if len(notifier.pushes) != 2 {
		t.Fatalf("pushes = %d", len(notifier.pushes))
	}
}
