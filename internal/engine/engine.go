package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"checkin_engine/internal/config"
	"checkin_engine/internal/logbus"
	"checkin_engine/internal/model"
	"checkin_engine/internal/provider"
	"checkin_engine/internal/provider/newapi"
	"checkin_engine/internal/result"
)

// Store 引擎需要的持久化能力：余额指纹 KV、每账号签到记录、追加式历史。
type Store interface {
	GetBalanceHash(ctx context.Context) (string, bool, error)
	PutBalanceHash(ctx context.Context, hash string) error
	GetSigninRecord(ctx context.Context, accountKey string) (*result.SigninRecord, error)
	PutSigninRecord(ctx context.Context, accountKey string, rec result.SigninRecord) error
	AppendRecord(ctx context.Context, runID string, r result.SigninResult) error
}

type Notifier interface {
	Push(ctx context.Context, title, content string) map[string]bool
	ChannelCount() int
}

// APIClient 针对单个 provider 的平台 API 调用。
type APIClient interface {
	GetUserInfo(ctx context.Context, account model.Account, extraCookies map[string]string) (result.UserBalance, error)
	SignIn(ctx context.Context, account model.Account, extraCookies map[string]string) error
	VisitLogin(ctx context.Context, account model.Account) error
}

type ClientFactory func(prov model.ProviderConfig) APIClient

// WAFFetcher 获取防护层 cookies；CLI 下由 browser.Fetcher 实现。
type WAFFetcher interface {
	WAFCookies(ctx context.Context, loginURL string, required []string) (map[string]string, error)
}

type Options struct {
	Registry *provider.Registry
	Store    Store
	Notifier Notifier
	Browser  WAFFetcher
	Bus      *logbus.Bus
	Limits   config.LimitsConfig
	Clients  ClientFactory

	// Now 便于测试按需注入时钟，默认 time.Now。
	Now func() time.Time
}

type Engine struct {
	registry *provider.Registry
	store    Store
	notifier Notifier
	browser  WAFFetcher
	bus      *logbus.Bus
	clients  ClientFactory
	now      func() time.Time

	limiter       *rate.Limiter
	maxConcurrent int
}

func New(opts Options) *Engine {
	maxConcurrent := opts.Limits.MaxConcurrentAccounts
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	qps := opts.Limits.GlobalQPS
	if qps <= 0 {
		qps = 2
	}
	burst := opts.Limits.GlobalBurst
	if burst <= 0 {
		burst = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry:      opts.Registry,
		store:         opts.Store,
		notifier:      opts.Notifier,
		browser:       opts.Browser,
		bus:           opts.Bus,
		clients:       opts.Clients,
		now:           now,
		limiter:       rate.NewLimiter(rate.Limit(qps), burst),
		maxConcurrent: maxConcurrent,
	}
}

// Run 对所有账号执行一次签到。每个账号必然产出一个 SigninResult，
// 单个账号失败不影响其他账号，也不让 Run 返回错误。
func (e *Engine) Run(ctx context.Context, accounts []model.Account) (result.Summary, error) {
	runID := uuid.NewString()
	e.log("info", "签到开始", map[string]any{"run": runID, "accounts": len(accounts)})

	results := make([]result.SigninResult, len(accounts))
	sem := make(chan struct{}, e.maxConcurrent)
	done := make(chan int, len(accounts))

	for i := range accounts {
		go func(i int) {
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.processAccount(ctx, i, accounts[i])
			done <- i
		}(i)
	}
	for range accounts {
		<-done
	}

	var summary result.Summary
	for _, r := range results {
		summary.Add(r)
	}

	e.detectBalanceChange(ctx, &summary)
	e.persist(ctx, runID, results)
	e.maybeNotify(ctx, summary)

	e.log("info", "签到结束", map[string]any{
		"run": runID, "success": summary.Success, "cooldown": summary.Cooldown, "failed": summary.Failed,
	})
	return summary, nil
}

func (e *Engine) processAccount(ctx context.Context, index int, acc model.Account) result.SigninResult {
	name := acc.DisplayName(index)
	res := result.SigninResult{AccountKey: acc.Key(), AccountName: name}

	prov, err := e.registry.Get(acc.Provider)
	if err != nil {
		e.log("warn", "账号引用了未知 provider", map[string]any{"account": name, "provider": acc.Provider})
		res.Status = result.StatusError
		res.Error = err.Error()
		return res
	}

	if err := e.limiter.Wait(ctx); err != nil {
		res.Status = result.StatusError
		res.Error = err.Error()
		return res
	}

	client := e.clients(prov)
	e.log("info", "开始处理账号", map[string]any{"account": name, "provider": prov.Name})

	if before, err := client.GetUserInfo(ctx, acc, nil); err == nil {
		q := before.Quota
		res.BalanceBefore = &q
	}

	wafCookies, signErr := e.signIn(ctx, client, prov, acc, name)
	if signErr != nil {
		res.Status = result.StatusFailed
		res.Error = signErr.Error()
		if errors.Is(signErr, newapi.ErrAuthExpired) {
			e.log("warn", "session 已失效，请重新抓取 cookie", map[string]any{"account": name})
		} else {
			e.log("warn", "签到失败", map[string]any{"account": name, "error": signErr.Error()})
		}
		return res
	}

	after, err := client.GetUserInfo(ctx, acc, wafCookies)
	if err != nil {
		// 签到调用本身成功，只是余额没拿到；按成功记录但不更新基线
		res.Status = result.StatusSuccess
		res.Error = "获取余额失败: " + err.Error()
		return res
	}

	now := e.now()
	rec, _ := e.store.GetSigninRecord(ctx, res.AccountKey)
	status, diff := result.Classify(after.Quota, rec, now)

	balance := after
	quota := after.Quota
	res.Status = status
	res.Balance = &balance
	res.BalanceAfter = &quota
	res.BalanceDiff = diff

	// 成功或首次运行才推进基线，冷却/失败保留上次签到时间
	if status == result.StatusSuccess || status == result.StatusFirstRun {
		res.NewRecord = &result.SigninRecord{Time: now, Balance: &quota}
	}

	e.log("info", "账号处理完成", map[string]any{
		"account": name, "status": string(status), "quota": quota,
	})
	return res
}

// signIn 先走直连 HTTP；被拒且 provider 需要 WAF cookies 时，取一次
// bypass cookies 再重试。返回成功时实际使用的额外 cookies。
// WAF 拦截通常也回 401/403，所以认证失效只能在带 WAF cookies 重试之后才下结论。
func (e *Engine) signIn(ctx context.Context, client APIClient, prov model.ProviderConfig, acc model.Account, name string) (map[string]string, error) {
	err := e.attempt(ctx, client, prov, acc, nil)
	if err == nil {
		return nil, nil
	}
	if !prov.NeedsWAFCookies() || e.browser == nil {
		return nil, err
	}

	e.log("info", "直连被拒，尝试获取 WAF cookies", map[string]any{"account": name, "error": err.Error()})
	waf, werr := e.browser.WAFCookies(ctx, prov.LoginURL(), prov.WAFCookieNames)
	if werr != nil {
		return nil, errors.Join(err, werr)
	}
	if retryErr := e.attempt(ctx, client, prov, acc, waf); retryErr != nil {
		return nil, retryErr
	}
	return waf, nil
}

func (e *Engine) attempt(ctx context.Context, client APIClient, prov model.ProviderConfig, acc model.Account, waf map[string]string) error {
	if !prov.NeedsManualSignIn() {
		// http_login：访问登录页即触发服务端签到
		return client.VisitLogin(ctx, acc)
	}
	return client.SignIn(ctx, acc, waf)
}

func (e *Engine) detectBalanceChange(ctx context.Context, summary *result.Summary) {
	balances := make(map[string]float64)
	for _, r := range summary.Results {
		if r.Balance != nil {
			balances[r.AccountKey] = r.Balance.Quota
		}
	}
	current := result.Fingerprint(balances)
	if current == "" {
		return
	}

	last, ok, err := e.store.GetBalanceHash(ctx)
	if err != nil {
		e.log("warn", "读取余额指纹失败", map[string]any{"error": err.Error()})
		return
	}
	switch {
	case !ok:
		summary.FirstRun = true
		e.log("info", "首次运行，将发送余额通知", nil)
	case current != last:
		summary.BalanceChanged = true
		e.log("info", "检测到余额变化", nil)
	default:
		e.log("info", "未检测到余额变化", nil)
	}

	if err := e.store.PutBalanceHash(ctx, current); err != nil {
		e.log("warn", "保存余额指纹失败", map[string]any{"error": err.Error()})
	}
}

func (e *Engine) persist(ctx context.Context, runID string, results []result.SigninResult) {
	for _, r := range results {
		if err := e.store.AppendRecord(ctx, runID, r); err != nil {
			e.log("warn", "写入签到历史失败", map[string]any{"account": r.AccountKey, "error": err.Error()})
		}
		if r.NewRecord != nil {
			if err := e.store.PutSigninRecord(ctx, r.AccountKey, *r.NewRecord); err != nil {
				e.log("warn", "保存签到记录失败", map[string]any{"account": r.AccountKey, "error": err.Error()})
			}
		}
	}
}

func (e *Engine) maybeNotify(ctx context.Context, summary result.Summary) {
	if e.notifier == nil || e.notifier.ChannelCount() == 0 {
		return
	}
	if !summary.NeedsNotification() {
		e.log("info", "全部正常且无余额变化，跳过通知", nil)
		return
	}
	sent := e.notifier.Push(ctx, "签到提醒", summary.Render(e.now()))
	e.log("info", "通知已推送", map[string]any{"channels": len(sent)})
}

func (e *Engine) log(level, msg string, fields map[string]any) {
	if e.bus != nil {
		e.bus.Log(level, msg, fields)
	}
}
