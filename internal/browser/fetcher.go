package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"checkin_engine/internal/config"
	"checkin_engine/internal/logbus"
)

// Fetcher 管理一个全局无头浏览器，用来访问登录页拿 WAF cookies。
// 同一域名的 cookies 在整个运行期内只获取一次（按域名缓存）。
// Close 必须在进程退出前调用，否则会泄漏浏览器进程。
type Fetcher struct {
	cfg config.BrowserConfig
	bus *logbus.Bus

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher

	cacheMu sync.Mutex
	cache   map[string]map[string]string
}

func NewFetcher(cfg config.BrowserConfig, bus *logbus.Bus) *Fetcher {
	return &Fetcher{
		cfg:   cfg,
		bus:   bus,
		cache: make(map[string]map[string]string),
	}
}

// WAFCookies 访问 loginURL 并收集 required 中列出的 cookies。
// 任何一个缺失都算失败：不完整的 WAF cookies 过不了防护层。
func (f *Fetcher) WAFCookies(ctx context.Context, loginURL string, required []string) (map[string]string, error) {
	host, err := hostOf(loginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid login url: %w", err)
	}

	f.cacheMu.Lock()
	if cached, ok := f.cache[host]; ok && containsAll(cached, required) {
		f.cacheMu.Unlock()
		if f.bus != nil {
			f.bus.Log("info", "使用已缓存的 WAF cookies", map[string]any{"host": host})
		}
		return cached, nil
	}
	f.cacheMu.Unlock()

	if f.bus != nil {
		f.bus.Log("info", "启动浏览器获取 WAF cookies", map[string]any{"url": loginURL})
	}

	cookies, err := f.fetch(ctx, loginURL, required)
	if err != nil {
		return nil, err
	}

	missing := missingNames(cookies, required)
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing WAF cookies: %s", strings.Join(missing, ", "))
	}

	f.cacheMu.Lock()
	f.cache[host] = cookies
	f.cacheMu.Unlock()
	return cookies, nil
}

func (f *Fetcher) fetch(ctx context.Context, loginURL string, required []string) (map[string]string, error) {
	b, err := f.getBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, err
	}
	defer func() { _ = incognito.Close() }()

	var page *rod.Page
	if err := rod.Try(func() {
		page = stealth.MustPage(incognito)
	}); err != nil {
		return nil, err
	}
	defer func() { _ = page.Close() }()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavTimeout())
	defer cancel()
	page = page.Context(navCtx)

	if err := rod.Try(func() {
		page.MustNavigate(loginURL).MustWaitLoad()
		// WAF 的 JS 质询在 load 之后才落 cookie，等网络安静一轮
		page.MustWaitRequestIdle()()
	}); err != nil {
		// 导航超时不一定意味着失败，cookies 可能已经写入，继续读
		if f.bus != nil {
			f.bus.Log("warn", "登录页加载未完全结束，尝试直接读取 cookies", map[string]any{"error": err.Error()})
		}
	}

	raw, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make(map[string]string)
	for _, c := range raw {
		for _, name := range required {
			if c.Name == name {
				out[c.Name] = c.Value
			}
		}
	}
	return out, nil
}

func (f *Fetcher) getBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(f.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox")
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, err
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, err
	}

	f.browser = b
	f.launcher = l
	return f.browser, nil
}

// Close 关闭浏览器进程；没启动过则是空操作。
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			firstErr = err
		}
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
	return firstErr
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return u.Host, nil
}

func containsAll(cookies map[string]string, required []string) bool {
	for _, name := range required {
		if _, ok := cookies[name]; !ok {
			return false
		}
	}
	return true
}

func missingNames(cookies map[string]string, required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := cookies[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
