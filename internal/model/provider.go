package model

import "strings"

// SigninMethod 定义签到策略：
//   - browser_waf: 先用无头浏览器获取 WAF cookies，再调用签到 API（如 anyrouter）
//   - http_login: 纯 HTTP 访问登录页触发签到（如 agentrouter），服务端副作用完成签到
type SigninMethod string

const (
	SigninMethodBrowserWAF SigninMethod = "browser_waf"
	SigninMethodHTTPLogin  SigninMethod = "http_login"
)

func (m SigninMethod) Valid() bool {
	return m == SigninMethodBrowserWAF || m == SigninMethodHTTPLogin
}

type ProviderConfig struct {
	Name           string       `json:"name,omitempty"`
	Domain         string       `json:"domain"`
	SigninMethod   SigninMethod `json:"signin_method,omitempty"`
	LoginPath      string       `json:"login_path,omitempty"`
	SignInPath     string       `json:"sign_in_path,omitempty"`
	UserInfoPath   string       `json:"user_info_path,omitempty"`
	APIUserKey     string       `json:"api_user_key,omitempty"`
	WAFCookieNames []string     `json:"waf_cookie_names,omitempty"`
}

func (p *ProviderConfig) ApplyDefaults() {
	if p.SigninMethod == "" {
		p.SigninMethod = SigninMethodBrowserWAF
	}
	if p.LoginPath == "" {
		p.LoginPath = "/login"
	}
	if p.SignInPath == "" && p.SigninMethod == SigninMethodBrowserWAF {
		p.SignInPath = "/api/user/sign_in"
	}
	if p.UserInfoPath == "" {
		p.UserInfoPath = "/api/user/self"
	}
	if p.APIUserKey == "" {
		p.APIUserKey = "new-api-user"
	}
	cleaned := p.WAFCookieNames[:0]
	for _, n := range p.WAFCookieNames {
		if v := strings.TrimSpace(n); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	p.WAFCookieNames = cleaned
}

// NeedsWAFCookies 是否需要先拿到 WAF cookies 才能访问真实 API。
func (p ProviderConfig) NeedsWAFCookies() bool {
	return p.SigninMethod == SigninMethodBrowserWAF && len(p.WAFCookieNames) > 0
}

// NeedsManualSignIn 是否需要显式调用签到接口；http_login 由登录请求触发，无需手动。
func (p ProviderConfig) NeedsManualSignIn() bool {
	return p.SigninMethod != SigninMethodHTTPLogin && p.SignInPath != ""
}

func (p ProviderConfig) LoginURL() string    { return p.Domain + p.LoginPath }
func (p ProviderConfig) SignInURL() string   { return p.Domain + p.SignInPath }
func (p ProviderConfig) UserInfoURL() string { return p.Domain + p.UserInfoPath }
