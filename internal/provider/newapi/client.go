package newapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"checkin_engine/internal/config"
	"checkin_engine/internal/logbus"
	"checkin_engine/internal/model"
	"checkin_engine/internal/result"
)

// ErrAuthExpired session 已失效，需要用户重新抓取 cookie，不是临时故障。
var ErrAuthExpired = errors.New("session expired or unauthorized")

// quotaDivisor 平台 API 返回的原始额度除以该值得到美元。
const quotaDivisor = 500000

// Client 针对单个 NewAPI/OneAPI 系平台的 HTTP 客户端。
// 每次请求按账号构建 resty client，cookie 合并（WAF cookies + 用户 session）。
type Client struct {
	cfg  config.HTTPConfig
	prov model.ProviderConfig
	bus  *logbus.Bus
}

func NewClient(cfg config.HTTPConfig, prov model.ProviderConfig, bus *logbus.Bus) *Client {
	return &Client{cfg: cfg, prov: prov, bus: bus}
}

func (c *Client) Provider() model.ProviderConfig { return c.prov }

type userInfoResp struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Quota     float64 `json:"quota"`
		UsedQuota float64 `json:"used_quota"`
	} `json:"data"`
}

type signInResp struct {
	Ret     *int   `json:"ret,omitempty"`
	Code    any    `json:"code,omitempty"`
	Success bool   `json:"success,omitempty"`
	Msg     string `json:"msg,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r signInResp) ok() bool {
	if r.Ret != nil && *r.Ret == 1 {
		return true
	}
	// code 在不同衍生版本里可能是数字也可能是字符串
	switch v := r.Code.(type) {
	case float64:
		if v == 0 {
			return true
		}
	case string:
		if v == "0" {
			return true
		}
	}
	return r.Success
}

func (r signInResp) errorMessage() string {
	if r.Msg != "" {
		return r.Msg
	}
	if r.Message != "" {
		return r.Message
	}
	return "unknown error"
}

// GetUserInfo 拉取账号余额。extraCookies（WAF cookies）和用户 cookies 合并后发送。
func (c *Client) GetUserInfo(ctx context.Context, account model.Account, extraCookies map[string]string) (result.UserBalance, error) {
	var out userInfoResp
	resp, err := c.newRequest(ctx, account, extraCookies).
		SetResult(&out).
		Get(c.prov.UserInfoURL())
	if err != nil {
		return result.UserBalance{}, fmt.Errorf("get user info: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		return result.UserBalance{}, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "get user info failed"
		}
		return result.UserBalance{}, errors.New(msg)
	}
	return result.UserBalance{
		Quota:     round2(out.Data.Quota / quotaDivisor),
		UsedQuota: round2(out.Data.UsedQuota / quotaDivisor),
	}, nil
}

// SignIn 调用签到接口。响应兼容几种 NewAPI 衍生版本：ret==1、code==0、success=true
// 都算成功；非 JSON 响应按正文是否包含 success 判断。
func (c *Client) SignIn(ctx context.Context, account model.Account, extraCookies map[string]string) error {
	resp, err := c.newRequest(ctx, account, extraCookies).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Requested-With", "XMLHttpRequest").
		Post(c.prov.SignInURL())
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		return err
	}

	body := resp.Body()
	var out signInResp
	if err := json.Unmarshal(body, &out); err != nil {
		if strings.Contains(strings.ToLower(string(body)), "success") {
			return nil
		}
		return errors.New("sign in: invalid response format")
	}
	if !out.ok() {
		return fmt.Errorf("sign in rejected: %s", out.errorMessage())
	}
	return nil
}

// VisitLogin 访问登录页。http_login 类 provider 的签到由这次访问在服务端触发。
func (c *Client) VisitLogin(ctx context.Context, account model.Account) error {
	resp, err := c.newRequest(ctx, account, nil).Get(c.prov.LoginURL())
	if err != nil {
		return fmt.Errorf("visit login: %w", err)
	}
	return c.checkStatus(resp)
}

func (c *Client) checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w (HTTP %d)", ErrAuthExpired, code)
	case code >= 400:
		return fmt.Errorf("HTTP %d", code)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, account model.Account, extraCookies map[string]string) *resty.Request {
	client := resty.New().
		SetTimeout(c.cfg.Timeout()).
		SetRetryCount(c.cfg.Retry.Count).
		SetRetryWaitTime(c.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(c.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode() >= 500
		})

	client.SetHeaders(map[string]string{
		"User-Agent":      c.cfg.UserAgent,
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
		"Referer":         c.prov.Domain,
		"Origin":          c.prov.Domain,
	})
	if account.APIUser != "" {
		client.SetHeader(c.prov.APIUserKey, account.APIUser)
	}

	cookies := model.MergeCookies(extraCookies, account.Cookies)
	client.SetCookies(model.CookiesToHTTP(cookies, c.prov.Domain))

	if c.bus != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			c.bus.Log("debug", "http request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
			return nil
		})
	}

	return client.R().SetContext(ctx)
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
