package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"checkin_engine/internal/model"
)

// AccountsEnv 账号配置环境变量：JSON 数组 [{name?, provider?, cookies, api_user}]。
const AccountsEnv = "CHECKIN_ACCOUNTS"

type accountJSON struct {
	Name     string          `json:"name"`
	Provider string          `json:"provider"`
	Cookies  json.RawMessage `json:"cookies"`
	APIUser  string          `json:"api_user"`
}

// LoadAccounts 从环境变量解析账号列表，顺序与 JSON 数组一致。
// 任何格式错误都是致命的 *Error：没有可信的账号配置就不该继续跑。
func LoadAccounts() ([]model.Account, error) {
	raw := strings.TrimSpace(os.Getenv(AccountsEnv))
	if raw == "" {
		return nil, newError(AccountsEnv+" is not set", nil)
	}
	return ParseAccounts([]byte(raw))
}

func ParseAccounts(data []byte) ([]model.Account, error) {
	var entries []accountJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, newError("accounts must be a JSON array", err)
	}

	accounts := make([]model.Account, 0, len(entries))
	for i, e := range entries {
		acc, err := e.toAccount(i)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (e accountJSON) toAccount(index int) (model.Account, error) {
	if strings.TrimSpace(e.APIUser) == "" {
		return model.Account{}, newError(fmt.Sprintf("account %d: api_user is required", index+1), nil)
	}

	cookies, err := parseCookiesField(e.Cookies)
	if err != nil {
		return model.Account{}, newError(fmt.Sprintf("account %d: invalid cookies", index+1), err)
	}
	if len(cookies) == 0 {
		return model.Account{}, newError(fmt.Sprintf("account %d: at least one cookie is required", index+1), nil)
	}

	provider := e.Provider
	if provider == "" {
		provider = "anyrouter"
	}

	return model.Account{
		Name:     e.Name,
		Provider: provider,
		APIUser:  strings.TrimSpace(e.APIUser),
		Cookies:  cookies,
		Active:   true,
	}, nil
}

// parseCookiesField cookies 字段兼容两种写法：JSON 对象或 "k=v; k2=v2" 字符串。
func parseCookiesField(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}

	var asStr string
	if err := json.Unmarshal(raw, &asStr); err != nil {
		return nil, fmt.Errorf("cookies must be an object or a cookie string")
	}
	return model.ParseCookieHeader(asStr), nil
}
