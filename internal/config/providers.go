package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"checkin_engine/internal/model"
)

// ProvidersEnv 自定义 Provider 环境变量：JSON 对象 {name: {domain, ...}}，
// 覆盖/扩展文件和内置默认值。
const ProvidersEnv = "CHECKIN_PROVIDERS"

// DefaultProviders 内置的 Provider 配置，文件和环境变量都没有时兜底。
func DefaultProviders() map[string]model.ProviderConfig {
	providers := map[string]model.ProviderConfig{
		"anyrouter": {
			Name:           "anyrouter",
			Domain:         "https://anyrouter.top",
			SigninMethod:   model.SigninMethodBrowserWAF,
			WAFCookieNames: []string{"acw_tc", "cdn_sec_tc", "acw_sc__v2"},
		},
		"agentrouter": {
			Name:         "agentrouter",
			Domain:       "https://agentrouter.org",
			SigninMethod: model.SigninMethodHTTPLogin,
		},
	}
	for name, p := range providers {
		p.ApplyDefaults()
		providers[name] = p
	}
	return providers
}

// LoadProviders 按"内置默认 ← providers.json ← 环境变量"的顺序叠加。
// 单个条目解析失败只产生 warning 并跳过，不影响其他 provider。
func LoadProviders(path string) (map[string]model.ProviderConfig, []string) {
	providers := DefaultProviders()
	var warnings []string

	if b, err := os.ReadFile(path); err == nil {
		w := mergeProviders(providers, b, path)
		warnings = append(warnings, w...)
	} else if !os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("读取 %s 失败: %v", path, err))
	}

	if raw := strings.TrimSpace(os.Getenv(ProvidersEnv)); raw != "" {
		w := mergeProviders(providers, []byte(raw), ProvidersEnv)
		warnings = append(warnings, w...)
	}

	return providers, warnings
}

func mergeProviders(dst map[string]model.ProviderConfig, data []byte, source string) []string {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return []string{fmt.Sprintf("%s 必须是 JSON 对象: %v", source, err)}
	}

	var warnings []string
	for name, raw := range entries {
		var p model.ProviderConfig
		if err := json.Unmarshal(raw, &p); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: 解析 provider %q 失败: %v", source, name, err))
			continue
		}
		if strings.TrimSpace(p.Domain) == "" {
			warnings = append(warnings, fmt.Sprintf("%s: provider %q 缺少 domain，已跳过", source, name))
			continue
		}
		if p.SigninMethod != "" && !p.SigninMethod.Valid() {
			warnings = append(warnings, fmt.Sprintf("%s: provider %q signin_method 无效: %q", source, name, p.SigninMethod))
			continue
		}
		p.Name = name
		p.ApplyDefaults()
		dst[name] = p
	}
	return warnings
}
