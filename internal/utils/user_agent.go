package utils

import "strings"

const defaultDesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// DefaultDesktopUserAgent 返回默认的桌面浏览器 UA。
func DefaultDesktopUserAgent() string {
	return defaultDesktopUserAgent
}

// NormalizeDesktopUserAgent 把 UA 规范为“桌面端”风格；当入参为空或不像桌面 UA 时，
// 返回默认 UA。签到接口对手机端 UA 的风控更严格，统一走桌面 UA。
func NormalizeDesktopUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultDesktopUserAgent
	}
	if looksLikeDesktopUA(v) {
		return v
	}
	return defaultDesktopUserAgent
}

func looksLikeDesktopUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "mobile") || strings.Contains(s, "iphone") || strings.Contains(s, "android") || strings.Contains(s, "ipad") {
		return false
	}
	return strings.Contains(s, "windows") || strings.Contains(s, "macintosh") || strings.Contains(s, "x11") || strings.Contains(s, "linux")
}
