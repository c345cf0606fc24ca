package model

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ParseCookieHeader 把 "k=v; k2=v2" 形式的 cookie 字符串解析为 map。
// 没有 '=' 的片段会被忽略。
func ParseCookieHeader(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// MergeCookies 合并多组 cookies，后面的覆盖前面的。
func MergeCookies(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

// CookiesToHTTP 把 map 形式的 cookies 转为 http.Cookie 列表，按名称排序保证稳定。
func CookiesToHTTP(in map[string]string, domain string) []*http.Cookie {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)

	host := domain
	if u, err := url.Parse(domain); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	out := make([]*http.Cookie, 0, len(in))
	for _, name := range names {
		out = append(out, &http.Cookie{
			Name:   name,
			Value:  in[name],
			Path:   "/",
			Domain: host,
		})
	}
	return out
}
