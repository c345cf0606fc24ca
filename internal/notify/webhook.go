package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"

	"checkin_engine/internal/config"
)

const (
	telegramAPIBase = "https://api.telegram.org"
	pushPlusURL     = "http://www.pushplus.plus/send"
	serverChanBase  = "https://sctapi.ftqq.com"

	webhookTimeout = 30 * time.Second
)

// webhookChannel 通用的"渲染 payload 然后 POST"渠道。
type webhookChannel struct {
	name    string
	url     string
	headers map[string]string
	payload func(title, content string) any
}

func (c *webhookChannel) Name() string { return c.name }

func (c *webhookChannel) Send(ctx context.Context, title, content string) error {
	resp, err := resty.New().
		SetTimeout(webhookTimeout).
		R().
		SetContext(ctx).
		SetHeaders(c.headers).
		SetBody(c.payload(title, content)).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%s: HTTP %d", c.name, resp.StatusCode())
	}
	return nil
}

func newDingTalkChannel(webhook string) *webhookChannel {
	return &webhookChannel{
		name: "dingtalk",
		url:  webhook,
		payload: func(title, content string) any {
			return map[string]any{
				"msgtype": "text",
				"text":    map[string]string{"content": title + "\n" + content},
			}
		},
	}
}

func newFeishuChannel(webhook string) *webhookChannel {
	return &webhookChannel{
		name: "feishu",
		url:  webhook,
		payload: func(title, content string) any {
			return map[string]any{
				"msg_type": "interactive",
				"card": map[string]any{
					"header": map[string]any{
						"template": "blue",
						"title":    map[string]string{"tag": "plain_text", "content": title},
					},
					"elements": []any{
						map[string]string{"tag": "markdown", "content": content, "text_align": "left"},
					},
				},
			}
		},
	}
}

func newWecomChannel(webhook string) *webhookChannel {
	return &webhookChannel{
		name: "wecom",
		url:  webhook,
		payload: func(title, content string) any {
			return map[string]any{
				"msgtype": "text",
				"text":    map[string]string{"content": title + "\n" + content},
			}
		},
	}
}

func newTelegramChannel(apiBase string, cfg config.TelegramConfig) *webhookChannel {
	return &webhookChannel{
		name: "telegram",
		url:  fmt.Sprintf("%s/bot%s/sendMessage", apiBase, cfg.BotToken),
		payload: func(title, content string) any {
			// parse_mode=HTML 下账号名/错误文本里的 < & 必须转义，否则 Bot API 拒收
			return map[string]string{
				"chat_id": cfg.ChatID,
				"text": fmt.Sprintf("<b>%s</b>\n\n%s",
					html.EscapeString(title), html.EscapeString(content)),
				"parse_mode": "HTML",
			}
		},
	}
}

func newGotifyChannel(cfg config.GotifyConfig) *webhookChannel {
	return &webhookChannel{
		name: "gotify",
		url:  cfg.URL + "/message",
		// token 走 Header 认证，避免出现在 URL 里
		headers: map[string]string{"X-Gotify-Key": cfg.Token},
		payload: func(title, content string) any {
			return map[string]any{
				"title":    title,
				"message":  content,
				"priority": cfg.Priority,
			}
		},
	}
}

func newPushPlusChannel(token string) *webhookChannel {
	return &webhookChannel{
		name: "pushplus",
		url:  pushPlusURL,
		payload: func(title, content string) any {
			return map[string]string{
				"token":    token,
				"title":    title,
				"content":  content,
				"template": "txt",
			}
		},
	}
}

func newServerChanChannel(key string) *webhookChannel {
	return &webhookChannel{
		name: "serverchan",
		url:  fmt.Sprintf("%s/%s.send", serverChanBase, key),
		payload: func(title, content string) any {
			return map[string]string{"title": title, "desp": content}
		},
	}
}
