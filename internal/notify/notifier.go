package notify

import (
	"context"
	"sync"

	"checkin_engine/internal/config"
	"checkin_engine/internal/logbus"
)

// Channel 一个通知渠道。Send 失败只影响自己，不影响其他渠道。
type Channel interface {
	Name() string
	Send(ctx context.Context, title, content string) error
}

// Kit 多渠道通知管理器：把同一份汇总推送到所有已配置的渠道。
type Kit struct {
	channels []Channel
	bus      *logbus.Bus
}

// NewKit 根据配置构建渠道列表；没配置的渠道直接不创建。
func NewKit(cfg config.NotifyConfig, bus *logbus.Bus) *Kit {
	var channels []Channel

	if cfg.Email.Enabled && cfg.Email.Email != "" && cfg.Email.AuthCode != "" {
		channels = append(channels, &emailChannel{cfg: cfg.Email})
	}
	if cfg.DingTalkWebhook != "" {
		channels = append(channels, newDingTalkChannel(cfg.DingTalkWebhook))
	}
	if cfg.FeishuWebhook != "" {
		channels = append(channels, newFeishuChannel(cfg.FeishuWebhook))
	}
	if cfg.WecomWebhook != "" {
		channels = append(channels, newWecomChannel(cfg.WecomWebhook))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		channels = append(channels, newTelegramChannel(telegramAPIBase, cfg.Telegram))
	}
	if cfg.Gotify.URL != "" && cfg.Gotify.Token != "" {
		channels = append(channels, newGotifyChannel(cfg.Gotify))
	}
	if cfg.PushPlusToken != "" {
		channels = append(channels, newPushPlusChannel(cfg.PushPlusToken))
	}
	if cfg.ServerChanKey != "" {
		channels = append(channels, newServerChanChannel(cfg.ServerChanKey))
	}

	return &Kit{channels: channels, bus: bus}
}

func (k *Kit) ChannelCount() int { return len(k.channels) }

// Push 并发推送到所有渠道，单个渠道失败不阻塞其他渠道。
// 返回每个渠道的发送结果。
func (k *Kit) Push(ctx context.Context, title, content string) map[string]bool {
	results := make(map[string]bool, len(k.channels))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, ch := range k.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			err := ch.Send(ctx, title, content)

			mu.Lock()
			results[ch.Name()] = err == nil
			mu.Unlock()

			if k.bus == nil {
				return
			}
			if err != nil {
				k.bus.Log("warn", "消息推送失败", map[string]any{
					"channel": ch.Name(),
					"error":   err.Error(),
				})
			} else {
				k.bus.Log("info", "消息推送成功", map[string]any{"channel": ch.Name()})
			}
		}(ch)
	}
	wg.Wait()
	return results
}
