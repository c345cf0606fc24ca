package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"checkin_engine/internal/utils"
)

// Error 配置错误：配置坏了所有账号都没法安全处理，整次运行直接终止。
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(msg string, err error) *Error { return &Error{Msg: msg, Err: err} }

// IsConfigError 判断错误是否属于致命的配置错误。
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Browser BrowserConfig `yaml:"browser"`
	Limits  LimitsConfig  `yaml:"limits"`
	Notify  NotifyConfig  `yaml:"notify"`

	ProvidersFile string `yaml:"providersFile"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
	// DisableDB 为 true 时不落 sqlite，改用进程内存储（CI 模式）。
	DisableDB bool `yaml:"disableDb"`
}

type HTTPConfig struct {
	TimeoutMs int         `yaml:"timeoutMs"`
	UserAgent string      `yaml:"userAgent"`
	Retry     RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c HTTPConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c RetryConfig) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c RetryConfig) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type BrowserConfig struct {
	Headless     bool `yaml:"headless"`
	NavTimeoutMs int  `yaml:"navTimeoutMs"`
}

func (c BrowserConfig) NavTimeout() time.Duration {
	if c.NavTimeoutMs <= 0 {
		return 45 * time.Second
	}
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

type LimitsConfig struct {
	// MaxConcurrentAccounts 同时处理的账号数上限。
	MaxConcurrentAccounts int     `yaml:"maxConcurrentAccounts"`
	GlobalQPS             float64 `yaml:"globalQPS"`
	GlobalBurst           int     `yaml:"globalBurst"`
}

type NotifyConfig struct {
	Email           EmailConfig    `yaml:"email"`
	DingTalkWebhook string         `yaml:"dingtalkWebhook"`
	FeishuWebhook   string         `yaml:"feishuWebhook"`
	WecomWebhook    string         `yaml:"wecomWebhook"`
	Telegram        TelegramConfig `yaml:"telegram"`
	Gotify          GotifyConfig   `yaml:"gotify"`
	PushPlusToken   string         `yaml:"pushplusToken"`
	ServerChanKey   string         `yaml:"serverChanKey"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	AuthCode string `yaml:"authCode"`
	To       string `yaml:"to"`
	SMTPHost string `yaml:"smtpHost"`
}

type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

type GotifyConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Priority int    `yaml:"priority"`
}

// Load 读取 yaml 配置。文件不存在时返回默认配置：这个程序允许纯环境变量驱动。
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, newError("read "+path, err)
		}
	} else if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, newError("parse "+path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/checkin_engine.db"
	}
	if c.ProvidersFile == "" {
		c.ProvidersFile = "./providers.json"
	}
	if c.Limits.MaxConcurrentAccounts <= 0 {
		c.Limits.MaxConcurrentAccounts = 3
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 2
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 4
	}
	c.HTTP.UserAgent = utils.NormalizeDesktopUserAgent(c.HTTP.UserAgent)
	if c.HTTP.Retry.Count < 0 {
		c.HTTP.Retry.Count = 0
	}
	if c.Notify.Gotify.Priority <= 0 {
		c.Notify.Gotify.Priority = 9
	}
	if c.Notify.Gotify.Priority > 10 {
		c.Notify.Gotify.Priority = 10
	}
	if c.Notify.Email.To == "" {
		c.Notify.Email.To = c.Notify.Email.Email
	}
}

// applyEnv 用环境变量补齐通知渠道和运行开关，布置在 yaml 之上；
// 环境变量非空时覆盖文件里的值，方便在 CI secrets 里配置。
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&c.Storage.SQLitePath, "CHECKIN_SQLITE_PATH")
	setStr(&c.Notify.DingTalkWebhook, "DINGDING_WEBHOOK")
	setStr(&c.Notify.FeishuWebhook, "FEISHU_WEBHOOK")
	setStr(&c.Notify.WecomWebhook, "WEIXIN_WEBHOOK")
	setStr(&c.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setStr(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setStr(&c.Notify.Gotify.URL, "GOTIFY_URL")
	setStr(&c.Notify.Gotify.Token, "GOTIFY_TOKEN")
	setStr(&c.Notify.PushPlusToken, "PUSHPLUS_TOKEN")
	setStr(&c.Notify.ServerChanKey, "SERVERPUSHKEY")
	setStr(&c.Notify.Email.Email, "EMAIL_USER")
	setStr(&c.Notify.Email.AuthCode, "EMAIL_PASS")
	setStr(&c.Notify.Email.To, "EMAIL_TO")
	setStr(&c.Notify.Email.SMTPHost, "CUSTOM_SMTP_SERVER")
	if c.Notify.Email.Email != "" && c.Notify.Email.AuthCode != "" {
		c.Notify.Email.Enabled = true
	}

	if v := strings.TrimSpace(os.Getenv("GOTIFY_PRIORITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.Gotify.Priority = n
		}
	}
	if envBool("CHECKIN_DISABLE_DB") || envBool("GITHUB_ACTIONS") {
		c.Storage.DisableDB = true
	}
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
