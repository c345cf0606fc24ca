package notify

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"checkin_engine/internal/config"
)

type emailChannel struct {
	cfg config.EmailConfig
}

func (c *emailChannel) Name() string { return "email" }

func (c *emailChannel) Send(ctx context.Context, title, content string) error {
	if err := validateEmailSettings(c.cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := strings.TrimSpace(c.cfg.Email)
	to := strings.TrimSpace(c.cfg.To)
	if to == "" {
		to = from
	}

	host, port, useSSL, err := smtpConfigForEmail(from, c.cfg.SMTPHost)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(from, "签到助手"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", title)
	msg.SetBody("text/plain", content)

	d := gomail.NewDialer(host, port, from, strings.TrimSpace(c.cfg.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func validateEmailSettings(s config.EmailConfig) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

// smtpConfigForEmail 根据发件地址推断 SMTP 服务器；customHost 非空时直接用它（465/SSL）。
func smtpConfigForEmail(email, customHost string) (host string, port int, useSSL bool, err error) {
	if h := strings.TrimSpace(customHost); h != "" {
		return h, 465, true, nil
	}

	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com":
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || domain == "126.com" || domain == "yeah.net":
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com":
		return "smtp.office365.com", 587, false, nil
	case domain == "sina.com":
		return "smtp.sina.com", 465, true, nil
	case domain == "aliyun.com":
		return "smtp.aliyun.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}
