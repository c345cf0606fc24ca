package result

import (
	"fmt"
	"strings"
	"time"
)

// CooldownWindow 签到冷却时间：平台每 24 小时只发一次额度。
const CooldownWindow = 24 * time.Hour

type Status string

const (
	// StatusSuccess 余额增加，签到拿到了新额度。
	StatusSuccess Status = "success"
	// StatusCooldown 冷却期内重复执行，余额没变。
	StatusCooldown Status = "cooldown"
	// StatusFailed 签到失败或余额异常。
	StatusFailed Status = "failed"
	// StatusFirstRun 首次运行，没有历史基线。
	StatusFirstRun Status = "first_run"
	// StatusError 处理过程发生错误（网络、配置等）。
	StatusError Status = "error"
)

type UserBalance struct {
	Quota     float64 `json:"quota"`
	UsedQuota float64 `json:"used_quota"`
}

func (b UserBalance) Display() string {
	return fmt.Sprintf("当前余额: $%.2f, 已使用: $%.2f", b.Quota, b.UsedQuota)
}

// SigninRecord 账号最近一次签到的时间和余额，用于冷却期判定。
type SigninRecord struct {
	Time    time.Time `json:"time"`
	Balance *float64  `json:"balance,omitempty"`
}

// SigninResult 单个账号一次运行的结果，创建后不再修改。
type SigninResult struct {
	AccountKey    string        `json:"accountKey"`
	AccountName   string        `json:"accountName"`
	Status        Status        `json:"status"`
	BalanceBefore *float64      `json:"balanceBefore,omitempty"`
	BalanceAfter  *float64      `json:"balanceAfter,omitempty"`
	BalanceDiff   *float64      `json:"balanceDiff,omitempty"`
	Balance       *UserBalance  `json:"balance,omitempty"`
	Error         string        `json:"error,omitempty"`
	NewRecord     *SigninRecord `json:"-"`
}

func (r SigninResult) IsSuccess() bool {
	switch r.Status {
	case StatusSuccess, StatusFirstRun, StatusCooldown:
		return true
	}
	return false
}

type Summary struct {
	Total          int
	Success        int
	Cooldown       int
	Failed         int
	Results        []SigninResult
	BalanceChanged bool
	FirstRun       bool
}

func (s *Summary) Add(r SigninResult) {
	s.Results = append(s.Results, r)
	s.Total++
	switch r.Status {
	case StatusSuccess, StatusFirstRun:
		s.Success++
	case StatusCooldown:
		s.Cooldown++
	case StatusFailed, StatusError:
		s.Failed++
	}
}

// NeedsNotification 失败、余额变化或首次运行时才通知，避免每日刷屏。
func (s Summary) NeedsNotification() bool {
	return s.Failed > 0 || s.BalanceChanged || s.FirstRun
}

// AllSucceeded 所有账号都没有失败，决定进程退出码。
func (s Summary) AllSucceeded() bool {
	return s.Failed == 0
}

func statusLabel(st Status) string {
	switch st {
	case StatusSuccess:
		return "[成功]"
	case StatusFirstRun:
		return "[首次]"
	case StatusCooldown:
		return "[冷却]"
	default:
		return "[失败]"
	}
}

// Render 生成发送到各通知渠道的文本汇总。
func (s Summary) Render(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "执行时间: %s\n\n", now.Format("2006-01-02 15:04:05"))

	for _, r := range s.Results {
		fmt.Fprintf(&b, "%s %s", statusLabel(r.Status), r.AccountName)
		if r.Balance != nil {
			fmt.Fprintf(&b, "\n%s", r.Balance.Display())
		}
		if r.BalanceDiff != nil && *r.BalanceDiff > 0 {
			fmt.Fprintf(&b, "（+$%.2f）", *r.BalanceDiff)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "\n错误: %s", r.Error)
		}
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "签到结果统计:\n成功: %d/%d\n失败: %d/%d",
		s.Success+s.Cooldown, s.Total, s.Failed, s.Total)
	switch {
	case s.Total > 0 && s.Failed == 0:
		b.WriteString("\n所有账号签到成功")
	case s.Failed < s.Total:
		b.WriteString("\n部分账号签到成功")
	default:
		b.WriteString("\n所有账号签到失败")
	}
	return b.String()
}

// Classify 根据当前余额和上次记录判定本次签到状态。
// 返回状态和余额变化值（首次运行没有变化值）。
func Classify(current float64, rec *SigninRecord, now time.Time) (Status, *float64) {
	if rec == nil || rec.Balance == nil {
		return StatusFirstRun, nil
	}

	diff := round2(current - *rec.Balance)
	switch {
	case diff > 0:
		return StatusSuccess, &diff
	case diff == 0:
		if now.Sub(rec.Time) < CooldownWindow {
			return StatusCooldown, &diff
		}
		// 不在冷却期但余额没增加，说明签到没生效。
		return StatusFailed, &diff
	default:
		return StatusFailed, &diff
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+copysignHalf(v))) / 100
}

func copysignHalf(v float64) float64 {
	if v < 0 {
		return -0.5
	}
	return 0.5
}
