package model

import (
	"fmt"
	"time"
)

type Account struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Provider  string            `json:"provider"`
	APIUser   string            `json:"api_user"`
	Cookies   map[string]string `json:"cookies"`
	Active    bool              `json:"active,omitempty"`
	CreatedAt time.Time         `json:"createdAt,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

// Key 返回账号的唯一标识（provider + api_user），用于余额指纹和签到记录。
func (a Account) Key() string {
	return a.Provider + "_" + a.APIUser
}

// DisplayName 返回用于日志/通知的显示名，未配置 name 时按序号生成。
func (a Account) DisplayName(index int) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("Account %d", index+1)
}
