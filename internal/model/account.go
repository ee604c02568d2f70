package model

import (
	"strings"

	"neuroassess/common/utils"
)

// Account 登录账号
type Account struct {
	BaseModel
	Username    string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password    string `gorm:"size:255;not null" json:"-"`  // bcrypt
	Authorities string `gorm:"size:500" json:"authorities"` // 逗号分隔，如 ROLE_practitioner,ROLE_rest-admin
	Status      int8   `gorm:"default:1" json:"status"`     // 0:禁用 1:启用
}

// TableName 表名
func (Account) TableName() string {
	return "na_account"
}

// AuthorityList 拆分权限列表
func (a *Account) AuthorityList() []string {
	parts := strings.Split(a.Authorities, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return utils.SliceUnique(out)
}

// Enabled 是否启用
func (a *Account) Enabled() bool {
	return a.Status == 1
}
