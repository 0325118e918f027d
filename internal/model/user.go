package model

import (
	"time"
)

type UserRole string

const (
	Learner UserRole = "learner"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name      string     `gorm:"size:100;not null" json:"name"`
	Email     string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"size:100;not null" json:"-"`
	Role      UserRole   `gorm:"size:20;default:'learner'" json:"role"`
	XP        int        `gorm:"default:0;index:idx_users_xp" json:"xp"` // 所有课程累计经验，排行榜使用
	Avatar    string     `gorm:"size:255" json:"avatar"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}
