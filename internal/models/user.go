package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        string         `gorm:"primaryKey;size:36" json:"_id"`
	Phone     *string        `gorm:"uniqueIndex;size:32" json:"phone,omitempty"`
	Name      string         `gorm:"size:50" json:"name"`
	Avatar    string         `gorm:"size:512" json:"avatar"`
	About     string         `gorm:"size:140" json:"about"`
	IsOnline  bool           `gorm:"default:false;index" json:"isOnline"`
	LastSeen  time.Time      `json:"lastSeen"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	u.ID = newID(u.ID)
	return nil
}
