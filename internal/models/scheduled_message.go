package models

import (
	"time"

	"pulse/internal/domain"

	"gorm.io/gorm"
)

// ScheduledMessage is a future message-send job. Status leaves pending exactly once.
type ScheduledMessage struct {
	ID            string    `gorm:"primaryKey;size:36" json:"_id"`
	SenderID      string    `gorm:"size:36;not null;index" json:"sender"`
	ChatID        string    `gorm:"size:36;not null;index" json:"chat"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	ScheduledTime time.Time `gorm:"not null;index" json:"scheduledTime"`
	Status        string    `gorm:"size:20;not null;default:'pending';index" json:"status"` // pending | sent | failed | cancelled
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

func (m *ScheduledMessage) BeforeCreate(*gorm.DB) error {
	m.ID = newID(m.ID)
	if m.Status == "" {
		m.Status = domain.ScheduledPending
	}
	return nil
}

func (m *ScheduledMessage) IsPending() bool { return m.Status == domain.ScheduledPending }
