package models

import (
	"time"

	"gorm.io/gorm"
)

type Chat struct {
	ID            string            `gorm:"primaryKey;size:36" json:"_id"`
	IsGroup       bool              `gorm:"default:false" json:"isGroup"`
	GroupName     string            `gorm:"size:100" json:"groupName"`
	AdminID       *string           `gorm:"size:36" json:"admin,omitempty"`
	LastMessageID *string           `gorm:"size:36" json:"lastMessage,omitempty"`
	Participants  []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (Chat) TableName() string {
	return "chats"
}

func (c *Chat) BeforeCreate(*gorm.DB) error {
	c.ID = newID(c.ID)
	return nil
}

// ParticipantIDs returns the user ids of every participant.
func (c *Chat) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

type ChatParticipant struct {
	ChatID    string    `gorm:"primaryKey;size:36" json:"-"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"_id"`
	CreatedAt time.Time `json:"-"`
}

func (ChatParticipant) TableName() string {
	return "chat_participants"
}

type Message struct {
	ID        string         `gorm:"primaryKey;size:36" json:"_id"`
	ChatID    string         `gorm:"size:36;not null;index" json:"chat"`
	SenderID  string         `gorm:"size:36;not null;index" json:"sender"`
	Content   string         `gorm:"type:text" json:"content"`
	Type      string         `gorm:"size:20;not null;default:'text'" json:"type"`
	FileURL   string         `gorm:"size:512" json:"fileUrl"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	m.ID = newID(m.ID)
	return nil
}
