package models

import (
	"time"

	"pulse/internal/domain"

	"gorm.io/gorm"
)

// Call is the permanent call-log entry for one call attempt. Rows are never deleted.
type Call struct {
	ID         string     `gorm:"primaryKey;size:36" json:"_id"`
	CallerID   string     `gorm:"size:36;not null;index" json:"caller"`
	ReceiverID string     `gorm:"size:36;not null;index" json:"receiver"`
	Type       string     `gorm:"size:10;not null" json:"type"`                           // voice | video
	Status     string     `gorm:"size:20;not null;default:'missed';index" json:"status"` // missed | answered | rejected | ended
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Duration   int        `gorm:"default:0" json:"duration"` // seconds
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (Call) TableName() string {
	return "calls"
}

func (c *Call) BeforeCreate(*gorm.DB) error {
	c.ID = newID(c.ID)
	if c.Status == "" {
		c.Status = domain.CallStatusMissed
	}
	return nil
}

// CanTransition reports whether the record may move from its current status to next.
// missed -> answered | rejected, answered -> ended; nothing else.
func (c *Call) CanTransition(next string) bool {
	switch c.Status {
	case domain.CallStatusMissed:
		return next == domain.CallStatusAnswered || next == domain.CallStatusRejected
	case domain.CallStatusAnswered:
		return next == domain.CallStatusEnded
	}
	return false
}

// IsParty reports whether userID is the caller or the receiver.
func (c *Call) IsParty(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.ReceiverID)
}

// DurationUntil returns whole seconds between StartedAt and end, or 0 when the
// call never started.
func (c *Call) DurationUntil(end time.Time) int {
	if c.StartedAt == nil {
		return 0
	}
	d := end.Sub(*c.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}
