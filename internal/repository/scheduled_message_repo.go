package repository

import (
	"context"
	"fmt"
	"time"

	"pulse/internal/domain"
	"pulse/internal/models"

	"gorm.io/gorm"
)

type ScheduledMessageRepository struct {
	db *gorm.DB
}

func NewScheduledMessageRepository(db *gorm.DB) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

func (r *ScheduledMessageRepository) Create(ctx context.Context, m *models.ScheduledMessage) error {
	return wrap("create scheduled message", r.db.WithContext(ctx).Create(m).Error)
}

func (r *ScheduledMessageRepository) GetByID(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	var m models.ScheduledMessage
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrap("get scheduled message", err)
	}
	return &m, nil
}

// ListPending returns every pending entry ordered by scheduled time.
func (r *ScheduledMessageRepository) ListPending(ctx context.Context) ([]models.ScheduledMessage, error) {
	var list []models.ScheduledMessage
	err := r.db.WithContext(ctx).Where("status = ?", domain.ScheduledPending).
		Order("scheduled_time ASC").Find(&list).Error
	return list, wrap("list pending", err)
}

// ListPendingByChat returns the sender's pending entries for one chat.
func (r *ScheduledMessageRepository) ListPendingByChat(ctx context.Context, chatID, senderID string) ([]models.ScheduledMessage, error) {
	var list []models.ScheduledMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND sender_id = ? AND status = ?", chatID, senderID, domain.ScheduledPending).
		Order("scheduled_time ASC").Find(&list).Error
	return list, wrap("list pending by chat", err)
}

// Transition moves a pending entry to status. It returns domain.ErrNotPending
// when the entry already left pending.
func (r *ScheduledMessageRepository) Transition(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return leavePending(tx, id, status)
	})
}

// Deliver atomically claims a pending entry as sent, creates the real message
// and moves the chat's last-message pointer. Nothing is written unless all three succeed.
func (r *ScheduledMessageRepository) Deliver(ctx context.Context, id string) (*models.Message, error) {
	var msg *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sm models.ScheduledMessage
		if err := tx.First(&sm, "id = ?", id).Error; err != nil {
			return wrap("get scheduled message", err)
		}
		if err := leavePending(tx, id, domain.ScheduledSent); err != nil {
			return err
		}
		m := &models.Message{
			ChatID:   sm.ChatID,
			SenderID: sm.SenderID,
			Content:  sm.Content,
			Type:     domain.MessageTypeText,
		}
		if err := createMessage(tx, m); err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func leavePending(tx *gorm.DB, id, status string) error {
	res := tx.Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, domain.ScheduledPending).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return wrap("update scheduled message", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&models.ScheduledMessage{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return wrap("count scheduled message", err)
		}
		if n == 0 {
			return wrap("update scheduled message", gorm.ErrRecordNotFound)
		}
		return fmt.Errorf("scheduled message %s: %w", id, domain.ErrNotPending)
	}
	return nil
}
