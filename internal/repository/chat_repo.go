package repository

import (
	"context"

	"pulse/internal/models"

	"gorm.io/gorm"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, c *models.Chat) error {
	return wrap("create chat", r.db.WithContext(ctx).Create(c).Error)
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	if err := r.db.WithContext(ctx).Preload("Participants").First(&c, "id = ?", id).Error; err != nil {
		return nil, wrap("get chat", err)
	}
	return &c, nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	var list []models.Message
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, wrap("list messages", err)
}

// createMessage inserts m and moves the chat's last-message pointer using tx.
func createMessage(tx *gorm.DB, m *models.Message) error {
	if err := tx.Create(m).Error; err != nil {
		return wrap("create message", err)
	}
	res := tx.Model(&models.Chat{}).Where("id = ?", m.ChatID).Update("last_message_id", m.ID)
	if res.Error != nil {
		return wrap("set last message", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("set last message", gorm.ErrRecordNotFound)
	}
	return nil
}

// CreateMessage inserts m and updates the owning chat's last message in one transaction.
func (r *ChatRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createMessage(tx, m)
	})
}
