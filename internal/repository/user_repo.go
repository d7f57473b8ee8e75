package repository

import (
	"context"
	"time"

	"pulse/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return wrap("create user", r.db.WithContext(ctx).Create(u).Error)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, wrap("get user", err)
	}
	return &u, nil
}

// SetPresence stamps the durable online flag and last-seen time. Unknown users are a no-op.
func (r *UserRepository) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": at}).Error
	return wrap("set presence", err)
}
