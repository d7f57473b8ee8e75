package repository

import (
	"context"
	"fmt"
	"time"

	"pulse/internal/domain"
	"pulse/internal/models"

	"gorm.io/gorm"
)

type CallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

func (r *CallRepository) CreateCall(ctx context.Context, c *models.Call) error {
	return wrap("create call", r.db.WithContext(ctx).Create(c).Error)
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*models.Call, error) {
	var c models.Call
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, wrap("get call", err)
	}
	return &c, nil
}

// ListByUser returns calls where userID is caller or receiver, newest first.
func (r *CallRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Call, error) {
	var list []models.Call
	err := r.db.WithContext(ctx).
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, wrap("list calls", err)
}

// AnswerCall moves a missed call to answered, stamping startedAt. Only the receiver may answer.
func (r *CallRepository) AnswerCall(ctx context.Context, callID, receiverID string, at time.Time) error {
	_, err := r.transition(ctx, callID, domain.CallStatusAnswered, func(c *models.Call) (map[string]interface{}, error) {
		if c.ReceiverID != receiverID {
			return nil, domain.ErrForbidden
		}
		return map[string]interface{}{"started_at": at}, nil
	})
	return err
}

// RejectCall moves a missed call to rejected. Only the receiver may reject.
func (r *CallRepository) RejectCall(ctx context.Context, callID, receiverID string) error {
	_, err := r.transition(ctx, callID, domain.CallStatusRejected, func(c *models.Call) (map[string]interface{}, error) {
		if c.ReceiverID != receiverID {
			return nil, domain.ErrForbidden
		}
		return map[string]interface{}{}, nil
	})
	return err
}

// EndCall moves an answered call to ended, stamping endedAt and the duration
// in seconds since startedAt. Either party may end.
func (r *CallRepository) EndCall(ctx context.Context, callID, partyID string, at time.Time) (*models.Call, error) {
	return r.transition(ctx, callID, domain.CallStatusEnded, func(c *models.Call) (map[string]interface{}, error) {
		if !c.IsParty(partyID) {
			return nil, domain.ErrForbidden
		}
		return map[string]interface{}{"ended_at": at, "duration": c.DurationUntil(at)}, nil
	})
}

// transition loads the call, validates the move to next and applies it with a
// status-guarded update so concurrent transitions cannot both succeed.
func (r *CallRepository) transition(ctx context.Context, callID, next string, stamp func(*models.Call) (map[string]interface{}, error)) (*models.Call, error) {
	var out models.Call
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Call
		if err := tx.First(&c, "id = ?", callID).Error; err != nil {
			return wrap("get call", err)
		}
		if !c.CanTransition(next) {
			return fmt.Errorf("call %s %s -> %s: %w", callID, c.Status, next, domain.ErrInvalidTransition)
		}
		updates, err := stamp(&c)
		if err != nil {
			return fmt.Errorf("call %s: %w", callID, err)
		}
		updates["status"] = next
		res := tx.Model(&models.Call{}).Where("id = ? AND status = ?", callID, c.Status).Updates(updates)
		if res.Error != nil {
			return wrap("update call", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("call %s changed concurrently: %w", callID, domain.ErrInvalidTransition)
		}
		return tx.First(&out, "id = ?", callID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
