package db

import (
	"context"
	"errors"

	"github.com/joenofro/revenue-api/internal/model"
	"gorm.io/gorm"
)

func (s *gormService) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

// RecordWebhookEvent stores the event id. It returns false when the id was
// already recorded.
func (s *gormService) RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	err := translate(s.db.WithContext(ctx).Create(event).Error)
	if errors.Is(err, ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *gormService) CreatePayment(ctx context.Context, p *model.Payment) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

// SetPaymentStatus updates the status of a known intent, inserting it when the
// intent was created outside this service.
func (s *gormService) SetPaymentStatus(ctx context.Context, p *model.Payment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Payment{}).
			Where("payment_intent_id = ?", p.PaymentIntentID).
			Update("status", p.Status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		return tx.Create(p).Error
	})
}

func (s *gormService) GetPayment(ctx context.Context, intentID string) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
