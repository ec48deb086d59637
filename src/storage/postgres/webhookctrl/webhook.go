package webhookctrl

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"skuflow/src/core/webhook"
)

// WebhookService implements webhook.Registry on PostgreSQL.
type WebhookService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewWebhookService(db *gorm.DB) (*WebhookService, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	if err := db.AutoMigrate(&webhook.Subscription{}); err != nil {
		return nil, fmt.Errorf("failed to migrate subscriptions: %w", err)
	}

	return &WebhookService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *WebhookService) Create(ctx context.Context, sub *webhook.Subscription) error {
	sub.ID = s.snowflake.Generate().Int64()
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *WebhookService) Update(ctx context.Context, id int64, sub webhook.Subscription) (*webhook.Subscription, error) {
	result := s.db.WithContext(ctx).Model(&webhook.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"url":        sub.URL,
			"event_type": sub.EventType,
			"is_active":  sub.IsActive,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, webhook.ErrNotFound
	}

	var updated webhook.Subscription
	if err := s.db.WithContext(ctx).First(&updated, id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload subscription: %w", err)
	}
	return &updated, nil
}

func (s *WebhookService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&webhook.Subscription{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *WebhookService) List(ctx context.Context) ([]webhook.Subscription, error) {
	var subs []webhook.Subscription
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *WebhookService) ListActive(ctx context.Context, eventType string) ([]webhook.Subscription, error) {
	var subs []webhook.Subscription
	err := s.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", eventType, true).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

var _ webhook.Registry = (*WebhookService)(nil)
