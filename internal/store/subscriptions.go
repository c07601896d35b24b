package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mes-backend/internal/model"
)

// PutSubscription creates or replaces a subscription and its machine set.
// Unknown machine ids are ignored.
func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription, machineIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		machines := []*model.Machine{}
		if len(machineIDs) > 0 {
			if err := tx.Find(&machines, machineIDs).Error; err != nil {
				return fmt.Errorf("failed to load subscribed machines: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Machines").Replace(machines); err != nil {
			return fmt.Errorf("failed to replace subscribed machines: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		Preload("Machines", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&sub, "endpoint = ?", endpoint).Error
	if err != nil {
		return nil, notFound(err, "Subscription", endpoint)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription and its machine links.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Machines").Clear(); err != nil {
			return fmt.Errorf("failed to unlink subscription: %w", err)
		}
		if err := tx.Delete(&sub).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// SubscriptionsForMachine lists the subscriptions following machineID.
func (s *gormStore) SubscriptionsForMachine(ctx context.Context, machineID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_machines sm ON sm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sm.machine_id = ?", machineID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions for machine %d: %w", machineID, err)
	}
	return subs, nil
}
