package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tsubaki-chat/backend/internal/model"
)

type PushSubscriptionRepository interface {
	// Upsert registers a subscription, superseding any older endpoint from
	// the same installation and replacing an existing row for the same
	// endpoint.
	Upsert(ctx context.Context, sub *model.PushSubscription) error
	FindByUser(ctx context.Context, userUID string) ([]model.PushSubscription, error)
	FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteOwned(ctx context.Context, userUID, endpoint string) error
}

type pushSubscriptionRepository struct {
	db *gorm.DB
}

func NewPushSubscriptionRepository(db *gorm.DB) PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

func (r *pushSubscriptionRepository) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A re-subscription from the same install gets a new endpoint from
		// the provider; the stale one would otherwise keep receiving jobs.
		if sub.InstallationID != "" {
			if err := tx.Where("installation_id = ? AND user_uid = ? AND endpoint <> ?",
				sub.InstallationID, sub.UserUID, sub.Endpoint).
				Delete(&model.PushSubscription{}).Error; err != nil {
				return err
			}
		}

		var existing model.PushSubscription
		err := tx.Where("endpoint = ?", sub.Endpoint).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(sub).Error
		case err != nil:
			return err
		}

		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		return tx.Save(sub).Error
	})
}

func (r *pushSubscriptionRepository) FindByUser(ctx context.Context, userUID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := r.db.WithContext(ctx).
		Where("user_uid = ?", userUID).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *pushSubscriptionRepository) FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *pushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&model.PushSubscription{}).Error
}

func (r *pushSubscriptionRepository) DeleteOwned(ctx context.Context, userUID, endpoint string) error {
	res := r.db.WithContext(ctx).
		Where("user_uid = ? AND endpoint = ?", userUID, endpoint).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
