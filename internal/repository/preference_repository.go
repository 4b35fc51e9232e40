package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tsubaki-chat/backend/internal/model"
)

type PreferenceRepository interface {
	// GetOrDefault never fails on a missing row: absent preferences mean
	// both channels enabled.
	GetOrDefault(ctx context.Context, userUID string) (*model.NotificationPreference, error)
	Upsert(ctx context.Context, pref *model.NotificationPreference) error
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) GetOrDefault(ctx context.Context, userUID string) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference
	err := r.db.WithContext(ctx).Where("user_uid = ?", userUID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.NotificationPreference{
			UserUID:      userUID,
			InAppEnabled: true,
			SoundEnabled: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.NotificationPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"in_app_enabled", "sound_enabled"}),
		}).
		Create(pref).Error
}
