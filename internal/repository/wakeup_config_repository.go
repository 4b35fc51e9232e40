package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/model"
)

type WakeupConfigRepository interface {
	dispatch.ConfigStore
}

type wakeupConfigRepository struct {
	db                 *gorm.DB
	defaultMinInterval int
}

func NewWakeupConfigRepository(db *gorm.DB, defaultMinIntervalSeconds int) WakeupConfigRepository {
	if defaultMinIntervalSeconds < 1 {
		defaultMinIntervalSeconds = 15
	}
	return &wakeupConfigRepository{db: db, defaultMinInterval: defaultMinIntervalSeconds}
}

// Get returns the singleton row, creating it with defaults on first use.
func (r *wakeupConfigRepository) Get(ctx context.Context) (*model.WakeupConfig, error) {
	var cfg model.WakeupConfig
	err := r.db.WithContext(ctx).First(&cfg, model.WakeupConfigID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = model.WakeupConfig{
			ID:                 model.WakeupConfigID,
			Enabled:            true,
			MinIntervalSeconds: r.defaultMinInterval,
		}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&cfg).Error; err != nil {
			return nil, err
		}
		// Re-read in case a concurrent caller created it first.
		if err := r.db.WithContext(ctx).First(&cfg, model.WakeupConfigID).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TryAcquireRunSlot is the debounce gate: a single conditional UPDATE on
// last_run_at. Of any number of concurrent triggers within one interval,
// exactly one sees RowsAffected = 1.
func (r *wakeupConfigRepository) TryAcquireRunSlot(ctx context.Context, now time.Time, minInterval time.Duration) (bool, error) {
	cutoff := now.Add(-minInterval)
	res := r.db.WithContext(ctx).
		Model(&model.WakeupConfig{}).
		Where("id = ? AND (last_run_at IS NULL OR last_run_at <= ?)", model.WakeupConfigID, cutoff).
		Update("last_run_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *wakeupConfigRepository) RecordSkip(ctx context.Context, reason string, debounced bool) error {
	updates := map[string]any{"last_skip_reason": reason}
	if debounced {
		updates["total_debounced"] = gorm.Expr("total_debounced + 1")
	}
	return r.db.WithContext(ctx).
		Model(&model.WakeupConfig{}).
		Where("id = ?", model.WakeupConfigID).
		Updates(updates).Error
}

func (r *wakeupConfigRepository) RecordRun(ctx context.Context, mode dispatch.Mode, reason, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&model.WakeupConfig{}).
		Where("id = ?", model.WakeupConfigID).
		Updates(map[string]any{
			"last_mode":        string(mode),
			"last_reason":      reason,
			"last_skip_reason": "",
			"last_error":       truncate(lastError, 512),
			"total_attempts":   gorm.Expr("total_attempts + 1"),
			"total_scheduled":  gorm.Expr("total_scheduled + 1"),
		}).Error
}

func (r *wakeupConfigRepository) Update(ctx context.Context, patch dispatch.ConfigPatch) (*model.WakeupConfig, error) {
	updates := map[string]any{}
	if patch.Enabled != nil {
		updates["enabled"] = *patch.Enabled
	}
	if patch.ShadowMode != nil {
		updates["shadow_mode"] = *patch.ShadowMode
	}
	if patch.MinIntervalSeconds != nil {
		updates["min_interval_seconds"] = *patch.MinIntervalSeconds
	}
	if len(updates) > 0 {
		// Ensure the singleton exists before patching it.
		if _, err := r.Get(ctx); err != nil {
			return nil, err
		}
		if err := r.db.WithContext(ctx).
			Model(&model.WakeupConfig{}).
			Where("id = ?", model.WakeupConfigID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return r.Get(ctx)
}
