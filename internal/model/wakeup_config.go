package model

import "time"

// WakeupConfig is a single mutable row (ID is always 1) owned by the
// WakeupScheduler. LastRunAt is the compare-and-swap anchor for the debounce
// gate: a trigger only schedules a run if it can atomically advance LastRunAt
// past the minimum interval.
type WakeupConfig struct {
	ID                 uint64     `gorm:"primaryKey" json:"-"`
	Enabled            bool       `gorm:"column:enabled;not null;default:true" json:"enabled"`
	ShadowMode         bool       `gorm:"column:shadow_mode;not null;default:false" json:"shadowMode"`
	MinIntervalSeconds int        `gorm:"column:min_interval_seconds;not null;default:15" json:"minIntervalSeconds"`
	LastRunAt          *time.Time `gorm:"column:last_run_at" json:"lastRunAt,omitempty"`
	LastMode           string     `gorm:"column:last_mode;size:32" json:"lastMode,omitempty"`
	LastReason         string     `gorm:"column:last_reason;size:128" json:"lastReason,omitempty"`
	LastSkipReason     string     `gorm:"column:last_skip_reason;size:64" json:"lastSkipReason,omitempty"`
	LastError          string     `gorm:"column:last_error;size:512" json:"lastError,omitempty"`
	TotalAttempts      uint64     `gorm:"column:total_attempts;not null;default:0" json:"totalAttempts"`
	TotalScheduled     uint64     `gorm:"column:total_scheduled;not null;default:0" json:"totalScheduled"`
	TotalDebounced     uint64     `gorm:"column:total_debounced;not null;default:0" json:"totalDebounced"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (WakeupConfig) TableName() string {
	return "wakeup_configs"
}

// WakeupConfigID is the primary key of the singleton row.
const WakeupConfigID uint64 = 1
