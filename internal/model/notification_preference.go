package model

import "time"

// NotificationPreference holds a user's delivery preferences. They are read
// once at event fan-out time to stamp DeliverInApp/DeliverSound onto the
// recipient row; later edits affect only future events. A missing row means
// both channels enabled.
type NotificationPreference struct {
	UserUID      string    `gorm:"column:user_uid;primaryKey;size:128" json:"userUid"`
	InAppEnabled bool      `gorm:"column:in_app_enabled;not null;default:true" json:"inAppEnabled"`
	SoundEnabled bool      `gorm:"column:sound_enabled;not null;default:true" json:"soundEnabled"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}
