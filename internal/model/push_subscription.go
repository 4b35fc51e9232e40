package model

import "time"

// PushSubscription is one registered device endpoint. InstallationID is stable
// per browser/app install and dedupes re-subscriptions: a new endpoint from the
// same installation supersedes the old one. Rows are deleted when the provider
// reports the endpoint gone (404/410).
type PushSubscription struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Endpoint       string     `gorm:"column:endpoint;size:500;uniqueIndex;not null" json:"endpoint"`
	InstallationID string     `gorm:"column:installation_id;size:128;index" json:"installationId"`
	P256dhKey      string     `gorm:"column:p256dh_key;size:256;not null" json:"p256dhKey"`
	AuthKey        string     `gorm:"column:auth_key;size:256;not null" json:"authKey"`
	ExpirationTime *time.Time `gorm:"column:expiration_time" json:"expirationTime,omitempty"`
	UserUID        string     `gorm:"column:user_uid;size:128;index;not null" json:"userUid"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
