package model

import "time"

// NotificationRecipient is the per-user copy of an event. DeliverInApp and
// DeliverSound are resolved from the recipient's preferences at creation time
// and never re-evaluated. Only the recipient's read/dismiss actions mutate a
// row; the dispatch subsystem treats it as read-only.
type NotificationRecipient struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      uint64     `gorm:"column:event_id;index;not null" json:"eventId"`
	RecipientUID string     `gorm:"column:recipient_uid;size:128;index;not null" json:"recipientUid"`
	DeliverInApp bool       `gorm:"column:deliver_in_app;not null" json:"deliverInApp"`
	DeliverSound bool       `gorm:"column:deliver_sound;not null" json:"deliverSound"`
	ReadAt       *time.Time `gorm:"column:read_at" json:"readAt,omitempty"`
	DismissedAt  *time.Time `gorm:"column:dismissed_at" json:"dismissedAt,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (NotificationRecipient) TableName() string {
	return "notification_recipients"
}
