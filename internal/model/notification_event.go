package model

import "time"

// Notification kinds. Events are immutable once created; SourceID points at
// the entity that triggered the event (e.g. a friend request id) and is used
// for idempotent event creation.
const (
	KindFriendRequestReceived = "friend_request_received"
	KindFriendRequestAccepted = "friend_request_accepted"
	KindDMMessage             = "dm_message"
	KindChannelMention        = "channel_mention"
	KindSystem                = "system"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindFriendRequestReceived, KindFriendRequestAccepted, KindDMMessage, KindChannelMention, KindSystem:
		return true
	}
	return false
}

type NotificationEvent struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind         string    `gorm:"column:kind;size:64;not null;index:idx_kind_source,unique" json:"kind"`
	SourceID     string    `gorm:"column:source_id;size:128;not null;index:idx_kind_source,unique" json:"sourceId"`
	ActorUserUID string    `gorm:"column:actor_user_uid;size:128;index" json:"actorUserUid"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (NotificationEvent) TableName() string {
	return "notification_events"
}
