package model

import "time"

// Trace transports, stages and decisions. The ledger is append-only: the
// running system records and lists, never updates or deletes.
const (
	TransportWebPush       = "web_push"
	TransportInApp         = "in_app"
	TransportSimulatedPush = "simulated_push"
	TransportRoutePolicy   = "route_policy"

	StageClientRoute    = "client_route"
	StageServerDispatch = "server_dispatch"

	DecisionSend  = "send"
	DecisionSkip  = "skip"
	DecisionDefer = "defer"
)

// DeliveryTraceRecord ties every routing/dispatch decision back to a reason
// code. Details holds structured context as JSON, including wake_source for
// server-side rows.
type DeliveryTraceRecord struct {
	ID                      uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	NotificationRecipientID *uint64   `gorm:"column:recipient_id;index" json:"notificationRecipientId,omitempty"`
	EventID                 *uint64   `gorm:"column:event_id;index" json:"eventId,omitempty"`
	Transport               string    `gorm:"column:transport;size:32;not null" json:"transport"`
	Stage                   string    `gorm:"column:stage;size:32;not null" json:"stage"`
	Decision                string    `gorm:"column:decision;size:16;not null" json:"decision"`
	ReasonCode              string    `gorm:"column:reason_code;size:64;not null;index" json:"reasonCode"`
	Details                 string    `gorm:"column:details;type:json" json:"details,omitempty"`
	CreatedAt               time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (DeliveryTraceRecord) TableName() string {
	return "delivery_traces"
}
