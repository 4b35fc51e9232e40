package model

import "time"

// Dispatch job statuses. done and dead_letter are terminal.
const (
	JobPending         = "pending"
	JobProcessing      = "processing"
	JobDone            = "done"
	JobRetryableFailed = "retryable_failed"
	JobDeadLetter      = "dead_letter"
)

// DispatchJob is the durable queue unit: exactly one row per
// (recipient, subscription endpoint) pair per event, created at fan-out time.
// A job is claimable once now >= DueAt and it is pending/retryable_failed, or
// when it sits in processing past LeaseExpiresAt (crashed worker).
type DispatchJob struct {
	ID                      uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NotificationEventID     uint64     `gorm:"column:event_id;index;not null" json:"notificationEventId"`
	NotificationRecipientID uint64     `gorm:"column:recipient_id;not null;index:idx_recipient_endpoint,unique" json:"notificationRecipientId"`
	SubscriptionEndpoint    string     `gorm:"column:subscription_endpoint;size:500;not null;index:idx_recipient_endpoint,unique" json:"subscriptionEndpoint"`
	Status                  string     `gorm:"column:status;size:32;not null;index:idx_status_due" json:"status"`
	Attempts                int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	DueAt                   time.Time  `gorm:"column:due_at;not null;index:idx_status_due" json:"dueAt"`
	LeaseExpiresAt          *time.Time `gorm:"column:lease_expires_at" json:"leaseExpiresAt,omitempty"`
	ProviderStatusCode      *int       `gorm:"column:provider_status_code" json:"providerStatusCode,omitempty"`
	LastError               string     `gorm:"column:last_error;size:512" json:"lastError,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (DispatchJob) TableName() string {
	return "dispatch_jobs"
}

// Terminal reports whether no further transitions may leave the job's status.
func (j *DispatchJob) Terminal() bool {
	return j.Status == JobDone || j.Status == JobDeadLetter
}
