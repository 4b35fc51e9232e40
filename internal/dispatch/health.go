package dispatch

import (
	"context"
	"fmt"
	"time"
)

// QueueStats is a read-only aggregate over the job table, computed fresh on
// every call.
type QueueStats struct {
	StatusCounts                map[string]int64 `json:"statusCounts"`
	OldestClaimableAgeSeconds   float64          `json:"oldestClaimableAgeSeconds"`
	ProcessingLeaseExpiredCount int64            `json:"processingLeaseExpiredCount"`
	DeadLetterLast60mCount      int64            `json:"deadLetterLast60mCount"`
	RetryableDueNowCount        int64            `json:"retryableDueNowCount"`
	HighRetryAttemptCount       int64            `json:"highRetryAttemptCount"`
	DoneLast10mCount            int64            `json:"doneLast10mCount"`
	RetryableFailedLast10mCount int64            `json:"retryableFailedLast10mCount"`
}

// StatsSource computes QueueStats; the gorm job repository implements it.
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) (*QueueStats, error)
}

const (
	AlertCritical = "critical"
	AlertWarn     = "warn"
)

type Alert struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthReport is the full diagnostics payload: raw aggregates plus derived
// alerts. There is no alert state to reconcile between calls.
type HealthReport struct {
	QueueStats
	Alerts []Alert `json:"alerts"`
}

// DeriveAlerts applies the alerting rules to a stats snapshot. Pure.
func DeriveAlerts(s *QueueStats) []Alert {
	alerts := []Alert{}

	if s.ProcessingLeaseExpiredCount > 0 {
		alerts = append(alerts, Alert{
			Level:   AlertCritical,
			Code:    "processing_lease_expired",
			Message: fmt.Sprintf("%d job(s) stuck in processing past their lease; a worker crashed or hung mid-send", s.ProcessingLeaseExpiredCount),
		})
	}
	if s.DeadLetterLast60mCount > 0 {
		alerts = append(alerts, Alert{
			Level:   AlertCritical,
			Code:    "dead_letter_recent",
			Message: fmt.Sprintf("%d job(s) dead-lettered in the last 60m", s.DeadLetterLast60mCount),
		})
	}
	if s.OldestClaimableAgeSeconds > 60 {
		alerts = append(alerts, Alert{
			Level:   AlertCritical,
			Code:    "claimable_backlog",
			Message: fmt.Sprintf("oldest claimable job is %.0fs old, past the 60s SLO", s.OldestClaimableAgeSeconds),
		})
	} else if s.OldestClaimableAgeSeconds > 10 {
		alerts = append(alerts, Alert{
			Level:   AlertWarn,
			Code:    "claimable_drift",
			Message: fmt.Sprintf("oldest claimable job is %.0fs old, drifting from the near-real-time target", s.OldestClaimableAgeSeconds),
		})
	}
	if s.RetryableDueNowCount > 0 {
		alerts = append(alerts, Alert{
			Level:   AlertWarn,
			Code:    "retry_backlog",
			Message: fmt.Sprintf("%d retryable job(s) due now; backlog should drain on next run", s.RetryableDueNowCount),
		})
	}
	if s.HighRetryAttemptCount > 0 {
		alerts = append(alerts, Alert{
			Level:   AlertWarn,
			Code:    "high_retry_attempts",
			Message: fmt.Sprintf("%d job(s) with 3+ attempts still retrying, approaching dead-letter", s.HighRetryAttemptCount),
		})
	}
	if s.RetryableFailedLast10mCount > 0 && s.DoneLast10mCount == 0 {
		alerts = append(alerts, Alert{
			Level:   AlertWarn,
			Code:    "failures_without_success",
			Message: "recent failures with no successful sends nearby; possible systemic issue",
		})
	}

	return alerts
}

// HealthMonitor produces operational diagnostics for the queue.
type HealthMonitor struct {
	stats StatsSource
}

func NewHealthMonitor(stats StatsSource) *HealthMonitor {
	return &HealthMonitor{stats: stats}
}

func (m *HealthMonitor) Snapshot(ctx context.Context) (*HealthReport, error) {
	s, err := m.stats.Stats(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return &HealthReport{QueueStats: *s, Alerts: DeriveAlerts(s)}, nil
}
