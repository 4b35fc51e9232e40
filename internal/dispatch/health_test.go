package dispatch

import (
	"context"
	"testing"
	"time"
)

func alertCodes(alerts []Alert) map[string]string {
	out := map[string]string{}
	for _, a := range alerts {
		out[a.Code] = a.Level
	}
	return out
}

func TestDeriveAlerts(t *testing.T) {
	tests := []struct {
		name  string
		stats QueueStats
		want  map[string]string
	}{
		{
			name:  "healthy queue has no alerts",
			stats: QueueStats{DoneLast10mCount: 5},
			want:  map[string]string{},
		},
		{
			name:  "expired lease is critical",
			stats: QueueStats{ProcessingLeaseExpiredCount: 2},
			want:  map[string]string{"processing_lease_expired": AlertCritical},
		},
		{
			name:  "recent dead letter is critical",
			stats: QueueStats{DeadLetterLast60mCount: 1},
			want:  map[string]string{"dead_letter_recent": AlertCritical},
		},
		{
			name:  "old claimable backlog is critical",
			stats: QueueStats{OldestClaimableAgeSeconds: 90},
			want:  map[string]string{"claimable_backlog": AlertCritical},
		},
		{
			name:  "mild claimable age only warns",
			stats: QueueStats{OldestClaimableAgeSeconds: 30},
			want:  map[string]string{"claimable_drift": AlertWarn},
		},
		{
			name:  "due retries warn",
			stats: QueueStats{RetryableDueNowCount: 3, DoneLast10mCount: 1},
			want:  map[string]string{"retry_backlog": AlertWarn},
		},
		{
			name:  "high attempt counts warn",
			stats: QueueStats{HighRetryAttemptCount: 2, DoneLast10mCount: 1},
			want:  map[string]string{"high_retry_attempts": AlertWarn},
		},
		{
			name:  "failures with no successes warn",
			stats: QueueStats{RetryableFailedLast10mCount: 4},
			want:  map[string]string{"failures_without_success": AlertWarn},
		},
		{
			name: "failures next to successes stay quiet",
			stats: QueueStats{
				RetryableFailedLast10mCount: 4,
				DoneLast10mCount:            10,
			},
			want: map[string]string{},
		},
		{
			name: "multiple conditions stack",
			stats: QueueStats{
				ProcessingLeaseExpiredCount: 1,
				OldestClaimableAgeSeconds:   120,
				RetryableDueNowCount:        2,
				DoneLast10mCount:            1,
			},
			want: map[string]string{
				"processing_lease_expired": AlertCritical,
				"claimable_backlog":        AlertCritical,
				"retry_backlog":            AlertWarn,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alertCodes(DeriveAlerts(&tt.stats))
			if len(got) != len(tt.want) {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
			for code, level := range tt.want {
				if got[code] != level {
					t.Fatalf("code=%q level=%q want=%q (all=%v)", code, got[code], level, got)
				}
			}
		})
	}
}

type staticStats struct{ s QueueStats }

func (f staticStats) Stats(ctx context.Context, now time.Time) (*QueueStats, error) {
	cp := f.s
	return &cp, nil
}

func TestMonitorSnapshot(t *testing.T) {
	m := NewHealthMonitor(staticStats{s: QueueStats{DeadLetterLast60mCount: 1}})
	report, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if report.DeadLetterLast60mCount != 1 {
		t.Fatalf("stats not carried: %+v", report.QueueStats)
	}
	if got := alertCodes(report.Alerts); got["dead_letter_recent"] != AlertCritical {
		t.Fatalf("alerts=%v", got)
	}
}
