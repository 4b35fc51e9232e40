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

// claimableWhere matches due pending/retryable rows plus processing rows
// whose lease has been expired for longer than the reclaim grace (crashed
// worker reclaim). The grace gives a slow-but-alive worker a window to record
// its outcome before the row goes back on the market.
const claimableWhere = "(status IN (?, ?) AND due_at <= ?) OR (status = ? AND lease_expires_at < ?)"

func claimableArgs(now time.Time, grace time.Duration) []any {
	return []any{model.JobPending, model.JobRetryableFailed, now, model.JobProcessing, now.Add(-grace)}
}

type DispatchJobRepository interface {
	dispatch.Queue
	dispatch.StatsSource
	Enqueue(ctx context.Context, jobs []model.DispatchJob) error
}

type dispatchJobRepository struct {
	db         *gorm.DB
	leaseGrace time.Duration
}

func NewDispatchJobRepository(db *gorm.DB, leaseGrace time.Duration) DispatchJobRepository {
	if leaseGrace < 0 {
		leaseGrace = 0
	}
	return &dispatchJobRepository{db: db, leaseGrace: leaseGrace}
}

// Enqueue inserts jobs, silently skipping rows that already exist for the
// same (recipient, endpoint) pair so fan-out stays idempotent.
func (r *dispatchJobRepository) Enqueue(ctx context.Context, jobs []model.DispatchJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&jobs).Error
}

func (r *dispatchJobRepository) FindClaimable(ctx context.Context, now time.Time, limit int) ([]model.DispatchJob, error) {
	var jobs []model.DispatchJob
	err := r.db.WithContext(ctx).
		Where(claimableWhere, claimableArgs(now, r.leaseGrace)...).
		Order("due_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim transitions one job to processing with a fresh lease. The conditional
// UPDATE re-checks claimability so two concurrent workers can never both win
// the same row; the loser sees zero affected rows and gets (nil, nil).
func (r *dispatchJobRepository) Claim(ctx context.Context, id uint64, now time.Time, lease time.Duration) (*model.DispatchJob, error) {
	leaseExpiry := now.Add(lease)
	res := r.db.WithContext(ctx).
		Model(&model.DispatchJob{}).
		Where("id = ?", id).
		Where(claimableWhere, claimableArgs(now, r.leaseGrace)...).
		Updates(map[string]any{
			"status":           model.JobProcessing,
			"lease_expires_at": leaseExpiry,
			"attempts":         gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var job model.DispatchJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *dispatchJobRepository) MarkDone(ctx context.Context, id uint64, lease time.Time, statusCode int) error {
	return r.resolveProcessing(ctx, id, lease, map[string]any{
		"status":               model.JobDone,
		"lease_expires_at":     nil,
		"provider_status_code": statusCode,
		"last_error":           "",
	})
}

func (r *dispatchJobRepository) MarkRetry(ctx context.Context, id uint64, lease time.Time, dueAt time.Time, statusCode int, lastError string) error {
	return r.resolveProcessing(ctx, id, lease, map[string]any{
		"status":               model.JobRetryableFailed,
		"due_at":               dueAt,
		"lease_expires_at":     nil,
		"provider_status_code": statusCode,
		"last_error":           truncate(lastError, 512),
	})
}

func (r *dispatchJobRepository) MarkDeadLetter(ctx context.Context, id uint64, lease time.Time, statusCode int, lastError string) error {
	return r.resolveProcessing(ctx, id, lease, map[string]any{
		"status":               model.JobDeadLetter,
		"lease_expires_at":     nil,
		"provider_status_code": statusCode,
		"last_error":           truncate(lastError, 512),
	})
}

// resolveProcessing is fenced by the exact lease stamped at claim time. A
// reclaim overwrites lease_expires_at, so a worker that lost its lease
// mid-send matches zero rows here and cannot clobber the reclaiming worker's
// actively-leased job.
func (r *dispatchJobRepository) resolveProcessing(ctx context.Context, id uint64, lease time.Time, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.DispatchJob{}).
		Where("id = ? AND status = ? AND lease_expires_at = ?", id, model.JobProcessing, lease).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return dispatch.ErrLeaseLost
	}
	return nil
}

func (r *dispatchJobRepository) Stats(ctx context.Context, now time.Time) (*dispatch.QueueStats, error) {
	stats := &dispatch.QueueStats{StatusCounts: make(map[string]int64)}
	db := r.db.WithContext(ctx)

	type statusCount struct {
		Status string
		N      int64
	}
	var counts []statusCount
	if err := db.Model(&model.DispatchJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.StatusCounts[c.Status] = c.N
	}

	var oldest model.DispatchJob
	err := db.Where(claimableWhere, claimableArgs(now, r.leaseGrace)...).
		Order("due_at ASC").
		First(&oldest).Error
	switch {
	case err == nil:
		stats.OldestClaimableAgeSeconds = now.Sub(oldest.DueAt).Seconds()
	case errors.Is(err, gorm.ErrRecordNotFound):
		// empty queue
	default:
		return nil, err
	}

	countWhere := func(query string, args ...any) (int64, error) {
		var n int64
		err := db.Model(&model.DispatchJob{}).Where(query, args...).Count(&n).Error
		return n, err
	}

	if stats.ProcessingLeaseExpiredCount, err = countWhere(
		"status = ? AND lease_expires_at < ?", model.JobProcessing, now); err != nil {
		return nil, err
	}
	if stats.DeadLetterLast60mCount, err = countWhere(
		"status = ? AND updated_at > ?", model.JobDeadLetter, now.Add(-60*time.Minute)); err != nil {
		return nil, err
	}
	if stats.RetryableDueNowCount, err = countWhere(
		"status = ? AND due_at <= ?", model.JobRetryableFailed, now); err != nil {
		return nil, err
	}
	if stats.HighRetryAttemptCount, err = countWhere(
		"status IN (?, ?) AND attempts >= 3", model.JobProcessing, model.JobRetryableFailed); err != nil {
		return nil, err
	}
	if stats.DoneLast10mCount, err = countWhere(
		"status = ? AND updated_at > ?", model.JobDone, now.Add(-10*time.Minute)); err != nil {
		return nil, err
	}
	if stats.RetryableFailedLast10mCount, err = countWhere(
		"status = ? AND updated_at > ?", model.JobRetryableFailed, now.Add(-10*time.Minute)); err != nil {
		return nil, err
	}

	return stats, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
