package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tsubaki-chat/backend/internal/model"
)

// TraceFilter narrows List; zero values mean no constraint.
type TraceFilter struct {
	RecipientID *uint64
	Stage       string
	Transport   string
}

// ParityCount is one cell of the wake-source/reason-code frequency matrix
// used to compare shadow runs against real ones.
type ParityCount struct {
	WakeSource string `json:"wakeSource"`
	ReasonCode string `json:"reasonCode"`
	N          int64  `json:"n"`
}

// DeliveryTraceRepository is append-only: no update or delete in the running
// system.
type DeliveryTraceRepository interface {
	Record(ctx context.Context, rec *model.DeliveryTraceRecord) error
	List(ctx context.Context, filter TraceFilter, limit int) ([]model.DeliveryTraceRecord, error)
	CountByWakeSourceAndReason(ctx context.Context, since time.Time) ([]ParityCount, error)
}

type deliveryTraceRepository struct {
	db *gorm.DB
}

func NewDeliveryTraceRepository(db *gorm.DB) DeliveryTraceRepository {
	return &deliveryTraceRepository{db: db}
}

func (r *deliveryTraceRepository) Record(ctx context.Context, rec *model.DeliveryTraceRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *deliveryTraceRepository) List(ctx context.Context, filter TraceFilter, limit int) ([]model.DeliveryTraceRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&model.DeliveryTraceRecord{})
	if filter.RecipientID != nil {
		q = q.Where("recipient_id = ?", *filter.RecipientID)
	}
	if filter.Stage != "" {
		q = q.Where("stage = ?", filter.Stage)
	}
	if filter.Transport != "" {
		q = q.Where("transport = ?", filter.Transport)
	}
	var list []model.DeliveryTraceRecord
	if err := q.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CountByWakeSourceAndReason groups recent server-side traces by the
// wake_source recorded in details. A shadow distribution diverging from
// cron/wakeup for the same reason code signals a scheduling bug.
func (r *deliveryTraceRepository) CountByWakeSourceAndReason(ctx context.Context, since time.Time) ([]ParityCount, error) {
	var counts []ParityCount
	err := r.db.WithContext(ctx).
		Model(&model.DeliveryTraceRecord{}).
		Select("JSON_UNQUOTE(JSON_EXTRACT(details, '$.wakeSource')) AS wake_source, reason_code, COUNT(*) AS n").
		Where("stage = ? AND created_at > ?", model.StageServerDispatch, since).
		Group("wake_source, reason_code").
		Order("wake_source, reason_code").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
