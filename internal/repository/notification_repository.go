package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tsubaki-chat/backend/internal/model"
)

type NotificationRepository interface {
	FindEventByKindAndSource(ctx context.Context, kind, sourceID string) (*model.NotificationEvent, error)
	CreateEvent(ctx context.Context, event *model.NotificationEvent) error
	CreateRecipients(ctx context.Context, recipients []model.NotificationRecipient) error
	FindEvent(ctx context.Context, id uint64) (*model.NotificationEvent, error)
	FindRecipient(ctx context.Context, id uint64) (*model.NotificationRecipient, error)
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.NotificationRecipient, error)
	MarkRead(ctx context.Context, userUID string, recipientID uint64) error
	MarkDismissed(ctx context.Context, userUID string, recipientID uint64) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) FindEventByKindAndSource(ctx context.Context, kind, sourceID string) (*model.NotificationEvent, error) {
	var event model.NotificationEvent
	err := r.db.WithContext(ctx).
		Where("kind = ? AND source_id = ?", kind, sourceID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *notificationRepository) CreateEvent(ctx context.Context, event *model.NotificationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *notificationRepository) CreateRecipients(ctx context.Context, recipients []model.NotificationRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&recipients).Error
}

func (r *notificationRepository) FindEvent(ctx context.Context, id uint64) (*model.NotificationEvent, error) {
	var event model.NotificationEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *notificationRepository) FindRecipient(ctx context.Context, id uint64) (*model.NotificationRecipient, error) {
	var rec model.NotificationRecipient
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.NotificationRecipient, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	var list []model.NotificationRecipient
	q := r.db.WithContext(ctx).
		Where("recipient_uid = ? AND dismissed_at IS NULL", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userUID string, recipientID uint64) error {
	return r.touch(ctx, userUID, recipientID, "read_at")
}

func (r *notificationRepository) MarkDismissed(ctx context.Context, userUID string, recipientID uint64) error {
	return r.touch(ctx, userUID, recipientID, "dismissed_at")
}

// touch is scoped to the caller's own rows; another user's recipient id is
// indistinguishable from a missing one.
func (r *notificationRepository) touch(ctx context.Context, userUID string, recipientID uint64, column string) error {
	res := r.db.WithContext(ctx).
		Model(&model.NotificationRecipient{}).
		Where("id = ? AND recipient_uid = ? AND "+column+" IS NULL", recipientID, userUID).
		Update(column, time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.NotificationRecipient{}).
		Where("recipient_uid = ? AND read_at IS NULL AND dismissed_at IS NULL", userUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
