package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/repository"
)

var ErrInvalidKind = errors.New("unknown notification kind")

// WakeupTrigger is the service's hook into the scheduler. Trigger never
// returns an error by contract.
type WakeupTrigger interface {
	Trigger(ctx context.Context, source dispatch.Mode, reason string) *dispatch.TriggerResult
}

type CreateEventInput struct {
	Kind          string   `json:"kind"`
	SourceID      string   `json:"sourceId"`
	ActorUserUID  string   `json:"actorUserUid"`
	RecipientUIDs []string `json:"recipientUids"`
}

type NotificationService interface {
	// CreateEvent records an event, fans out recipient rows and dispatch
	// jobs, and wakes the dispatcher. Dispatch problems never surface to
	// the caller: the triggering action must succeed regardless.
	CreateEvent(ctx context.Context, in CreateEventInput) (*model.NotificationEvent, error)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.NotificationRecipient, int64, error)
	MarkRead(ctx context.Context, userUID string, recipientID uint64) error
	Dismiss(ctx context.Context, userUID string, recipientID uint64) error
}

type notificationService struct {
	log     *zap.SugaredLogger
	notifs  repository.NotificationRepository
	prefs   repository.PreferenceRepository
	subs    repository.PushSubscriptionRepository
	jobs    repository.DispatchJobRepository
	trigger WakeupTrigger
}

func NewNotificationService(
	log *zap.SugaredLogger,
	notifs repository.NotificationRepository,
	prefs repository.PreferenceRepository,
	subs repository.PushSubscriptionRepository,
	jobs repository.DispatchJobRepository,
	trigger WakeupTrigger,
) NotificationService {
	return &notificationService{
		log:     log,
		notifs:  notifs,
		prefs:   prefs,
		subs:    subs,
		jobs:    jobs,
		trigger: trigger,
	}
}

func (s *notificationService) CreateEvent(ctx context.Context, in CreateEventInput) (*model.NotificationEvent, error) {
	if !model.ValidKind(in.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	if in.SourceID == "" {
		return nil, errors.New("sourceId is required")
	}
	if len(in.RecipientUIDs) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	// SourceID makes event creation idempotent: a backend trigger firing
	// twice for the same friend request produces one event and one fan-out.
	existing, err := s.notifs.FindEventByKindAndSource(ctx, in.Kind, in.SourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	event := &model.NotificationEvent{
		Kind:         in.Kind,
		SourceID:     in.SourceID,
		ActorUserUID: in.ActorUserUID,
	}
	if err := s.notifs.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	if err := s.fanOut(ctx, event, in.RecipientUIDs); err != nil {
		// The event exists; delivery problems are the dispatcher's to
		// retry, not the caller's to see.
		s.log.Errorw("event fan-out failed", "eventId", event.ID, "error", err)
	}

	// Best-effort wakeup, detached from the request's lifetime.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.trigger.Trigger(ctx, dispatch.ModeWakeup, "event_created")
	}()

	return event, nil
}

// fanOut creates one recipient row per user and one dispatch job per
// (recipient, subscribed device) pair.
func (s *notificationService) fanOut(ctx context.Context, event *model.NotificationEvent, recipientUIDs []string) error {
	recipients := make([]model.NotificationRecipient, 0, len(recipientUIDs))
	for _, uid := range recipientUIDs {
		pref, err := s.prefs.GetOrDefault(ctx, uid)
		if err != nil {
			return fmt.Errorf("loading preferences for %s: %w", uid, err)
		}
		recipients = append(recipients, model.NotificationRecipient{
			EventID:      event.ID,
			RecipientUID: uid,
			DeliverInApp: pref.InAppEnabled,
			DeliverSound: pref.SoundEnabled,
		})
	}
	if err := s.notifs.CreateRecipients(ctx, recipients); err != nil {
		return fmt.Errorf("creating recipients: %w", err)
	}

	now := time.Now()
	var jobs []model.DispatchJob
	for i := range recipients {
		subs, err := s.subs.FindByUser(ctx, recipients[i].RecipientUID)
		if err != nil {
			return fmt.Errorf("loading subscriptions for %s: %w", recipients[i].RecipientUID, err)
		}
		for _, sub := range subs {
			jobs = append(jobs, model.DispatchJob{
				NotificationEventID:     event.ID,
				NotificationRecipientID: recipients[i].ID,
				SubscriptionEndpoint:    sub.Endpoint,
				Status:                  model.JobPending,
				DueAt:                   now,
			})
		}
	}
	if err := s.jobs.Enqueue(ctx, jobs); err != nil {
		return fmt.Errorf("enqueueing jobs: %w", err)
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.NotificationRecipient, int64, error) {
	list, err := s.notifs.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.notifs.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userUID string, recipientID uint64) error {
	return s.notifs.MarkRead(ctx, userUID, recipientID)
}

func (s *notificationService) Dismiss(ctx context.Context, userUID string, recipientID uint64) error {
	return s.notifs.MarkDismissed(ctx, userUID, recipientID)
}
