package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/model"
)

type memNotifs struct {
	events     []model.NotificationEvent
	recipients []model.NotificationRecipient
	nextID     uint64
}

func (m *memNotifs) FindEventByKindAndSource(ctx context.Context, kind, sourceID string) (*model.NotificationEvent, error) {
	for i := range m.events {
		if m.events[i].Kind == kind && m.events[i].SourceID == sourceID {
			cp := m.events[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memNotifs) CreateEvent(ctx context.Context, event *model.NotificationEvent) error {
	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, *event)
	return nil
}

func (m *memNotifs) CreateRecipients(ctx context.Context, recipients []model.NotificationRecipient) error {
	for i := range recipients {
		m.nextID++
		recipients[i].ID = m.nextID
		m.recipients = append(m.recipients, recipients[i])
	}
	return nil
}

func (m *memNotifs) FindEvent(ctx context.Context, id uint64) (*model.NotificationEvent, error) {
	for i := range m.events {
		if m.events[i].ID == id {
			cp := m.events[i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memNotifs) FindRecipient(ctx context.Context, id uint64) (*model.NotificationRecipient, error) {
	for i := range m.recipients {
		if m.recipients[i].ID == id {
			cp := m.recipients[i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memNotifs) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.NotificationRecipient, error) {
	var out []model.NotificationRecipient
	for _, r := range m.recipients {
		if r.RecipientUID == userUID && r.DismissedAt == nil {
			if unreadOnly && r.ReadAt != nil {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memNotifs) MarkRead(ctx context.Context, userUID string, recipientID uint64) error {
	return nil
}

func (m *memNotifs) MarkDismissed(ctx context.Context, userUID string, recipientID uint64) error {
	return nil
}

func (m *memNotifs) CountUnread(ctx context.Context, userUID string) (int64, error) {
	var n int64
	for _, r := range m.recipients {
		if r.RecipientUID == userUID && r.ReadAt == nil && r.DismissedAt == nil {
			n++
		}
	}
	return n, nil
}

type memPrefs struct {
	prefs map[string]*model.NotificationPreference
}

func (m *memPrefs) GetOrDefault(ctx context.Context, userUID string) (*model.NotificationPreference, error) {
	if p, ok := m.prefs[userUID]; ok {
		cp := *p
		return &cp, nil
	}
	return &model.NotificationPreference{UserUID: userUID, InAppEnabled: true, SoundEnabled: true}, nil
}

func (m *memPrefs) Upsert(ctx context.Context, pref *model.NotificationPreference) error {
	if m.prefs == nil {
		m.prefs = map[string]*model.NotificationPreference{}
	}
	m.prefs[pref.UserUID] = pref
	return nil
}

type memSubs struct {
	byUser map[string][]model.PushSubscription
}

func (m *memSubs) Upsert(ctx context.Context, sub *model.PushSubscription) error { return nil }

func (m *memSubs) FindByUser(ctx context.Context, userUID string) ([]model.PushSubscription, error) {
	return m.byUser[userUID], nil
}

func (m *memSubs) FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	return nil, nil
}

func (m *memSubs) DeleteByEndpoint(ctx context.Context, endpoint string) error { return nil }

func (m *memSubs) DeleteOwned(ctx context.Context, userUID, endpoint string) error { return nil }

type memJobs struct {
	enqueued   []model.DispatchJob
	enqueueErr error
}

func (m *memJobs) Enqueue(ctx context.Context, jobs []model.DispatchJob) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, jobs...)
	return nil
}

func (m *memJobs) FindClaimable(ctx context.Context, now time.Time, limit int) ([]model.DispatchJob, error) {
	return nil, nil
}

func (m *memJobs) Claim(ctx context.Context, id uint64, now time.Time, lease time.Duration) (*model.DispatchJob, error) {
	return nil, nil
}

func (m *memJobs) MarkDone(ctx context.Context, id uint64, lease time.Time, statusCode int) error {
	return nil
}

func (m *memJobs) MarkRetry(ctx context.Context, id uint64, lease time.Time, dueAt time.Time, statusCode int, lastError string) error {
	return nil
}

func (m *memJobs) MarkDeadLetter(ctx context.Context, id uint64, lease time.Time, statusCode int, lastError string) error {
	return nil
}

func (m *memJobs) Stats(ctx context.Context, now time.Time) (*dispatch.QueueStats, error) {
	return &dispatch.QueueStats{}, nil
}

type memTrigger struct {
	fired chan dispatch.Mode
}

func (m *memTrigger) Trigger(ctx context.Context, source dispatch.Mode, reason string) *dispatch.TriggerResult {
	select {
	case m.fired <- source:
	default:
	}
	return &dispatch.TriggerResult{Invoked: true, Mode: source}
}

func buildService(notifs *memNotifs, prefs *memPrefs, subs *memSubs, jobs *memJobs, trig *memTrigger) NotificationService {
	return NewNotificationService(zap.NewNop().Sugar(), notifs, prefs, subs, jobs, trig)
}

func TestCreateEventValidation(t *testing.T) {
	svc := buildService(&memNotifs{}, &memPrefs{}, &memSubs{}, &memJobs{}, &memTrigger{fired: make(chan dispatch.Mode, 1)})

	tests := []struct {
		name string
		in   CreateEventInput
	}{
		{"bad kind", CreateEventInput{Kind: "nope", SourceID: "s1", RecipientUIDs: []string{"u1"}}},
		{"missing source", CreateEventInput{Kind: model.KindDMMessage, RecipientUIDs: []string{"u1"}}},
		{"no recipients", CreateEventInput{Kind: model.KindDMMessage, SourceID: "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateEvent(context.Background(), tt.in); err == nil {
				t.Fatal("invalid input accepted")
			}
		})
	}
}

func TestCreateEventFansOutPerSubscription(t *testing.T) {
	notifs := &memNotifs{}
	jobs := &memJobs{}
	subs := &memSubs{byUser: map[string][]model.PushSubscription{
		"u1": {
			{Endpoint: "https://p/u1-laptop"},
			{Endpoint: "https://p/u1-phone"},
		},
		// u2 has no registered devices: inbox row only, no jobs.
	}}
	prefs := &memPrefs{prefs: map[string]*model.NotificationPreference{
		"u2": {UserUID: "u2", InAppEnabled: true, SoundEnabled: false},
	}}
	trig := &memTrigger{fired: make(chan dispatch.Mode, 1)}
	svc := buildService(notifs, prefs, subs, jobs, trig)

	event, err := svc.CreateEvent(context.Background(), CreateEventInput{
		Kind:          model.KindFriendRequestReceived,
		SourceID:      "fr-42",
		ActorUserUID:  "actor",
		RecipientUIDs: []string{"u1", "u2"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.ID == 0 {
		t.Fatal("event id not assigned")
	}
	if len(notifs.recipients) != 2 {
		t.Fatalf("recipients=%d want 2", len(notifs.recipients))
	}
	for _, r := range notifs.recipients {
		if r.RecipientUID == "u2" && r.DeliverSound {
			t.Fatal("u2 sound preference not stamped")
		}
	}
	if len(jobs.enqueued) != 2 {
		t.Fatalf("jobs=%d want 2 (one per u1 device)", len(jobs.enqueued))
	}
	for _, j := range jobs.enqueued {
		if j.Status != model.JobPending || j.NotificationEventID != event.ID {
			t.Fatalf("job=%+v", j)
		}
	}

	select {
	case mode := <-trig.fired:
		if mode != dispatch.ModeWakeup {
			t.Fatalf("trigger mode=%v", mode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wakeup trigger never fired")
	}
}

func TestCreateEventIdempotentBySource(t *testing.T) {
	notifs := &memNotifs{}
	jobs := &memJobs{}
	trig := &memTrigger{fired: make(chan dispatch.Mode, 2)}
	svc := buildService(notifs, &memPrefs{}, &memSubs{}, jobs, trig)

	in := CreateEventInput{Kind: model.KindDMMessage, SourceID: "m-7", RecipientUIDs: []string{"u1"}}
	first, err := svc.CreateEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.CreateEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %d vs %d", first.ID, second.ID)
	}
	if len(notifs.events) != 1 {
		t.Fatalf("events=%d want 1", len(notifs.events))
	}
	if len(notifs.recipients) != 1 {
		t.Fatalf("recipients=%d, duplicate fan-out", len(notifs.recipients))
	}
}

func TestCreateEventSurvivesDispatchFailure(t *testing.T) {
	notifs := &memNotifs{}
	jobs := &memJobs{enqueueErr: errors.New("queue down")}
	trig := &memTrigger{fired: make(chan dispatch.Mode, 1)}
	svc := buildService(notifs, &memPrefs{}, &memSubs{byUser: map[string][]model.PushSubscription{
		"u1": {{Endpoint: "https://p/e"}},
	}}, jobs, trig)

	event, err := svc.CreateEvent(context.Background(), CreateEventInput{
		Kind:          model.KindChannelMention,
		SourceID:      "msg-9",
		RecipientUIDs: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("event creation failed on dispatch error: %v", err)
	}
	if event.ID == 0 {
		t.Fatal("event not persisted")
	}
}

func TestListReturnsUnreadCount(t *testing.T) {
	now := time.Now()
	notifs := &memNotifs{recipients: []model.NotificationRecipient{
		{ID: 1, EventID: 1, RecipientUID: "u1"},
		{ID: 2, EventID: 2, RecipientUID: "u1", ReadAt: &now},
		{ID: 3, EventID: 3, RecipientUID: "u1", DismissedAt: &now},
		{ID: 4, EventID: 4, RecipientUID: "other"},
	}}
	svc := buildService(notifs, &memPrefs{}, &memSubs{}, &memJobs{}, &memTrigger{fired: make(chan dispatch.Mode, 1)})

	list, unread, err := svc.List(context.Background(), "u1", false, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list=%d want 2 (dismissed excluded)", len(list))
	}
	if unread != 1 {
		t.Fatalf("unread=%d want 1", unread)
	}
}
