package service

import (
	"context"
	"testing"

	"github.com/tsubaki-chat/backend/internal/model"
)

type recordingSubs struct {
	memSubs
	upserted []model.PushSubscription
	deleted  []string
}

func (r *recordingSubs) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	r.upserted = append(r.upserted, *sub)
	return nil
}

func (r *recordingSubs) DeleteOwned(ctx context.Context, userUID, endpoint string) error {
	r.deleted = append(r.deleted, userUID+"|"+endpoint)
	return nil
}

func TestSubscribeValidation(t *testing.T) {
	tests := []struct {
		name string
		in   SubscribeInput
	}{
		{"http endpoint", SubscribeInput{Endpoint: "http://p/e", P256dhKey: "k", AuthKey: "a"}},
		{"empty endpoint", SubscribeInput{P256dhKey: "k", AuthKey: "a"}},
		{"missing p256dh", SubscribeInput{Endpoint: "https://p/e", AuthKey: "a"}},
		{"missing auth", SubscribeInput{Endpoint: "https://p/e", P256dhKey: "k"}},
	}
	svc := NewSubscriptionService(&recordingSubs{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Subscribe(context.Background(), "u1", tt.in); err == nil {
				t.Fatal("invalid input accepted")
			}
		})
	}
}

func TestSubscribeBindsOwner(t *testing.T) {
	repo := &recordingSubs{}
	svc := NewSubscriptionService(repo)

	sub, err := svc.Subscribe(context.Background(), "u1", SubscribeInput{
		Endpoint:       "https://p/e1",
		InstallationID: "inst-1",
		P256dhKey:      "k",
		AuthKey:        "a",
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.UserUID != "u1" || sub.InstallationID != "inst-1" {
		t.Fatalf("sub=%+v", sub)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("upserted=%d", len(repo.upserted))
	}
}

func TestUnsubscribeRequiresEndpoint(t *testing.T) {
	repo := &recordingSubs{}
	svc := NewSubscriptionService(repo)

	if err := svc.Unsubscribe(context.Background(), "u1", ""); err == nil {
		t.Fatal("empty endpoint accepted")
	}
	if err := svc.Unsubscribe(context.Background(), "u1", "https://p/e1"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "u1|https://p/e1" {
		t.Fatalf("deleted=%v", repo.deleted)
	}
}
