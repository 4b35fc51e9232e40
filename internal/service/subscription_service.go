package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/repository"
)

type SubscribeInput struct {
	Endpoint       string     `json:"endpoint"`
	InstallationID string     `json:"installationId"`
	P256dhKey      string     `json:"p256dhKey"`
	AuthKey        string     `json:"authKey"`
	ExpirationTime *time.Time `json:"expirationTime,omitempty"`
}

type SubscriptionService interface {
	Subscribe(ctx context.Context, userUID string, in SubscribeInput) (*model.PushSubscription, error)
	Unsubscribe(ctx context.Context, userUID, endpoint string) error
}

type subscriptionService struct {
	subs repository.PushSubscriptionRepository
}

func NewSubscriptionService(subs repository.PushSubscriptionRepository) SubscriptionService {
	return &subscriptionService{subs: subs}
}

func (s *subscriptionService) Subscribe(ctx context.Context, userUID string, in SubscribeInput) (*model.PushSubscription, error) {
	if !strings.HasPrefix(in.Endpoint, "https://") {
		return nil, errors.New("endpoint must be an https URL")
	}
	if in.P256dhKey == "" || in.AuthKey == "" {
		return nil, errors.New("p256dhKey and authKey are required")
	}

	sub := &model.PushSubscription{
		Endpoint:       in.Endpoint,
		InstallationID: in.InstallationID,
		P256dhKey:      in.P256dhKey,
		AuthKey:        in.AuthKey,
		ExpirationTime: in.ExpirationTime,
		UserUID:        userUID,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *subscriptionService) Unsubscribe(ctx context.Context, userUID, endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	return s.subs.DeleteOwned(ctx, userUID, endpoint)
}
