package push

import (
	"context"
	"io"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tsubaki-chat/backend/internal/model"
)

// WebPushProvider delivers payloads over the Web Push protocol with VAPID
// authentication.
type WebPushProvider struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	timeout    time.Duration
}

func NewWebPushProvider(publicKey, privateKey, subscriber string, timeout time.Duration) (*WebPushProvider, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrMissingVAPIDKeys
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebPushProvider{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		ttl:        300,
		timeout:    timeout,
	}, nil
}

func (p *WebPushProvider) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		TTL:             p.ttl,
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
	})
	if err != nil {
		// Network error or timeout: the provider was never definitively
		// reached, so the attempt is transient.
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{StatusCode: resp.StatusCode, Outcome: ClassifyStatus(resp.StatusCode)}
}
