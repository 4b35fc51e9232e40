package push

import (
	"context"
	"errors"

	"github.com/tsubaki-chat/backend/internal/model"
)

// Outcome buckets a provider response into the retry taxonomy: delivered
// resolves the job, transient schedules a retry, gone dead-letters the job and
// removes the subscription.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeTransient
	OutcomeGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeGone:
		return "gone"
	default:
		return "transient"
	}
}

// Result is the outcome of one send attempt. StatusCode is 0 when the request
// never reached the provider (network error, timeout).
type Result struct {
	StatusCode int
	Outcome    Outcome
	Err        error
}

// Provider sends one encrypted payload to one subscription endpoint. A call
// must respect ctx cancellation; a timeout is reported as a transient Result,
// never left pending.
type Provider interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload []byte) Result
}

// ErrMissingVAPIDKeys indicates the provider cannot be constructed because
// the VAPID key pair is not configured.
var ErrMissingVAPIDKeys = errors.New("push: VAPID keys not configured")

type unconfiguredProvider struct{}

func (unconfiguredProvider) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) Result {
	return Result{Outcome: OutcomeTransient, Err: ErrMissingVAPIDKeys}
}

// Unconfigured returns a Provider that fails every send as transient. Used
// when VAPID keys are absent so jobs stay queued instead of being lost.
func Unconfigured() Provider {
	return unconfiguredProvider{}
}

// ClassifyStatus maps a provider HTTP status to an Outcome. Only 404 and 410
// are treated as permanent (subscription gone); everything else that is not a
// success is retried, including 429 and 5xx.
func ClassifyStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeDelivered
	case code == 404 || code == 410:
		return OutcomeGone
	default:
		return OutcomeTransient
	}
}
