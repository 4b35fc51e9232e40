package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reason codes shared by run stats and trace rows. Shadow runs reuse the same
// vocabulary so reason-code distributions stay comparable across wake sources.
const (
	ReasonDelivered           = "delivered"
	ReasonSubscriptionMissing = "subscription_missing"
	ReasonSubscriptionInvalid = "subscription_invalid"
	ReasonProviderTransient   = "provider_transient"
	ReasonAttemptsExhausted   = "attempts_exhausted"
	ReasonClaimLost           = "claim_lost"
	ReasonInternalError       = "internal_error"
)

// RunStats aggregates one worker invocation. It is the only output a caller
// needs to judge a run's health without re-querying the queue.
type RunStats struct {
	mu sync.Mutex

	// RunID correlates every trace row written by one invocation.
	RunID          string         `json:"runId"`
	Mode           Mode           `json:"mode"`
	Claimed        int            `json:"claimed"`
	Sent           int            `json:"sent"`
	Skipped        int            `json:"skipped"`
	Retried        int            `json:"retried"`
	DeadLettered   int            `json:"deadLettered"`
	ByReason       map[string]int `json:"byReason"`
	LatencyBuckets map[string]int `json:"latencyBuckets"`
}

func NewRunStats(mode Mode) *RunStats {
	return &RunStats{
		RunID:          uuid.NewString(),
		Mode:           mode,
		ByReason:       make(map[string]int),
		LatencyBuckets: make(map[string]int),
	}
}

func (s *RunStats) claimed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Claimed++
}

func (s *RunStats) sent(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent++
	s.ByReason[reason]++
}

func (s *RunStats) skipped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
	s.ByReason[reason]++
}

func (s *RunStats) retried(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Retried++
	s.ByReason[reason]++
}

func (s *RunStats) deadLettered(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeadLettered++
	s.ByReason[reason]++
}

func (s *RunStats) observeLatency(d time.Duration) {
	bucket := "gte_2s"
	switch {
	case d < 100*time.Millisecond:
		bucket = "lt_100ms"
	case d < 500*time.Millisecond:
		bucket = "lt_500ms"
	case d < 2*time.Second:
		bucket = "lt_2s"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LatencyBuckets[bucket]++
}
