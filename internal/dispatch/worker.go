package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/push"
)

// Queue is the worker's view of the durable job table. Claim must be atomic:
// of two concurrent claims on the same id, at most one returns a job. The
// Mark methods are fenced by the lease stamp the claim returned: once another
// worker has reclaimed the job, a stale caller gets ErrLeaseLost and must
// discard its outcome.
type Queue interface {
	FindClaimable(ctx context.Context, now time.Time, limit int) ([]model.DispatchJob, error)
	Claim(ctx context.Context, id uint64, now time.Time, lease time.Duration) (*model.DispatchJob, error)
	MarkDone(ctx context.Context, id uint64, lease time.Time, statusCode int) error
	MarkRetry(ctx context.Context, id uint64, lease time.Time, dueAt time.Time, statusCode int, lastError string) error
	MarkDeadLetter(ctx context.Context, id uint64, lease time.Time, statusCode int, lastError string) error
}

// ErrLeaseLost reports that a job was reclaimed by another worker between this
// worker's claim and its attempt to record the outcome.
var ErrLeaseLost = errors.New("dispatch: job lease lost")

// Subscriptions resolves and cleans up device endpoints. FindByEndpoint
// returns (nil, nil) when the endpoint is not registered.
type Subscriptions interface {
	FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifications loads the recipient and event rows needed to build a payload.
type Notifications interface {
	FindRecipient(ctx context.Context, id uint64) (*model.NotificationRecipient, error)
	FindEvent(ctx context.Context, id uint64) (*model.NotificationEvent, error)
}

// TraceSink appends to the delivery trace ledger.
type TraceSink interface {
	Record(ctx context.Context, rec *model.DeliveryTraceRecord) error
}

// WorkerConfig carries the dispatch tunables.
type WorkerConfig struct {
	LeaseDuration time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	DefaultBatch  int
	MaxBatch      int
	FanOut        int
}

// Worker claims a bounded batch of due jobs, attempts delivery and resolves
// each job to done, retry or dead-letter. It holds no state of its own; all
// state lives in the queue.
type Worker struct {
	log      *zap.SugaredLogger
	queue    Queue
	subs     Subscriptions
	notifs   Notifications
	traces   TraceSink
	provider push.Provider
	cfg      WorkerConfig
}

func NewWorker(log *zap.SugaredLogger, queue Queue, subs Subscriptions, notifs Notifications, traces TraceSink, provider push.Provider, cfg WorkerConfig) *Worker {
	if cfg.DefaultBatch <= 0 {
		cfg.DefaultBatch = 25
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	return &Worker{
		log:      log,
		queue:    queue,
		subs:     subs,
		notifs:   notifs,
		traces:   traces,
		provider: provider,
		cfg:      cfg,
	}
}

// Run processes up to maxJobs claimable jobs. A failure listing claimable
// jobs aborts the run; per-job failures never do. In shadow mode the queue is
// left untouched and only trace rows are appended.
func (w *Worker) Run(ctx context.Context, maxJobs int, mode Mode) (*RunStats, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("dispatch: invalid mode %q", mode)
	}
	if maxJobs < 0 {
		return nil, fmt.Errorf("dispatch: maxJobs must not be negative, got %d", maxJobs)
	}
	if maxJobs == 0 {
		maxJobs = w.cfg.DefaultBatch
	}
	if maxJobs > w.cfg.MaxBatch {
		return nil, fmt.Errorf("dispatch: maxJobs %d exceeds limit %d", maxJobs, w.cfg.MaxBatch)
	}

	stats := NewRunStats(mode)
	jobs, err := w.queue.FindClaimable(ctx, time.Now(), maxJobs)
	if err != nil {
		return nil, fmt.Errorf("dispatch: listing claimable jobs: %w", err)
	}

	if mode == ModeShadow {
		for i := range jobs {
			w.shadowEvaluate(ctx, &jobs[i], stats)
		}
		return stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.FanOut)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			w.processJob(gctx, &job, stats)
			return nil
		})
	}
	_ = g.Wait()

	return stats, nil
}

// shadowEvaluate runs the same eligibility checks as a real send but performs
// no provider call and no queue mutation.
func (w *Worker) shadowEvaluate(ctx context.Context, job *model.DispatchJob, stats *RunStats) {
	sub, err := w.subs.FindByEndpoint(ctx, job.SubscriptionEndpoint)
	if err != nil {
		w.log.Errorw("shadow: loading subscription", "jobId", job.ID, "error", err)
		stats.skipped(ReasonInternalError)
		return
	}
	if sub == nil {
		stats.skipped(ReasonSubscriptionMissing)
		w.recordTrace(ctx, job, stats, model.TransportSimulatedPush, model.DecisionSkip, ReasonSubscriptionMissing, 0)
		return
	}
	stats.sent(ReasonDelivered)
	w.recordTrace(ctx, job, stats, model.TransportSimulatedPush, model.DecisionSend, ReasonDelivered, 0)
}

func (w *Worker) processJob(ctx context.Context, job *model.DispatchJob, stats *RunStats) {
	claimed, err := w.queue.Claim(ctx, job.ID, time.Now(), w.cfg.LeaseDuration)
	if err != nil {
		w.log.Errorw("claiming job", "jobId", job.ID, "error", err)
		stats.skipped(ReasonInternalError)
		return
	}
	if claimed == nil {
		// Another worker won the claim between listing and here.
		stats.skipped(ReasonClaimLost)
		return
	}
	stats.claimed()

	var lease time.Time
	if claimed.LeaseExpiresAt != nil {
		lease = *claimed.LeaseExpiresAt
	}

	sub, err := w.subs.FindByEndpoint(ctx, claimed.SubscriptionEndpoint)
	if err != nil {
		w.log.Errorw("loading subscription", "jobId", claimed.ID, "error", err)
		w.resolveRetry(ctx, claimed, lease, 0, "loading subscription: "+err.Error(), stats)
		return
	}
	if sub == nil {
		if !w.resolve(ctx, claimed.ID, func() error {
			return w.queue.MarkDeadLetter(ctx, claimed.ID, lease, 0, "subscription no longer exists")
		}) {
			stats.skipped(ReasonClaimLost)
			return
		}
		stats.deadLettered(ReasonSubscriptionMissing)
		w.recordTrace(ctx, claimed, stats, model.TransportWebPush, model.DecisionSkip, ReasonSubscriptionMissing, 0)
		return
	}

	payload, err := w.buildPayload(ctx, claimed)
	if err != nil {
		w.log.Errorw("building payload", "jobId", claimed.ID, "error", err)
		w.resolveRetry(ctx, claimed, lease, 0, "building payload: "+err.Error(), stats)
		return
	}

	start := time.Now()
	res := w.provider.Send(ctx, sub, payload)
	stats.observeLatency(time.Since(start))

	switch res.Outcome {
	case push.OutcomeDelivered:
		if !w.resolve(ctx, claimed.ID, func() error {
			return w.queue.MarkDone(ctx, claimed.ID, lease, res.StatusCode)
		}) {
			stats.skipped(ReasonClaimLost)
			return
		}
		stats.sent(ReasonDelivered)
		w.recordTrace(ctx, claimed, stats, model.TransportWebPush, model.DecisionSend, ReasonDelivered, res.StatusCode)

	case push.OutcomeGone:
		if !w.resolve(ctx, claimed.ID, func() error {
			return w.queue.MarkDeadLetter(ctx, claimed.ID, lease, res.StatusCode, "subscription gone")
		}) {
			// Reclaimed mid-send; the reclaiming worker owns the verdict on
			// this endpoint now.
			stats.skipped(ReasonClaimLost)
			return
		}
		// No further jobs may target this endpoint.
		if err := w.subs.DeleteByEndpoint(ctx, claimed.SubscriptionEndpoint); err != nil {
			w.log.Errorw("deleting invalid subscription", "endpoint", claimed.SubscriptionEndpoint, "error", err)
		}
		stats.deadLettered(ReasonSubscriptionInvalid)
		w.recordTrace(ctx, claimed, stats, model.TransportWebPush, model.DecisionSkip, ReasonSubscriptionInvalid, res.StatusCode)

	default:
		errMsg := "provider transient failure"
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		w.resolveRetry(ctx, claimed, lease, res.StatusCode, errMsg, stats)
	}
}

// resolveRetry schedules the next attempt with backoff, or dead-letters the
// job once the attempt budget is spent.
func (w *Worker) resolveRetry(ctx context.Context, job *model.DispatchJob, lease time.Time, statusCode int, lastError string, stats *RunStats) {
	if job.Attempts >= w.cfg.MaxAttempts {
		if !w.resolve(ctx, job.ID, func() error {
			return w.queue.MarkDeadLetter(ctx, job.ID, lease, statusCode, lastError)
		}) {
			stats.skipped(ReasonClaimLost)
			return
		}
		stats.deadLettered(ReasonAttemptsExhausted)
		w.recordTrace(ctx, job, stats, model.TransportWebPush, model.DecisionSkip, ReasonAttemptsExhausted, statusCode)
		return
	}

	dueAt := time.Now().Add(Backoff(w.cfg.BackoffBase, w.cfg.BackoffCap, job.Attempts))
	if !w.resolve(ctx, job.ID, func() error {
		return w.queue.MarkRetry(ctx, job.ID, lease, dueAt, statusCode, lastError)
	}) {
		stats.skipped(ReasonClaimLost)
		return
	}
	stats.retried(ReasonProviderTransient)
	w.recordTrace(ctx, job, stats, model.TransportWebPush, model.DecisionDefer, ReasonProviderTransient, statusCode)
}

// resolve applies a terminal-state update, retrying once on a database error.
// It returns false when the job's lease was lost to a reclaiming worker, in
// which case the caller must drop its outcome entirely. A second database
// failure is logged and left for the lease to recover.
func (w *Worker) resolve(ctx context.Context, jobID uint64, fn func() error) bool {
	err := fn()
	if err == nil {
		return true
	}
	if errors.Is(err, ErrLeaseLost) {
		w.log.Warnw("job reclaimed before resolution, dropping result", "jobId", jobID)
		return false
	}
	w.log.Warnw("resolving job failed, retrying once", "jobId", jobID, "error", err)
	err = fn()
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrLeaseLost):
		w.log.Warnw("job reclaimed before resolution, dropping result", "jobId", jobID)
		return false
	default:
		w.log.Errorw("resolving job failed twice, lease will reclaim", "jobId", jobID, "error", err)
		return true
	}
}

type pushPayload struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	EventID     uint64 `json:"eventId"`
	RecipientID uint64 `json:"recipientId"`
	ActorUID    string `json:"actorUid,omitempty"`
}

func (w *Worker) buildPayload(ctx context.Context, job *model.DispatchJob) ([]byte, error) {
	event, err := w.notifs.FindEvent(ctx, job.NotificationEventID)
	if err != nil {
		return nil, err
	}
	rec, err := w.notifs.FindRecipient(ctx, job.NotificationRecipientID)
	if err != nil {
		return nil, err
	}

	p := pushPayload{
		Kind:        event.Kind,
		Title:       titleForKind(event.Kind),
		EventID:     event.ID,
		RecipientID: rec.ID,
		ActorUID:    event.ActorUserUID,
	}
	switch event.Kind {
	case model.KindFriendRequestReceived:
		p.Body = "You have a new friend request"
	case model.KindFriendRequestAccepted:
		p.Body = "Your friend request was accepted"
	case model.KindDMMessage:
		p.Body = "You have a new direct message"
	case model.KindChannelMention:
		p.Body = "You were mentioned in a channel"
	default:
		p.Body = "You have a new notification"
	}
	return json.Marshal(p)
}

func titleForKind(kind string) string {
	switch kind {
	case model.KindFriendRequestReceived:
		return "New friend request"
	case model.KindFriendRequestAccepted:
		return "Friend request accepted"
	case model.KindDMMessage:
		return "New message"
	case model.KindChannelMention:
		return "New mention"
	default:
		return "Tsubaki"
	}
}

func (w *Worker) recordTrace(ctx context.Context, job *model.DispatchJob, stats *RunStats, transport, decision, reason string, statusCode int) {
	details, _ := json.Marshal(map[string]any{
		"wakeSource": string(stats.Mode),
		"runId":      stats.RunID,
		"jobId":      job.ID,
		"attempts":   job.Attempts,
		"statusCode": statusCode,
	})
	rec := &model.DeliveryTraceRecord{
		NotificationRecipientID: &job.NotificationRecipientID,
		EventID:                 &job.NotificationEventID,
		Transport:               transport,
		Stage:                   model.StageServerDispatch,
		Decision:                decision,
		ReasonCode:              reason,
		Details:                 string(details),
	}
	if err := w.traces.Record(ctx, rec); err != nil {
		w.log.Errorw("recording trace", "jobId", job.ID, "error", err)
	}
}
