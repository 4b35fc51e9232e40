package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsubaki-chat/backend/internal/model"
)

// Skip reasons recorded into WakeupConfig.LastSkipReason.
const (
	SkipDisabled          = "disabled"
	SkipDebounced         = "debounced"
	SkipConfigUnavailable = "config_unavailable"
)

// ConfigStore persists the singleton wakeup configuration row.
// TryAcquireRunSlot must be a single atomic compare-and-swap on the last run
// time: of N concurrent triggers inside one interval, exactly one acquires.
type ConfigStore interface {
	Get(ctx context.Context) (*model.WakeupConfig, error)
	TryAcquireRunSlot(ctx context.Context, now time.Time, minInterval time.Duration) (bool, error)
	RecordSkip(ctx context.Context, reason string, debounced bool) error
	RecordRun(ctx context.Context, mode Mode, reason, lastError string) error
	Update(ctx context.Context, patch ConfigPatch) (*model.WakeupConfig, error)
}

// ConfigPatch is a partial operator update; nil fields are left unchanged.
type ConfigPatch struct {
	Enabled            *bool `json:"enabled,omitempty"`
	ShadowMode         *bool `json:"shadowMode,omitempty"`
	MinIntervalSeconds *int  `json:"minIntervalSeconds,omitempty"`
}

func (p ConfigPatch) Validate() error {
	if p.MinIntervalSeconds != nil && *p.MinIntervalSeconds < 1 {
		return fmt.Errorf("dispatch: minIntervalSeconds must be >= 1, got %d", *p.MinIntervalSeconds)
	}
	return nil
}

// WorkerRunner is the scheduler's view of the worker.
type WorkerRunner interface {
	Run(ctx context.Context, maxJobs int, mode Mode) (*RunStats, error)
}

// TriggerResult reports what the scheduler did with one wakeup request.
type TriggerResult struct {
	Invoked     bool      `json:"invoked"`
	SkipReason  string    `json:"skipReason,omitempty"`
	Mode        Mode      `json:"mode,omitempty"`
	Stats       *RunStats `json:"stats,omitempty"`
	WorkerError string    `json:"workerError,omitempty"`
}

// Scheduler decides whether to invoke the worker for a given trigger. It
// enforces at most one non-shadow invocation per configured interval across
// all trigger sources.
type Scheduler struct {
	log     *zap.SugaredLogger
	store   ConfigStore
	worker  WorkerRunner
	maxJobs int
}

func NewScheduler(log *zap.SugaredLogger, store ConfigStore, worker WorkerRunner, maxJobs int) *Scheduler {
	if maxJobs <= 0 {
		maxJobs = 25
	}
	return &Scheduler{log: log, store: store, worker: worker, maxJobs: maxJobs}
}

// Trigger handles one wakeup request from the given source. It never returns
// an error: worker failures are captured into the config row's last_error so
// the triggering action (e.g. sending a friend request) is unaffected.
func (s *Scheduler) Trigger(ctx context.Context, source Mode, reason string) *TriggerResult {
	res := &TriggerResult{}

	cfg, err := s.store.Get(ctx)
	if err != nil {
		s.log.Errorw("wakeup: loading config", "error", err)
		res.SkipReason = SkipConfigUnavailable
		return res
	}

	if !cfg.Enabled {
		if err := s.store.RecordSkip(ctx, SkipDisabled, false); err != nil {
			s.log.Errorw("wakeup: recording skip", "error", err)
		}
		res.SkipReason = SkipDisabled
		return res
	}

	minInterval := time.Duration(cfg.MinIntervalSeconds) * time.Second
	won, err := s.store.TryAcquireRunSlot(ctx, time.Now(), minInterval)
	if err != nil {
		s.log.Errorw("wakeup: acquiring run slot", "error", err)
		res.SkipReason = SkipConfigUnavailable
		return res
	}
	if !won {
		if err := s.store.RecordSkip(ctx, SkipDebounced, true); err != nil {
			s.log.Errorw("wakeup: recording skip", "error", err)
		}
		res.SkipReason = SkipDebounced
		return res
	}

	mode := source
	if cfg.ShadowMode {
		// Shadow mode turns every invocation into a dry run so debounce
		// behavior can be validated with live trigger volume.
		mode = ModeShadow
	}

	res.Invoked = true
	res.Mode = mode

	stats, runErr := s.invoke(ctx, mode)
	res.Stats = stats

	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
		res.WorkerError = errStr
		s.log.Errorw("wakeup: worker run failed", "mode", mode, "error", runErr)
	}
	if err := s.store.RecordRun(ctx, mode, reason, errStr); err != nil {
		s.log.Errorw("wakeup: recording run", "error", err)
	}
	return res
}

// invoke shields the trigger's caller from worker panics.
func (s *Scheduler) invoke(ctx context.Context, mode Mode) (stats *RunStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			stats = nil
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return s.worker.Run(ctx, s.maxJobs, mode)
}

// Config returns the current wakeup configuration snapshot.
func (s *Scheduler) Config(ctx context.Context) (*model.WakeupConfig, error) {
	return s.store.Get(ctx)
}

// UpdateConfig applies an operator patch and returns the updated snapshot.
func (s *Scheduler) UpdateConfig(ctx context.Context, patch ConfigPatch) (*model.WakeupConfig, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, patch)
}
