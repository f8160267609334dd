package worker

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/followup"
)

// DefaultSweepInterval is how often due follow-ups are collected.
const DefaultSweepInterval = 5 * time.Minute

// FollowUps is the subset of *followup.Service the sweeper drives.
type FollowUps interface {
	Due(ctx context.Context, asOf time.Time) iter.Seq2[domain.FollowUp, error]
	Dispatch(ctx context.Context, id int64) (followup.Outcome, error)
}

// SendCounter reports send attempts since a point in time.
type SendCounter interface {
	CountSends(ctx context.Context, since time.Time) (int, error)
}

// SweepConfig holds the sweeper settings.
type SweepConfig struct {
	Interval      time.Duration
	Concurrency   int // parallel dispatches
	MaxDailySends int // 0 disables the cap
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Skipped  bool                     `json:"skipped"` // another instance holds the sweep lock
	Due      int                      `json:"due"`
	Outcomes map[followup.Outcome]int `json:"outcomes"`
	Failed   int                      `json:"failed"`
	Capped   bool                     `json:"capped"`
}

// FollowUpSweeper dispatches due follow-ups on a timer. When a DistLock is
// set only one instance sweeps at a time; each dispatch still serializes
// on its contact lock.
type FollowUpSweeper struct {
	followups FollowUps
	sends     SendCounter
	lock      distlock.DistLock
	cfg       SweepConfig
	now       func() time.Time
	log       *logger.Logger
}

// NewFollowUpSweeper creates a sweeper. lock and sends may be nil.
func NewFollowUpSweeper(f FollowUps, sends SendCounter, lock distlock.DistLock, cfg SweepConfig) *FollowUpSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &FollowUpSweeper{
		followups: f,
		sends:     sends,
		lock:      lock,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.With("component", "followup-sweeper"),
	}
}

// WithClock overrides the time source (tests).
func (w *FollowUpSweeper) WithClock(now func() time.Time) *FollowUpSweeper {
	w.now = now
	return w
}

// Start runs sweeps until ctx is cancelled.
func (w *FollowUpSweeper) Start(ctx context.Context) {
	w.log.Info("follow-up sweeper started", "interval", w.cfg.Interval.String(), "concurrency", w.cfg.Concurrency)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("follow-up sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("follow-up sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep as of now.
func (w *FollowUpSweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Outcomes: map[followup.Outcome]int{}}

	if w.lock != nil {
		ok, err := w.lock.Acquire(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped = true
			w.log.Debug("sweep lock held elsewhere")
			return report, nil
		}
		defer w.lock.Release(context.WithoutCancel(ctx))
	}

	now := w.now()
	budget := -1
	if w.cfg.MaxDailySends > 0 && w.sends != nil {
		sent, err := w.sends.CountSends(ctx, domain.Date(now))
		if err != nil {
			return report, err
		}
		budget = max(w.cfg.MaxDailySends-sent, 0)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)

	var iterErr error
	for f, err := range w.followups.Due(gctx, now) {
		if err != nil {
			iterErr = err
			break
		}
		if budget == 0 {
			report.Capped = true
			break
		}
		if budget > 0 {
			budget--
		}
		report.Due++

		id := f.ID
		g.Go(func() error {
			outcome, err := w.followups.Dispatch(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if !errors.Is(err, domain.ErrTransientSend) {
					w.log.Warn("follow-up dispatch failed", "follow_up_id", id, "error", err)
				}
				return nil
			}
			report.Outcomes[outcome]++
			return nil
		})
	}
	if err := g.Wait(); err != nil && iterErr == nil {
		iterErr = err
	}

	w.log.Info("follow-up sweep complete",
		"due", report.Due, "sent", report.Outcomes[followup.OutcomeSent], "failed", report.Failed, "capped", report.Capped)
	return report, iterErr
}
