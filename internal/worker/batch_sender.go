package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/bundle"
)

// DefaultBatchSendInterval is how often approved bundles are delivered.
const DefaultBatchSendInterval = 5 * time.Minute

// Batches is the subset of *bundle.Service the batch sender drives.
type Batches interface {
	DraftBatch(ctx context.Context, batchDate string, limit int) (*bundle.BatchReport, error)
	ListApproved(ctx context.Context, limit int) ([]domain.OutreachBundle, error)
	Deliver(ctx context.Context, id int64) (*domain.OutreachBundle, error)
}

// BatchConfig holds the batch sender settings.
type BatchConfig struct {
	Interval      time.Duration
	Concurrency   int  // parallel deliveries
	MaxDailySends int  // 0 disables the cap
	Draft         bool // draft today's batch before delivering
	DraftLimit    int  // 0 uses the bundle service default
}

// BatchSendReport summarizes one run.
type BatchSendReport struct {
	Skipped   bool `json:"skipped"` // another instance holds the batch lock
	Drafted   int  `json:"drafted"`
	Approved  int  `json:"approved"`
	Delivered int  `json:"delivered"`
	Bounced   int  `json:"bounced"`
	Failed    int  `json:"failed"`
	Capped    bool `json:"capped"`
}

// BatchSender drafts the daily batch and delivers approved bundles under
// the daily send cap. Send attempts made by the follow-up sweeper count
// against the same cap.
type BatchSender struct {
	batches Batches
	sends   SendCounter
	lock    distlock.DistLock
	cfg     BatchConfig
	now     func() time.Time
	log     *logger.Logger
}

// NewBatchSender creates a batch sender. lock and sends may be nil.
func NewBatchSender(b Batches, sends SendCounter, lock distlock.DistLock, cfg BatchConfig) *BatchSender {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBatchSendInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &BatchSender{
		batches: b,
		sends:   sends,
		lock:    lock,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.With("component", "batch-sender"),
	}
}

// WithClock overrides the time source (tests).
func (w *BatchSender) WithClock(now func() time.Time) *BatchSender {
	w.now = now
	return w
}

// Start runs batches until ctx is cancelled.
func (w *BatchSender) Start(ctx context.Context) {
	w.log.Info("batch sender started", "interval", w.cfg.Interval.String(), "draft", w.cfg.Draft)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("batch send failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("batch sender stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce optionally drafts today's batch, then delivers approved bundles
// until none are left or the daily cap is reached.
func (w *BatchSender) RunOnce(ctx context.Context) (BatchSendReport, error) {
	var report BatchSendReport

	if w.lock != nil {
		ok, err := w.lock.Acquire(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped = true
			w.log.Debug("batch lock held elsewhere")
			return report, nil
		}
		defer w.lock.Release(context.WithoutCancel(ctx))
	}

	now := w.now()
	if w.cfg.Draft {
		br, err := w.batches.DraftBatch(ctx, now.UTC().Format(domain.BatchDateLayout), w.cfg.DraftLimit)
		if err != nil {
			return report, err
		}
		report.Drafted = len(br.Drafted)
		report.Approved = br.Approved
	}

	limit := 0
	if w.cfg.MaxDailySends > 0 && w.sends != nil {
		sent, err := w.sends.CountSends(ctx, domain.Date(now))
		if err != nil {
			return report, err
		}
		limit = max(w.cfg.MaxDailySends-sent, 0)
		if limit == 0 {
			report.Capped = true
			w.log.Info("daily send cap reached", "max_daily_sends", w.cfg.MaxDailySends)
			return report, nil
		}
	}

	// One extra row tells a capped run from an exact fit.
	fetch := 0
	if limit > 0 {
		fetch = limit + 1
	}
	approved, err := w.batches.ListApproved(ctx, fetch)
	if err != nil {
		return report, err
	}
	if limit > 0 && len(approved) > limit {
		approved = approved[:limit]
		report.Capped = true
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, b := range approved {
		id := b.ID
		g.Go(func() error {
			out, err := w.batches.Deliver(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				if !errors.Is(err, domain.ErrNotEligible) {
					w.log.Warn("batch delivery failed", "bundle_id", id, "error", err)
				}
			case out.Status == domain.BundleBounced:
				report.Bounced++
			default:
				report.Delivered++
			}
			return nil
		})
	}
	err = g.Wait()

	w.log.Info("batch send complete",
		"drafted", report.Drafted, "delivered", report.Delivered, "bounced", report.Bounced, "failed", report.Failed, "capped", report.Capped)
	return report, err
}
