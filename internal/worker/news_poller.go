package worker

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/newsscan"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// NewsScanner is the subset of *newsscan.Scanner the poller drives.
type NewsScanner interface {
	ScanAll(ctx context.Context) newsscan.Report
}

// NewsPoller runs the news scanner on a fixed interval.
type NewsPoller struct {
	scanner  NewsScanner
	lock     distlock.DistLock
	interval time.Duration
	log      *logger.Logger
}

// NewNewsPoller creates a poller. lock may be nil.
func NewNewsPoller(scanner NewsScanner, lock distlock.DistLock, interval time.Duration) *NewsPoller {
	if interval <= 0 {
		interval = time.Hour
	}
	return &NewsPoller{scanner: scanner, lock: lock, interval: interval, log: logger.With("component", "news-poller")}
}

// Start polls until ctx is cancelled.
func (p *NewsPoller) Start(ctx context.Context) {
	p.log.Info("news poller started", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			p.log.Info("news poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs one scan unless another instance holds the lock. The
// second return is false when the scan was skipped.
func (p *NewsPoller) PollOnce(ctx context.Context) (newsscan.Report, bool) {
	if p.lock != nil {
		ok, err := p.lock.Acquire(ctx)
		if err != nil {
			p.log.Warn("news lock unavailable", "error", err)
			return newsscan.Report{}, false
		}
		if !ok {
			return newsscan.Report{}, false
		}
		defer p.lock.Release(context.WithoutCancel(ctx))
	}
	return p.scanner.ScanAll(ctx), true
}
