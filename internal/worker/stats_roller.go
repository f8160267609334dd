package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// StatsRecomputer is the subset of *stats.Service the roller drives.
type StatsRecomputer interface {
	Recompute(ctx context.Context, date string) (*domain.DailyStat, error)
}

// StatsArchiver stores a finished day's row off-database.
type StatsArchiver interface {
	Put(ctx context.Context, st *domain.DailyStat) error
}

// StatsRoller recomputes yesterday's DailyStat once a day after hourUTC,
// and refreshes today's row on every tick so dashboards stay current.
type StatsRoller struct {
	stats    StatsRecomputer
	archive  StatsArchiver
	hourUTC  int
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	lastClosed string
}

// NewStatsRoller creates a roller. archive may be nil.
func NewStatsRoller(stats StatsRecomputer, archive StatsArchiver, hourUTC int) *StatsRoller {
	return &StatsRoller{
		stats:    stats,
		archive:  archive,
		hourUTC:  hourUTC,
		interval: 15 * time.Minute,
		now:      time.Now,
		log:      logger.With("component", "stats-roller"),
	}
}

// WithClock overrides the time source (tests).
func (r *StatsRoller) WithClock(now func() time.Time) *StatsRoller {
	r.now = now
	return r
}

// Start ticks until ctx is cancelled.
func (r *StatsRoller) Start(ctx context.Context) {
	r.log.Info("stats roller started", "close_hour_utc", r.hourUTC)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("stats roll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick refreshes today and, once per day after the close hour, closes and
// archives yesterday.
func (r *StatsRoller) Tick(ctx context.Context) error {
	now := r.now().UTC()
	today := now.Format(domain.BatchDateLayout)
	if _, err := r.stats.Recompute(ctx, today); err != nil {
		return err
	}

	yesterday := now.AddDate(0, 0, -1).Format(domain.BatchDateLayout)
	if now.Hour() < r.hourUTC || r.lastClosed == yesterday {
		return nil
	}
	if err := r.Close(ctx, yesterday); err != nil {
		return err
	}
	r.lastClosed = yesterday
	return nil
}

// Close recomputes a finished day and archives it.
func (r *StatsRoller) Close(ctx context.Context, date string) error {
	st, err := r.stats.Recompute(ctx, date)
	if err != nil {
		return err
	}
	if r.archive == nil {
		return nil
	}
	if err := r.archive.Put(ctx, st); err != nil {
		return fmt.Errorf("archive %s: %w", date, err)
	}
	return nil
}
