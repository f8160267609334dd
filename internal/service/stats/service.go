package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service computes and serves daily statistics.
type Service struct {
	repo Repository
	now  func() time.Time
	log  *logger.Logger
}

// NewService creates a stats service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, log: logger.With("component", "stats")}
}

// Recompute regenerates the row for date (YYYY-MM-DD) from source data.
func (s *Service) Recompute(ctx context.Context, date string) (*domain.DailyStat, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: stat date must be YYYY-MM-DD", domain.ErrValidation)
	}
	st, err := s.repo.Compute(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("compute stats %s: %w", date, err)
	}
	st.StatDate = date
	st.ComputedAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, st); err != nil {
		return nil, fmt.Errorf("upsert stats %s: %w", date, err)
	}
	s.log.Info("daily stats recomputed", "stat_date", date, "emails_sent", st.EmailsSent, "opens", st.Opens)
	return st, nil
}

// Get returns the stored row for a date.
func (s *Service) Get(ctx context.Context, date string) (*domain.DailyStat, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: stat date must be YYYY-MM-DD", domain.ErrValidation)
	}
	return s.repo.Get(ctx, date)
}

// Range returns stored rows between two dates inclusive.
func (s *Service) Range(ctx context.Context, from, to string) ([]domain.DailyStat, error) {
	f, err := domain.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", domain.ErrValidation)
	}
	t, err := domain.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", domain.ErrValidation)
	}
	if t.Before(f) {
		return nil, fmt.Errorf("%w: to is before from", domain.ErrValidation)
	}
	return s.repo.Range(ctx, from, to)
}
