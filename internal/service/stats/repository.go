package stats

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for the daily roll-up.
type Repository interface {
	// Compute derives the counters for the UTC day starting at day from
	// the source tables. It does not write.
	Compute(ctx context.Context, day time.Time) (*domain.DailyStat, error)

	// Upsert writes the row keyed by stat_date, replacing any previous one.
	Upsert(ctx context.Context, s *domain.DailyStat) error

	// Get returns the stored row for a date or ErrNotFound.
	Get(ctx context.Context, statDate string) (*domain.DailyStat, error)

	// Range returns stored rows with from <= stat_date <= to, ascending.
	Range(ctx context.Context, from, to string) ([]domain.DailyStat, error)
}
