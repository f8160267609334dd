package signal

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for news signals.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a signal. Returns an error wrapping ErrDuplicate when
	// the source_url already exists.
	Create(ctx context.Context, s *domain.NewsSignal) (int64, error)

	// Get returns a single signal or ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.NewsSignal, error)

	// GetByURL returns the signal with the normalized source_url or
	// ErrNotFound.
	GetByURL(ctx context.Context, sourceURL string) (*domain.NewsSignal, error)

	// List returns signals matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]domain.NewsSignal, error)

	// Transition moves a signal to status to only if its current status is
	// one of from; contactID is written when non-nil. Reports whether a
	// row changed.
	Transition(ctx context.Context, id int64, from []domain.SignalStatus, to domain.SignalStatus, contactID *int64) (bool, error)
}

// ListFilter controls signal listing.
type ListFilter struct {
	Status     domain.SignalStatus
	SignalType string
	Limit      int
	Offset     int
}
