package tracking

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for tokens and open events.
// Implementations must be safe for concurrent use.
type Repository interface {
	// InsertToken stores a new token. Returns an error wrapping
	// ErrAlreadyIssued when the bundle (or tracking id) already has one,
	// and one wrapping domain.ErrNotFound when the bundle is missing.
	InsertToken(ctx context.Context, t *domain.TrackingToken) error

	// TokenByBundle returns the bundle's token or ErrTokenNotFound.
	TokenByBundle(ctx context.Context, bundleID int64) (*domain.TrackingToken, error)

	// Token resolves a tracking id or returns ErrTokenNotFound.
	Token(ctx context.Context, trackingID string) (*domain.TrackingToken, error)

	// RecordOpen inserts the event and, in the same transaction, sets the
	// bundle's open_count to the number of events and first_opened_at to
	// the earliest opened_at.
	RecordOpen(ctx context.Context, ev *domain.OpenEvent) (domain.OpenAggregate, error)

	// Opens lists a bundle's open events oldest first.
	Opens(ctx context.Context, bundleID int64) ([]domain.OpenEvent, error)
}
