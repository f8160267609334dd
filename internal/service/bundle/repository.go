package bundle

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for bundles and the send
// log. Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a bundle. Returns an error wrapping
	// ErrUnresolvedExists when the contact already has a queued or
	// approved bundle.
	Create(ctx context.Context, b *domain.OutreachBundle) (int64, error)

	// Get returns a single bundle. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.OutreachBundle, error)

	// Unresolved returns the contact's queued or approved bundle, or
	// ErrNotFound.
	Unresolved(ctx context.Context, contactID int64) (*domain.OutreachBundle, error)

	// ListByBatch returns the bundles of one batch date ordered by id.
	ListByBatch(ctx context.Context, batchDate string) ([]domain.OutreachBundle, error)

	// ListByContact returns a contact's bundles ordered by id.
	ListByContact(ctx context.Context, contactID int64) ([]domain.OutreachBundle, error)

	// ListApproved returns up to limit approved bundles, oldest approval
	// first. A limit of 0 means no limit.
	ListApproved(ctx context.Context, limit int) ([]domain.OutreachBundle, error)

	// DraftCandidates returns the ids of up to limit contacts ready for a
	// first bundle: outreach pending, account not lost, a found or
	// verified email, and no queued or approved bundle. Highest
	// priority_score first, then lowest id.
	DraftCandidates(ctx context.Context, limit int) ([]int64, error)

	// Save writes the lifecycle fields (status, recipient, approved_at,
	// sent_at, email_sent, reply fields) only if the stored status is still
	// expected. Returns ErrInvalidTransition otherwise. Open counters
	// belong to the tracking repository and are never written here.
	Save(ctx context.Context, b *domain.OutreachBundle, expected domain.BundleStatus) error

	// CancelUnresolved moves the contact's queued/approved bundles to
	// cancelled and returns how many changed.
	CancelUnresolved(ctx context.Context, contactID int64) (int, error)

	// AppendSendLog inserts an immutable send attempt record.
	AppendSendLog(ctx context.Context, e *domain.SendLogEntry) (int64, error)

	// SendLog returns a bundle's attempts oldest first.
	SendLog(ctx context.Context, bundleID int64) ([]domain.SendLogEntry, error)

	// CountSends counts send attempts, successful or not, since the given
	// instant.
	CountSends(ctx context.Context, since time.Time) (int, error)
}
