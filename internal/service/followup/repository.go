package followup

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for follow-ups.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a follow-up. Returns an error wrapping
	// ErrSequenceTaken on a (contact_id, sequence_number) clash.
	Create(ctx context.Context, f *domain.FollowUp) (int64, error)

	// Get returns a single follow-up or ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.FollowUp, error)

	// MaxSequence returns the highest sequence number of the contact, 0
	// when none exist.
	MaxSequence(ctx context.Context, contactID int64) (int, error)

	// ListByContact returns the contact's follow-ups by sequence number.
	ListByContact(ctx context.Context, contactID int64) ([]domain.FollowUp, error)

	// DuePage returns up to limit pending follow-ups with scheduled_date
	// <= asOf, ordered by (scheduled_date, contact_id, id) and strictly
	// after the cursor.
	DuePage(ctx context.Context, asOf time.Time, after Cursor, limit int) ([]domain.FollowUp, error)

	// Transition moves a follow-up from one status to another only if it
	// is still in from. sentAt is written when non-nil. Reports whether a
	// row changed.
	Transition(ctx context.Context, id int64, from, to domain.FollowUpStatus, sentAt *time.Time) (bool, error)

	// CancelPending cancels all of a contact's pending follow-ups and
	// returns how many changed.
	CancelPending(ctx context.Context, contactID int64) (int, error)
}

// Cursor is the keyset position of a Due scan. The zero value starts
// from the beginning.
type Cursor struct {
	ScheduledDate time.Time
	ContactID     int64
	ID            int64
}

// Before reports whether the cursor sorts strictly before f.
func (c Cursor) Before(f domain.FollowUp) bool {
	switch {
	case !f.ScheduledDate.Equal(c.ScheduledDate):
		return f.ScheduledDate.After(c.ScheduledDate)
	case f.ContactID != c.ContactID:
		return f.ContactID > c.ContactID
	default:
		return f.ID > c.ID
	}
}
