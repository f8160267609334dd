package contact

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for contacts and their
// discovery log. Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a contact and returns its ID. Returns an error
	// wrapping ErrDuplicate when the identity already exists: company and
	// domain, or company and city for a contact without a domain.
	Create(ctx context.Context, c *domain.Contact) (int64, error)

	// Get returns a single contact. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.Contact, error)

	// FindByIdentity looks a contact up by case-insensitive company name
	// and domain. City is compared only when domainName is empty. Returns
	// ErrNotFound when there is none.
	FindByIdentity(ctx context.Context, companyName, city, domainName string) (*domain.Contact, error)

	// List returns contacts matching the filter ordered by id.
	List(ctx context.Context, f ListFilter) ([]domain.Contact, error)

	// Mutate loads the contact, applies fn and persists every mutable
	// field atomically. If fn returns an error nothing is written and the
	// error is returned unchanged.
	Mutate(ctx context.Context, id int64, fn func(c *domain.Contact) error) (*domain.Contact, error)

	// AppendDiscovery inserts an immutable discovery log entry.
	AppendDiscovery(ctx context.Context, e *domain.DiscoveryLogEntry) (int64, error)

	// DiscoveryLog returns a contact's entries oldest first.
	DiscoveryLog(ctx context.Context, contactID int64) ([]domain.DiscoveryLogEntry, error)

	// AppendBounce inserts an immutable bounce record.
	AppendBounce(ctx context.Context, e *domain.BounceEvent) (int64, error)

	// Bounces returns a contact's bounce records oldest first.
	Bounces(ctx context.Context, contactID int64) ([]domain.BounceEvent, error)
}

// ListFilter controls contact listing. CompanyContains matches
// case-insensitively.
type ListFilter struct {
	CompanyContains string
	City            string
	Tier            domain.Tier
	OutreachStatus  domain.OutreachStatus
	Limit           int
	Offset          int
}
