package bundle

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the bundle service layer.
var (
	ErrNotFound          = fmt.Errorf("bundle %w", domain.ErrNotFound)
	ErrUnresolvedExists  = fmt.Errorf("%w: contact already has a queued or approved bundle", domain.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid bundle status transition", domain.ErrConflict)
	ErrContactIneligible = fmt.Errorf("%w: contact is bounced, unsubscribed or lost", domain.ErrNotEligible)
	ErrNoRecipient       = fmt.Errorf("%w: contact has no deliverable email", domain.ErrNotEligible)
)
