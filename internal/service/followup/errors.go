package followup

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the follow-up service layer.
var (
	ErrNotFound          = fmt.Errorf("follow-up %w", domain.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("%w: follow-up is not pending", domain.ErrConflict)
	ErrNotDue            = fmt.Errorf("%w: follow-up is not due yet", domain.ErrNotEligible)
	ErrNotSent           = fmt.Errorf("%w: bundle has not been sent", domain.ErrNotEligible)
	ErrContactIneligible = fmt.Errorf("%w: contact is bounced, unsubscribed or lost", domain.ErrNotEligible)
	ErrSequenceTaken     = fmt.Errorf("%w: follow-up sequence number already scheduled", domain.ErrConflict)
	ErrCadenceExhausted  = domain.ErrCadenceExhausted
)
