package contact

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the contact service layer.
var (
	ErrNotFound          = fmt.Errorf("contact %w", domain.ErrNotFound)
	ErrDuplicate         = fmt.Errorf("%w contact", domain.ErrDuplicate)
	ErrInvalidTransition = fmt.Errorf("%w: invalid account status transition", domain.ErrConflict)
	ErrBouncedAddress    = fmt.Errorf("%w: address bounced for this contact", domain.ErrValidation)
	ErrTerminal          = fmt.Errorf("%w: contact is bounced, unsubscribed or lost", domain.ErrNotEligible)
)

// errNoChange aborts a Mutate without writing.
var errNoChange = errors.New("no change")
