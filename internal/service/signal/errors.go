package signal

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the signal service layer.
var (
	ErrNotFound          = fmt.Errorf("signal %w", domain.ErrNotFound)
	ErrDuplicate         = fmt.Errorf("%w signal", domain.ErrDuplicate)
	ErrAlreadyPromoted   = domain.ErrAlreadyPromoted
	ErrInvalidTransition = fmt.Errorf("%w: invalid signal status transition", domain.ErrConflict)
)
