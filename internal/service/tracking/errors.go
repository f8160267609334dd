package tracking

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the tracking service layer.
var (
	ErrTokenNotFound = fmt.Errorf("tracking token %w", domain.ErrNotFound)
	ErrAlreadyIssued = domain.ErrAlreadyIssued
)
