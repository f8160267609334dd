package stats

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the stats service layer.
var ErrNotFound = fmt.Errorf("daily stat %w", domain.ErrNotFound)
