package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/outreach"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/bundle"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/service/followup"
	"github.com/ignite/outreach-engine/internal/service/signal"
	"github.com/ignite/outreach-engine/internal/service/stats"
	"github.com/ignite/outreach-engine/internal/service/tracking"
	"github.com/ignite/outreach-engine/internal/worker"
)

// Sweeper runs one follow-up sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (worker.SweepReport, error)
}

// Handlers contains all command API handlers
type Handlers struct {
	contacts  *contact.Service
	bundles   *bundle.Service
	tracking  *tracking.Service
	followups *followup.Service
	signals   *signal.Service
	stats     *stats.Service
	sweeper   Sweeper
	pixelBase string
	now       func() time.Time
	log       *logger.Logger
}

// NewHandlers creates handlers over the engine's services. sweeper may be
// nil, in which case POST /api/followups/sweep answers 503.
func NewHandlers(eng *outreach.Engine, sweeper Sweeper) *Handlers {
	now := eng.Options.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		contacts:  eng.Contacts,
		bundles:   eng.Bundles,
		tracking:  eng.Tracking,
		followups: eng.FollowUps,
		signals:   eng.Signals,
		stats:     eng.Stats,
		sweeper:   sweeper,
		pixelBase: eng.Options.TrackingBaseURL,
		now:       now,
		log:       logger.With("component", "api"),
	}
}

// pathID parses the {id} URL parameter. It writes a 400 and returns false
// when the value is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}
