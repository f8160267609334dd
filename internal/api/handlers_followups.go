package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// RecordOpen handles POST /api/tracking/{tracking_id}/open. It is the
// command form of the pixel: an unknown or malformed id answers 200 with
// recorded=false.
func (h *Handlers) RecordOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IPAddress string `json:"ip_address"`
		UserAgent string `json:"user_agent"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = r.RemoteAddr
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	agg, err := h.tracking.RecordOpen(r.Context(), chi.URLParam(r, "tracking_id"), req.IPAddress, req.UserAgent)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	if agg == nil {
		httputil.OK(w, map[string]any{"recorded": false})
		return
	}
	httputil.OK(w, map[string]any{"recorded": true, "open": agg})
}

// ListFollowUps handles GET /api/contacts/{id}/followups.
func (h *Handlers) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.followups.ListByContact(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, list)
}

// ScheduleFollowUp handles POST /api/contacts/{id}/followups
// {"after_bundle_id": n, "cadence": [5, 10]}. An empty cadence uses the
// configured one.
func (h *Handlers) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		AfterBundleID int64 `json:"after_bundle_id"`
		Cadence       []int `json:"cadence"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	f, err := h.followups.ScheduleNext(r.Context(), id, req.AfterBundleID, req.Cadence)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, f)
}

// DueFollowUps handles GET /api/followups/due?as_of=YYYY-MM-DD&limit=n.
func (h *Handlers) DueFollowUps(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			httputil.BadRequest(w, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = d
	}
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 1000)
	}

	out := make([]domain.FollowUp, 0)
	for f, err := range h.followups.Due(r.Context(), asOf) {
		if err != nil {
			httputil.FromError(w, err)
			return
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	httputil.OK(w, out)
}

// RunSweep handles POST /api/followups/sweep.
func (h *Handlers) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "follow-up sweeper not configured")
		return
	}
	report, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, report)
}
