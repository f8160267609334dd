package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// RecomputeStats handles POST /api/stats/{date}/recompute.
func (h *Handlers) RecomputeStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Recompute(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, st)
}

// GetStats handles GET /api/stats/{date}.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Get(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, st)
}

// StatsRange handles GET /api/stats?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handlers) StatsRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.stats.Range(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, list)
}
