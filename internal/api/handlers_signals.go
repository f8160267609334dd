package api

import (
	"context"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

// IngestSignal handles POST /api/signals. A new signal answers 201; a URL
// already on file answers 200 with duplicate=true.
func (h *Handlers) IngestSignal(w http.ResponseWriter, r *http.Request) {
	var in signal.IngestInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	res, err := h.signals.Ingest(r.Context(), in)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	if res.Duplicate {
		httputil.OK(w, res)
		return
	}
	httputil.Created(w, res)
}

// ListSignals handles GET /api/signals?status=&signal_type=.
func (h *Handlers) ListSignals(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	list, err := h.signals.List(r.Context(), signal.ListFilter{
		Status:     domain.SignalStatus(q.Get("status")),
		SignalType: q.Get("signal_type"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, len(list)))
}

// GetSignal handles GET /api/signals/{id}.
func (h *Handlers) GetSignal(w http.ResponseWriter, r *http.Request) {
	h.signalOp(w, r, h.signals.Get)
}

// ReviewSignal handles POST /api/signals/{id}/review.
func (h *Handlers) ReviewSignal(w http.ResponseWriter, r *http.Request) {
	h.signalOp(w, r, h.signals.Review)
}

// DismissSignal handles POST /api/signals/{id}/dismiss.
func (h *Handlers) DismissSignal(w http.ResponseWriter, r *http.Request) {
	h.signalOp(w, r, h.signals.Dismiss)
}

// PromoteSignal handles POST /api/signals/{id}/promote and returns the
// signal with the contact it now points at.
func (h *Handlers) PromoteSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sig, c, err := h.signals.Promote(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"signal": sig, "contact": c})
}

func (h *Handlers) signalOp(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*domain.NewsSignal, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sig, err := fn(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, sig)
}
