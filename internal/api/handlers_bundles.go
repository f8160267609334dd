package api

import (
	"context"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// DraftBundle handles POST /api/bundles {"contact_id": n, "batch_date": "YYYY-MM-DD"}.
func (h *Handlers) DraftBundle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID int64  `json:"contact_id"`
		BatchDate string `json:"batch_date"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ContactID <= 0 {
		httputil.BadRequest(w, "contact_id is required")
		return
	}
	b, err := h.bundles.Draft(r.Context(), req.ContactID, req.BatchDate)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, b)
}

// DraftBatch handles POST /api/bundles/batch {"batch_date": "YYYY-MM-DD", "limit": n}.
// Both fields are optional.
func (h *Handlers) DraftBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchDate string `json:"batch_date"`
		Limit     int    `json:"limit"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	report, err := h.bundles.DraftBatch(r.Context(), req.BatchDate, req.Limit)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ListBundles handles GET /api/bundles?batch_date=YYYY-MM-DD, defaulting
// to today.
func (h *Handlers) ListBundles(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("batch_date")
	if date == "" {
		date = h.now().UTC().Format(domain.BatchDateLayout)
	}
	list, err := h.bundles.ListByBatch(r.Context(), date)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, list)
}

// GetBundle handles GET /api/bundles/{id}.
func (h *Handlers) GetBundle(w http.ResponseWriter, r *http.Request) {
	h.bundleOp(w, r, h.bundles.Get)
}

// BundleSendLog handles GET /api/bundles/{id}/send-log.
func (h *Handlers) BundleSendLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.bundles.SendLog(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, entries)
}

// ApproveBundle handles POST /api/bundles/{id}/approve.
func (h *Handlers) ApproveBundle(w http.ResponseWriter, r *http.Request) {
	h.bundleOp(w, r, h.bundles.Approve)
}

// CancelBundle handles POST /api/bundles/{id}/cancel.
func (h *Handlers) CancelBundle(w http.ResponseWriter, r *http.Request) {
	h.bundleOp(w, r, h.bundles.Cancel)
}

// DeliverBundle handles POST /api/bundles/{id}/deliver: send through the
// configured adapter with retries.
func (h *Handlers) DeliverBundle(w http.ResponseWriter, r *http.Request) {
	h.bundleOp(w, r, h.bundles.Deliver)
}

// RecordBundleBounce handles POST /api/bundles/{id}/bounce for bounces
// reported after a successful send.
func (h *Handlers) RecordBundleBounce(w http.ResponseWriter, r *http.Request) {
	h.bundleOp(w, r, h.bundles.RecordBounce)
}

// RecordSendResult handles POST /api/bundles/{id}/send-result with a
// result produced outside the engine.
func (h *Handlers) RecordSendResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var res domain.SendResult
	if !httputil.Decode(w, r, &res) {
		return
	}
	b, err := h.bundles.MarkSent(r.Context(), id, res)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, b)
}

// IssueTrackingToken handles POST /api/bundles/{id}/tracking-token for
// bundles sent outside the engine. A bundle gets one token; a second call
// answers 409.
func (h *Handlers) IssueTrackingToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tok, err := h.tracking.IssueToken(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	resp := struct {
		*domain.TrackingToken
		PixelURL string `json:"pixel_url,omitempty"`
	}{TrackingToken: tok}
	if h.pixelBase != "" {
		resp.PixelURL = sending.PixelURL(h.pixelBase, tok.TrackingID)
	}
	httputil.Created(w, resp)
}

// RecordReply handles POST /api/bundles/{id}/reply.
func (h *Handlers) RecordReply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		ReplyType string `json:"reply_type"`
		Snippet   string `json:"snippet"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	b, err := h.bundles.RecordReply(r.Context(), id, req.ReplyType, req.Snippet)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, b)
}

type bundleFunc = func(ctx context.Context, id int64) (*domain.OutreachBundle, error)

func (h *Handlers) bundleOp(w http.ResponseWriter, r *http.Request, fn bundleFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, b)
}
