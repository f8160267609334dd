package api

import (
	"errors"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/contact"
)

type createContactRequest struct {
	contact.CreateInput
	AllowMerge bool `json:"allow_merge"`
}

// CreateContact handles POST /api/contacts. A duplicate identity answers
// 200 with the existing contact and duplicate=true.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.Create(r.Context(), req.CreateInput, contact.CreateOptions{AllowMerge: req.AllowMerge})
	if errors.Is(err, domain.ErrDuplicate) && c != nil {
		httputil.OK(w, map[string]any{"contact": c, "duplicate": true})
		return
	}
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, c)
}

// ListContacts handles GET /api/contacts?company=&city=&tier=&outreach_status=.
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	list, err := h.contacts.List(r.Context(), contact.ListFilter{
		CompanyContains: q.Get("company"),
		City:            q.Get("city"),
		Tier:            domain.Tier(q.Get("tier")),
		OutreachStatus:  domain.OutreachStatus(q.Get("outreach_status")),
		Limit:           p.Limit,
		Offset:          p.Offset,
	})
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, len(list)))
}

// GetContact handles GET /api/contacts/{id}. ?include=discovery adds the
// discovery log.
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contacts.Get(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	if r.URL.Query().Get("include") != "discovery" {
		httputil.OK(w, c)
		return
	}
	entries, err := h.contacts.DiscoveryLog(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contact": c, "discovery_log": entries})
}

// RecordDiscovery handles POST /api/contacts/{id}/discovery.
func (h *Handlers) RecordDiscovery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var a contact.Attempt
	if !httputil.Decode(w, r, &a) {
		return
	}
	c, err := h.contacts.RecordDiscoveryAttempt(r.Context(), id, a)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}

// RecordContactBounce handles POST /api/contacts/{id}/bounces.
func (h *Handlers) RecordContactBounce(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.RecordBounce(r.Context(), id, req.Email)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateScore handles POST /api/contacts/{id}/score with either
// {"delta": n} or {"absolute": n}.
func (h *Handlers) UpdateScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var ch contact.ScoreChange
	if !httputil.Decode(w, r, &ch) {
		return
	}
	c, err := h.contacts.UpdateScore(r.Context(), id, ch)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}

// TransitionAccount handles POST /api/contacts/{id}/account-status.
func (h *Handlers) TransitionAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status domain.AccountStatus `json:"status"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.TransitionAccount(r.Context(), id, req.Status)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}

// Unsubscribe handles POST /api/contacts/{id}/unsubscribe.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contacts.Unsubscribe(r.Context(), id)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}
