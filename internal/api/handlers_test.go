package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/outreach/outreachtest"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	pixel "github.com/ignite/outreach-engine/internal/tracking"
	"github.com/ignite/outreach-engine/internal/worker"
)

type testServer struct {
	*outreachtest.Fixture
	handler http.Handler
}

func setupTestServer(t *testing.T, withSweeper bool) *testServer {
	t.Helper()
	f := outreachtest.New(t)
	var sw Sweeper
	if withSweeper {
		sw = worker.NewFollowUpSweeper(f.FollowUps, f.Store.Bundles(), nil, worker.SweepConfig{}).WithClock(f.Clock.Now)
	}
	srv := NewServer(config.ServerConfig{}, NewHandlers(f.Engine, sw), nil, pixel.NewHandler(pixel.NewDirectSink(f.Tracking)))
	return &testServer{Fixture: f, handler: srv.Handler()}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, false)
	rr := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

func TestCreateContact(t *testing.T) {
	s := setupTestServer(t, false)
	in := map[string]any{"company_name": "Acme Fabrication", "city": "Calgary", "contact_name": "Dana Smith"}

	rr := s.do(t, http.MethodPost, "/api/contacts", in)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decode[domain.Contact](t, rr)
	assert.NotZero(t, c.ID)
	assert.Equal(t, domain.OutreachPending, c.OutreachStatus)
	assert.Equal(t, domain.AccountCold, c.AccountStatus)

	rr = s.do(t, http.MethodPost, "/api/contacts", in)
	require.Equal(t, http.StatusOK, rr.Code)
	dup := decode[struct {
		Contact   domain.Contact `json:"contact"`
		Duplicate bool           `json:"duplicate"`
	}](t, rr)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, c.ID, dup.Contact.ID)

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/contacts/%d", c.ID), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestContactErrors(t *testing.T) {
	s := setupTestServer(t, false)

	rr := s.do(t, http.MethodGet, "/api/contacts/999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[httputil.ErrorResponse](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/api/contacts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/contacts", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/contacts", map[string]any{"city": "Calgary"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation", decode[httputil.ErrorResponse](t, rr).Code)
}

func TestScoreAndUnsubscribe(t *testing.T) {
	s := setupTestServer(t, false)
	c := s.Contact(t, "Acme Fabrication", "dana@acme.example")

	rr := s.do(t, http.MethodPost, fmt.Sprintf("/api/contacts/%d/score", c.ID), map[string]any{"absolute": 140})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 100, decode[domain.Contact](t, rr).PriorityScore)

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/contacts/%d/unsubscribe", c.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/bundles", map[string]any{"contact_id": c.ID})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "not_eligible", decode[httputil.ErrorResponse](t, rr).Code)
}

func TestBundleDeliveryAndPixel(t *testing.T) {
	s := setupTestServer(t, false)
	c := s.Contact(t, "Acme Fabrication", "dana@acme.example")

	rr := s.do(t, http.MethodPost, "/api/bundles", map[string]any{"contact_id": c.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[domain.OutreachBundle](t, rr)

	rr = s.do(t, http.MethodPost, "/api/bundles", map[string]any{"contact_id": c.ID})
	assert.Equal(t, http.StatusConflict, rr.Code, "one unresolved bundle per contact")

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/approve", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/deliver", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, domain.BundleSent, decode[domain.OutreachBundle](t, rr).Status)

	tok, err := s.Tracking.Ensure(context.Background(), b.ID)
	require.NoError(t, err)

	rr = s.do(t, http.MethodGet, "/track/"+tok.TrackingID+".gif", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/gif", rr.Header().Get("Content-Type"))

	rr = s.do(t, http.MethodGet, "/track/not-a-token.gif", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "pixel is served for unknown ids")

	rr = s.do(t, http.MethodPost, "/api/tracking/"+tok.TrackingID+"/open", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"recorded":true`)

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/bundles/%d", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[domain.OutreachBundle](t, rr).OpenCount)

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/bundles/%d/send-log", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.SendLogEntry](t, rr), 1)
}

func TestDraftBatchEndpoint(t *testing.T) {
	s := setupTestServer(t, false)
	s.Contact(t, "Acme Fabrication", "dana@acme.example")
	s.Contact(t, "Northwind Traders", "")

	rr := s.do(t, http.MethodPost, "/api/bundles/batch", map[string]any{"batch_date": "2025-03-04"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[struct {
		BatchDate string                  `json:"batch_date"`
		Drafted   []domain.OutreachBundle `json:"drafted"`
	}](t, rr)
	assert.Equal(t, "2025-03-04", report.BatchDate)
	assert.Len(t, report.Drafted, 1)

	rr = s.do(t, http.MethodPost, "/api/bundles/batch", map[string]any{"limit": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIssueTrackingTokenForExternalSend(t *testing.T) {
	s := setupTestServer(t, false)
	c := s.Contact(t, "Acme Fabrication", "dana@acme.example")

	rr := s.do(t, http.MethodPost, "/api/bundles", map[string]any{"contact_id": c.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[domain.OutreachBundle](t, rr)
	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/approve", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/tracking-token", b.ID), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tok := decode[struct {
		TrackingID string `json:"tracking_id"`
		BundleID   int64  `json:"bundle_id"`
		PixelURL   string `json:"pixel_url"`
	}](t, rr)
	assert.NotEmpty(t, tok.TrackingID)
	assert.Equal(t, b.ID, tok.BundleID)
	assert.Contains(t, tok.PixelURL, tok.TrackingID)

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/tracking-token", b.ID), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "already_issued", decode[httputil.ErrorResponse](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/api/bundles/9999/tracking-token", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/bundles/%d/send-result", b.ID), domain.SendResult{Success: true, SMTPCode: 250})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, domain.BundleSent, decode[domain.OutreachBundle](t, rr).Status)

	rr = s.do(t, http.MethodGet, "/track/"+tok.TrackingID+".gif", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/bundles/%d", b.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[domain.OutreachBundle](t, rr).OpenCount)
}

func TestFollowUpsDueAndSweep(t *testing.T) {
	s := setupTestServer(t, true)
	c := s.Contact(t, "Acme Fabrication", "dana@acme.example")
	s.SentBundle(t, c.ID)

	rr := s.do(t, http.MethodGet, "/api/followups/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]domain.FollowUp](t, rr))

	asOf := outreachtest.Start.AddDate(0, 0, 5).Format(domain.BatchDateLayout)
	rr = s.do(t, http.MethodGet, "/api/followups/due?as_of="+asOf, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.FollowUp](t, rr), 1)

	rr = s.do(t, http.MethodGet, "/api/followups/due?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.Clock.Advance(5 * 24 * time.Hour)
	rr = s.do(t, http.MethodPost, "/api/followups/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[worker.SweepReport](t, rr)
	assert.Equal(t, 1, report.Outcomes["sent"])

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/contacts/%d/followups", c.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.FollowUp](t, rr), 2)
}

func TestSweepNotConfigured(t *testing.T) {
	s := setupTestServer(t, false)
	rr := s.do(t, http.MethodPost, "/api/followups/sweep", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSignalIngestAndPromote(t *testing.T) {
	s := setupTestServer(t, false)
	in := map[string]any{
		"source_url":   "https://news.example.com/acme-moves?utm_source=rss",
		"source":       "local-business",
		"signal_type":  "relocation",
		"headline":     "Acme Fabrication moves to a new headquarters",
		"company_name": "Acme Fabrication",
		"city":         "Calgary",
	}

	rr := s.do(t, http.MethodPost, "/api/signals", in)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[struct {
		Signal    domain.NewsSignal `json:"signal"`
		Duplicate bool              `json:"duplicate"`
	}](t, rr)
	assert.False(t, res.Duplicate)

	rr = s.do(t, http.MethodPost, "/api/signals", in)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"duplicate":true`)

	path := fmt.Sprintf("/api/signals/%d/promote", res.Signal.ID)
	rr = s.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	promoted := decode[struct {
		Signal  domain.NewsSignal `json:"signal"`
		Contact domain.Contact    `json:"contact"`
	}](t, rr)
	assert.Equal(t, domain.SignalPromoted, promoted.Signal.Status)
	assert.Equal(t, "Acme Fabrication", promoted.Contact.CompanyName)

	rr = s.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "already_promoted", decode[httputil.ErrorResponse](t, rr).Code)

	rr = s.do(t, http.MethodPost, fmt.Sprintf("/api/signals/%d/dismiss", res.Signal.ID), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/signals?status=promoted", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "acme-moves")
}

func TestStats(t *testing.T) {
	s := setupTestServer(t, false)
	c := s.Contact(t, "Acme Fabrication", "dana@acme.example")
	s.SentBundle(t, c.ID)
	date := outreachtest.Start.Format(domain.BatchDateLayout)

	rr := s.do(t, http.MethodGet, "/api/stats/"+date, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/stats/03-03-2025/recompute", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/stats/"+date+"/recompute", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decode[domain.DailyStat](t, rr)
	assert.Equal(t, 1, st.ContactsCreated)
	assert.Equal(t, 1, st.EmailsSent)

	rr = s.do(t, http.MethodGet, "/api/stats?from="+date+"&to="+date, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.DailyStat](t, rr), 1)
}
