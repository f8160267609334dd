// Package tracking serves the open-tracking pixel. A hit is handed to a
// Sink, which either records it in-process or queues it on SQS for the
// worker's Consumer to apply.
package tracking

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// OpenEvent is one pixel hit as captured at the edge.
type OpenEvent struct {
	TrackingID string    `json:"tracking_id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink accepts pixel hits. Implementations must not block the response
// on failure; errors are logged by the handler and otherwise dropped.
type Sink interface {
	Open(ctx context.Context, evt OpenEvent) error
}

type Handler struct {
	sink Sink
	now  func() time.Time
	log  *logger.Logger
}

func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink, now: time.Now, log: logger.With("component", "tracking-pixel")}
}

// Mount registers the pixel route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/track/{tracking_id}", h.HandleOpen)
}

// Routes is the standalone router used by cmd/tracking.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleOpen always answers with the pixel, whatever happens to the event.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "tracking_id"), ".gif")
	if id != "" {
		evt := OpenEvent{
			TrackingID: id,
			IPAddress:  realIP(r),
			UserAgent:  r.UserAgent(),
			Timestamp:  h.now().UTC(),
		}
		if err := h.sink.Open(r.Context(), evt); err != nil {
			h.log.Warn("open not recorded", "tracking_id", id, "error", err)
		}
	}
	h.servePixel(w)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
