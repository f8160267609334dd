package tracking

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Recorder applies an open to storage. *service/tracking.Service
// satisfies it.
type Recorder interface {
	RecordOpenAt(ctx context.Context, trackingID, ip, userAgent string, at time.Time) (*domain.OpenAggregate, error)
}

// DirectSink records opens in the request path.
type DirectSink struct {
	rec Recorder
}

func NewDirectSink(rec Recorder) *DirectSink {
	return &DirectSink{rec: rec}
}

func (s *DirectSink) Open(ctx context.Context, evt OpenEvent) error {
	_, err := s.rec.RecordOpenAt(ctx, evt.TrackingID, evt.IPAddress, evt.UserAgent, evt.Timestamp)
	return err
}
