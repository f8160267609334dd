package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service issues tokens and records opens.
type Service struct {
	repo   Repository
	locker distlock.Locker
	now    func() time.Time
	log    *logger.Logger
}

// NewService creates a tracking service. A nil locker serializes opens
// in-process only.
func NewService(repo Repository, locker distlock.Locker) *Service {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Service{repo: repo, locker: locker, now: time.Now, log: logger.With("component", "tracking")}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueToken creates the bundle's one and only tracking token. A second
// call fails with ErrAlreadyIssued.
func (s *Service) IssueToken(ctx context.Context, bundleID int64) (*domain.TrackingToken, error) {
	t := &domain.TrackingToken{
		TrackingID: uuid.NewString(),
		BundleID:   bundleID,
		IssuedAt:   s.now().UTC(),
	}
	if err := s.repo.InsertToken(ctx, t); err != nil {
		return nil, err
	}
	s.log.Debug("tracking token issued", "bundle_id", bundleID, "tracking_id", t.TrackingID)
	return t, nil
}

// Ensure returns the bundle's token, issuing it on first use. Delivery
// retries reuse the same token.
func (s *Service) Ensure(ctx context.Context, bundleID int64) (*domain.TrackingToken, error) {
	t, err := s.repo.TokenByBundle(ctx, bundleID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	t, err = s.IssueToken(ctx, bundleID)
	if errors.Is(err, domain.ErrAlreadyIssued) {
		return s.repo.TokenByBundle(ctx, bundleID)
	}
	return t, err
}

// Lookup resolves a tracking id.
func (s *Service) Lookup(ctx context.Context, trackingID string) (*domain.TrackingToken, error) {
	return s.repo.Token(ctx, trackingID)
}

// RecordOpen aggregates one pixel hit. Unknown tokens are logged and
// ignored (nil aggregate, nil error) so the pixel never surfaces an error.
func (s *Service) RecordOpen(ctx context.Context, trackingID, ip, userAgent string) (*domain.OpenAggregate, error) {
	return s.RecordOpenAt(ctx, trackingID, ip, userAgent, s.now())
}

// RecordOpenAt is RecordOpen with an explicit event time, used when
// replaying queued events.
func (s *Service) RecordOpenAt(ctx context.Context, trackingID, ip, userAgent string, at time.Time) (*domain.OpenAggregate, error) {
	trackingID = strings.TrimSuffix(strings.TrimSpace(trackingID), ".gif")
	if _, err := uuid.Parse(trackingID); err != nil {
		s.log.Debug("open for malformed tracking id ignored", "tracking_id", trackingID)
		return nil, nil
	}
	tok, err := s.repo.Token(ctx, trackingID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Info("open for unknown tracking id ignored", "tracking_id", trackingID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.record(ctx, tok, ip, userAgent, at.UTC())
}

func (s *Service) record(ctx context.Context, tok *domain.TrackingToken, ip, ua string, at time.Time) (*domain.OpenAggregate, error) {
	release, err := s.locker.Lock(ctx, OpenLockKey(tok.BundleID))
	if err != nil {
		return nil, fmt.Errorf("lock bundle %d opens: %w", tok.BundleID, err)
	}
	defer release()

	agg, err := s.repo.RecordOpen(ctx, &domain.OpenEvent{
		TrackingID: tok.TrackingID,
		BundleID:   tok.BundleID,
		IP:         ip,
		UserAgent:  ua,
		OpenedAt:   at,
	})
	if err != nil {
		return nil, fmt.Errorf("record open: %w", err)
	}
	if agg.FirstOpen {
		s.log.Info("bundle first opened", "bundle_id", tok.BundleID)
	}
	return &agg, nil
}

// Opens lists a bundle's open events.
func (s *Service) Opens(ctx context.Context, bundleID int64) ([]domain.OpenEvent, error) {
	return s.repo.Opens(ctx, bundleID)
}

// OpenLockKey is the lock key serializing a bundle's open aggregation.
func OpenLockKey(bundleID int64) string {
	return "bundle-open:" + strconv.FormatInt(bundleID, 10)
}
