package memory

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/bundle"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// TrackingRepo implements tracking.Repository.
type TrackingRepo struct{ s *Store }

var _ tracking.Repository = (*TrackingRepo)(nil)

func (r *TrackingRepo) InsertToken(_ context.Context, t *domain.TrackingToken) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[t.BundleID]; !ok {
		return bundle.ErrNotFound
	}
	if _, ok := s.tokenOf[t.BundleID]; ok {
		return fmt.Errorf("%w: bundle %d", tracking.ErrAlreadyIssued, t.BundleID)
	}
	if _, ok := s.tokens[t.TrackingID]; ok {
		return fmt.Errorf("%w: tracking id %s", tracking.ErrAlreadyIssued, t.TrackingID)
	}
	s.tokens[t.TrackingID] = *t
	s.tokenOf[t.BundleID] = t.TrackingID
	return nil
}

func (r *TrackingRepo) TokenByBundle(_ context.Context, bundleID int64) (*domain.TrackingToken, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokenOf[bundleID]
	if !ok {
		return nil, tracking.ErrTokenNotFound
	}
	t := s.tokens[id]
	return &t, nil
}

func (r *TrackingRepo) Token(_ context.Context, trackingID string) (*domain.TrackingToken, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[trackingID]
	if !ok {
		return nil, tracking.ErrTokenNotFound
	}
	return &t, nil
}

func (r *TrackingRepo) RecordOpen(_ context.Context, ev *domain.OpenEvent) (domain.OpenAggregate, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[ev.BundleID]
	if !ok {
		return domain.OpenAggregate{}, bundle.ErrNotFound
	}
	ev.ID = s.nextID("open_events")
	s.opens = append(s.opens, *ev)

	count := 0
	var first *domain.OpenEvent
	for i := range s.opens {
		o := &s.opens[i]
		if o.BundleID != ev.BundleID {
			continue
		}
		count++
		if first == nil || o.OpenedAt.Before(first.OpenedAt) {
			first = o
		}
	}
	firstAt := first.OpenedAt
	b.OpenCount = count
	b.FirstOpenedAt = &firstAt
	b.UpdatedAt = s.stamp()

	return domain.OpenAggregate{
		BundleID:      b.ID,
		OpenCount:     count,
		FirstOpenedAt: timePtr(&firstAt),
		FirstOpen:     count == 1,
	}, nil
}

func (r *TrackingRepo) Opens(_ context.Context, bundleID int64) ([]domain.OpenEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OpenEvent
	for _, o := range s.opens {
		if o.BundleID == bundleID {
			out = append(out, o)
		}
	}
	return out, nil
}
