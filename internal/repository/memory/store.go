// Package memory is an in-process arena implementation of every service
// repository. All entities live in one Store guarded by a single mutex and
// refer to each other by ID, which keeps cross-table operations (open
// aggregation, stats projection) atomic. Used by tests and by the server
// when no database is configured.
package memory

import (
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Store owns all entities.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	ids map[string]int64

	contacts  map[int64]*domain.Contact
	discovery []domain.DiscoveryLogEntry
	bounces   []domain.BounceEvent
	bundles   map[int64]*domain.OutreachBundle
	sendLog   []domain.SendLogEntry
	tokens    map[string]domain.TrackingToken // by tracking id
	tokenOf   map[int64]string                // bundle id -> tracking id
	opens     []domain.OpenEvent
	followups map[int64]*domain.FollowUp
	signals   map[int64]*domain.NewsSignal
	stats     map[string]domain.DailyStat
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		ids:       map[string]int64{},
		contacts:  map[int64]*domain.Contact{},
		bundles:   map[int64]*domain.OutreachBundle{},
		tokens:    map[string]domain.TrackingToken{},
		tokenOf:   map[int64]string{},
		followups: map[int64]*domain.FollowUp{},
		signals:   map[int64]*domain.NewsSignal{},
		stats:     map[string]domain.DailyStat{},
	}
}

// WithClock overrides the timestamp source for created_at/updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// nextID returns the next surrogate key of a table. Caller holds mu.
func (s *Store) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

// stamp returns the current time in UTC. Caller holds mu.
func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// Contacts returns the contact repository view.
func (s *Store) Contacts() *ContactRepo { return &ContactRepo{s: s} }

// Bundles returns the bundle repository view.
func (s *Store) Bundles() *BundleRepo { return &BundleRepo{s: s} }

// Tracking returns the tracking repository view.
func (s *Store) Tracking() *TrackingRepo { return &TrackingRepo{s: s} }

// FollowUps returns the follow-up repository view.
func (s *Store) FollowUps() *FollowUpRepo { return &FollowUpRepo{s: s} }

// Signals returns the signal repository view.
func (s *Store) Signals() *SignalRepo { return &SignalRepo{s: s} }

// Stats returns the daily stats repository view.
func (s *Store) Stats() *StatsRepo { return &StatsRepo{s: s} }

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func int64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
