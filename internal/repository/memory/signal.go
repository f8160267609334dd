package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

// SignalRepo implements signal.Repository.
type SignalRepo struct{ s *Store }

var _ signal.Repository = (*SignalRepo)(nil)

func copySignal(n *domain.NewsSignal) domain.NewsSignal {
	cp := *n
	cp.PublishedAt = timePtr(n.PublishedAt)
	cp.ContactID = int64Ptr(n.ContactID)
	return cp
}

func (r *SignalRepo) Create(_ context.Context, n *domain.NewsSignal) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.signals {
		if existing.SourceURL == n.SourceURL {
			return 0, fmt.Errorf("%w: %s", signal.ErrDuplicate, n.SourceURL)
		}
	}
	cp := copySignal(n)
	cp.ID = s.nextID("news_signals")
	cp.CreatedAt = s.stamp()
	cp.UpdatedAt = cp.CreatedAt
	s.signals[cp.ID] = &cp
	n.ID, n.CreatedAt, n.UpdatedAt = cp.ID, cp.CreatedAt, cp.UpdatedAt
	return cp.ID, nil
}

func (r *SignalRepo) Get(_ context.Context, id int64) (*domain.NewsSignal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.signals[id]
	if !ok {
		return nil, signal.ErrNotFound
	}
	cp := copySignal(n)
	return &cp, nil
}

func (r *SignalRepo) GetByURL(_ context.Context, sourceURL string) (*domain.NewsSignal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.signals {
		if n.SourceURL == sourceURL {
			cp := copySignal(n)
			return &cp, nil
		}
	}
	return nil, signal.ErrNotFound
}

func (r *SignalRepo) List(_ context.Context, f signal.ListFilter) ([]domain.NewsSignal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NewsSignal
	for _, n := range s.signals {
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.SignalType != "" && n.SignalType != f.SignalType {
			continue
		}
		out = append(out, copySignal(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *SignalRepo) Transition(_ context.Context, id int64, from []domain.SignalStatus, to domain.SignalStatus, contactID *int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.signals[id]
	if !ok {
		return false, signal.ErrNotFound
	}
	if !slices.Contains(from, n.Status) {
		return false, nil
	}
	n.Status = to
	if contactID != nil {
		n.ContactID = int64Ptr(contactID)
	}
	n.UpdatedAt = s.stamp()
	return true, nil
}
