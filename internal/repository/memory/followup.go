package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/followup"
)

// FollowUpRepo implements followup.Repository.
type FollowUpRepo struct{ s *Store }

var _ followup.Repository = (*FollowUpRepo)(nil)

func copyFollowUp(f *domain.FollowUp) domain.FollowUp {
	cp := *f
	cp.BundleID = int64Ptr(f.BundleID)
	cp.SentAt = timePtr(f.SentAt)
	return cp
}

func (r *FollowUpRepo) Create(_ context.Context, f *domain.FollowUp) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[f.ContactID]; !ok {
		return 0, fmt.Errorf("follow-up for contact %d: %w", f.ContactID, domain.ErrNotFound)
	}
	for _, existing := range s.followups {
		if existing.ContactID == f.ContactID && existing.SequenceNumber == f.SequenceNumber {
			return 0, fmt.Errorf("%w: contact %d sequence %d", followup.ErrSequenceTaken, f.ContactID, f.SequenceNumber)
		}
	}
	cp := copyFollowUp(f)
	cp.ID = s.nextID("follow_ups")
	cp.CreatedAt = s.stamp()
	s.followups[cp.ID] = &cp
	f.ID, f.CreatedAt = cp.ID, cp.CreatedAt
	return cp.ID, nil
}

func (r *FollowUpRepo) Get(_ context.Context, id int64) (*domain.FollowUp, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followups[id]
	if !ok {
		return nil, followup.ErrNotFound
	}
	cp := copyFollowUp(f)
	return &cp, nil
}

func (r *FollowUpRepo) MaxSequence(_ context.Context, contactID int64) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	maxSeq := 0
	for _, f := range s.followups {
		if f.ContactID == contactID && f.SequenceNumber > maxSeq {
			maxSeq = f.SequenceNumber
		}
	}
	return maxSeq, nil
}

func (r *FollowUpRepo) ListByContact(_ context.Context, contactID int64) ([]domain.FollowUp, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FollowUp
	for _, f := range s.followups {
		if f.ContactID == contactID {
			out = append(out, copyFollowUp(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (r *FollowUpRepo) DuePage(_ context.Context, asOf time.Time, after followup.Cursor, limit int) ([]domain.FollowUp, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FollowUp
	for _, f := range s.followups {
		if f.Status != domain.FollowUpPending || f.ScheduledDate.After(asOf) || !after.Before(*f) {
			continue
		}
		out = append(out, copyFollowUp(f))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if a.ContactID != b.ContactID {
			return a.ContactID < b.ContactID
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FollowUpRepo) Transition(_ context.Context, id int64, from, to domain.FollowUpStatus, sentAt *time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followups[id]
	if !ok {
		return false, followup.ErrNotFound
	}
	if f.Status != from {
		return false, nil
	}
	f.Status = to
	if sentAt != nil {
		f.SentAt = timePtr(sentAt)
	}
	return true, nil
}

func (r *FollowUpRepo) CancelPending(_ context.Context, contactID int64) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.followups {
		if f.ContactID == contactID && f.Status == domain.FollowUpPending {
			f.Status = domain.FollowUpCancelled
			n++
		}
	}
	return n, nil
}
