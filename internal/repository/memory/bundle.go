package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/bundle"
)

// BundleRepo implements bundle.Repository.
type BundleRepo struct{ s *Store }

var _ bundle.Repository = (*BundleRepo)(nil)

func copyBundle(b *domain.OutreachBundle) *domain.OutreachBundle {
	cp := *b
	cp.ApprovedAt = timePtr(b.ApprovedAt)
	cp.SentAt = timePtr(b.SentAt)
	cp.FirstOpenedAt = timePtr(b.FirstOpenedAt)
	cp.RepliedAt = timePtr(b.RepliedAt)
	return &cp
}

func (r *BundleRepo) Create(_ context.Context, b *domain.OutreachBundle) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[b.ContactID]; !ok {
		return 0, fmt.Errorf("bundle for contact %d: %w", b.ContactID, domain.ErrNotFound)
	}
	if b.IsUnresolved() {
		for _, existing := range s.bundles {
			if existing.ContactID == b.ContactID && existing.IsUnresolved() {
				return 0, fmt.Errorf("%w (bundle %d)", bundle.ErrUnresolvedExists, existing.ID)
			}
		}
	}
	cp := copyBundle(b)
	cp.ID = s.nextID("outreach_bundles")
	cp.CreatedAt = s.stamp()
	cp.UpdatedAt = cp.CreatedAt
	s.bundles[cp.ID] = cp
	b.ID, b.CreatedAt, b.UpdatedAt = cp.ID, cp.CreatedAt, cp.UpdatedAt
	return cp.ID, nil
}

func (r *BundleRepo) Get(_ context.Context, id int64) (*domain.OutreachBundle, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	if !ok {
		return nil, bundle.ErrNotFound
	}
	return copyBundle(b), nil
}

func (r *BundleRepo) Unresolved(_ context.Context, contactID int64) (*domain.OutreachBundle, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.ContactID == contactID && b.IsUnresolved() {
			return copyBundle(b), nil
		}
	}
	return nil, bundle.ErrNotFound
}

func (r *BundleRepo) list(match func(b *domain.OutreachBundle) bool) []domain.OutreachBundle {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutreachBundle
	for _, b := range s.bundles {
		if match(b) {
			out = append(out, *copyBundle(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *BundleRepo) ListByBatch(_ context.Context, batchDate string) ([]domain.OutreachBundle, error) {
	return r.list(func(b *domain.OutreachBundle) bool { return b.BatchDate == batchDate }), nil
}

func (r *BundleRepo) ListByContact(_ context.Context, contactID int64) ([]domain.OutreachBundle, error) {
	return r.list(func(b *domain.OutreachBundle) bool { return b.ContactID == contactID }), nil
}

func (r *BundleRepo) ListApproved(_ context.Context, limit int) ([]domain.OutreachBundle, error) {
	out := r.list(func(b *domain.OutreachBundle) bool { return b.Status == domain.BundleApproved })
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].ApprovedAt, out[j].ApprovedAt
		if ai == nil || aj == nil {
			return ai != nil && aj == nil
		}
		return ai.Before(*aj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *BundleRepo) DraftCandidates(_ context.Context, limit int) ([]int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := map[int64]bool{}
	for _, b := range s.bundles {
		if b.IsUnresolved() {
			busy[b.ContactID] = true
		}
	}
	var picked []*domain.Contact
	for _, c := range s.contacts {
		if busy[c.ID] || c.OutreachStatus != domain.OutreachPending || c.AccountStatus == domain.AccountLost {
			continue
		}
		if c.EmailStatus.Rank() == 0 || c.DiscoveredEmail == "" {
			continue
		}
		picked = append(picked, c)
	}
	sort.Slice(picked, func(i, j int) bool {
		if picked[i].PriorityScore != picked[j].PriorityScore {
			return picked[i].PriorityScore > picked[j].PriorityScore
		}
		return picked[i].ID < picked[j].ID
	})
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}
	ids := make([]int64, len(picked))
	for i, c := range picked {
		ids[i] = c.ID
	}
	return ids, nil
}

func (r *BundleRepo) Save(_ context.Context, b *domain.OutreachBundle, expected domain.BundleStatus) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bundles[b.ID]
	if !ok {
		return bundle.ErrNotFound
	}
	if cur.Status != expected {
		return fmt.Errorf("%w: stored status is %s, expected %s", bundle.ErrInvalidTransition, cur.Status, expected)
	}
	cur.Status = b.Status
	cur.Recipient = b.Recipient
	cur.ApprovedAt = timePtr(b.ApprovedAt)
	cur.SentAt = timePtr(b.SentAt)
	cur.EmailSent = b.EmailSent
	cur.ReplyType = b.ReplyType
	cur.ReplySnippet = b.ReplySnippet
	cur.RepliedAt = timePtr(b.RepliedAt)
	cur.UpdatedAt = s.stamp()
	b.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *BundleRepo) CancelUnresolved(_ context.Context, contactID int64) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bundles {
		if b.ContactID == contactID && b.IsUnresolved() {
			b.Status = domain.BundleCancelled
			b.UpdatedAt = s.stamp()
			n++
		}
	}
	return n, nil
}

func (r *BundleRepo) AppendSendLog(_ context.Context, e *domain.SendLogEntry) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[e.BundleID]; !ok {
		return 0, bundle.ErrNotFound
	}
	e.ID = s.nextID("send_log")
	e.CreatedAt = s.stamp()
	cp := *e
	cp.FollowUpID = int64Ptr(e.FollowUpID)
	s.sendLog = append(s.sendLog, cp)
	return e.ID, nil
}

func (r *BundleRepo) SendLog(_ context.Context, bundleID int64) ([]domain.SendLogEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SendLogEntry
	for _, e := range s.sendLog {
		if e.BundleID == bundleID {
			e.FollowUpID = int64Ptr(e.FollowUpID)
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *BundleRepo) CountSends(_ context.Context, since time.Time) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sendLog {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
