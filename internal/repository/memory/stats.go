package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/stats"
)

// StatsRepo implements stats.Repository.
type StatsRepo struct{ s *Store }

var _ stats.Repository = (*StatsRepo)(nil)

// Compute mirrors the SQL projection in repository/postgres/stats.go.
func (r *StatsRepo) Compute(_ context.Context, day time.Time) (*domain.DailyStat, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	start := domain.Date(day)
	end := start.AddDate(0, 0, 1)
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }
	inPtr := func(t *time.Time) bool { return t != nil && in(*t) }

	st := &domain.DailyStat{StatDate: start.Format(domain.BatchDateLayout)}
	for _, c := range s.contacts {
		if in(c.CreatedAt) {
			st.ContactsCreated++
		}
	}
	for _, e := range s.discovery {
		if in(e.CreatedAt) && e.Result.Succeeded() {
			st.EmailsFound++
		}
	}
	for _, b := range s.bundles {
		if in(b.CreatedAt) {
			st.BundlesDrafted++
		}
		if inPtr(b.ApprovedAt) {
			st.BundlesApproved++
		}
		if inPtr(b.RepliedAt) {
			st.Replies++
		}
	}
	for _, e := range s.sendLog {
		if !in(e.CreatedAt) {
			continue
		}
		if e.Success {
			st.EmailsSent++
		} else {
			st.SendFailures++
		}
	}
	for _, e := range s.bounces {
		if in(e.CreatedAt) {
			st.Bounces++
		}
	}
	opened := map[int64]bool{}
	for _, o := range s.opens {
		if in(o.OpenedAt) {
			st.Opens++
			opened[o.BundleID] = true
		}
	}
	st.UniqueOpens = len(opened)
	for _, f := range s.followups {
		if f.Status == domain.FollowUpSent && inPtr(f.SentAt) {
			st.FollowUpsSent++
		}
	}
	for _, n := range s.signals {
		if in(n.CreatedAt) {
			st.SignalsIngested++
		}
		if n.Status == domain.SignalPromoted && in(n.UpdatedAt) {
			st.SignalsPromoted++
		}
	}
	return st, nil
}

func (r *StatsRepo) Upsert(_ context.Context, st *domain.DailyStat) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[st.StatDate] = *st
	return nil
}

func (r *StatsRepo) Get(_ context.Context, statDate string) (*domain.DailyStat, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[statDate]
	if !ok {
		return nil, stats.ErrNotFound
	}
	return &st, nil
}

func (r *StatsRepo) Range(_ context.Context, from, to string) ([]domain.DailyStat, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DailyStat
	for date, st := range s.stats {
		if date >= from && date <= to {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatDate < out[j].StatDate })
	return out, nil
}
