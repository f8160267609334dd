package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/contact"
)

// ContactRepo implements contact.Repository.
type ContactRepo struct{ s *Store }

var _ contact.Repository = (*ContactRepo)(nil)

// identity is company plus domain; city only counts while the domain is
// unknown.
func identity(company, city, dom string) string {
	dom = strings.ToLower(strings.TrimSpace(dom))
	if dom != "" {
		city = ""
	}
	return strings.ToLower(strings.TrimSpace(company)) + "|" + dom + "|" +
		strings.ToLower(strings.TrimSpace(city))
}

func (r *ContactRepo) Create(_ context.Context, c *domain.Contact) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identity(c.CompanyName, c.City, c.Domain)
	for _, existing := range s.contacts {
		if identity(existing.CompanyName, existing.City, existing.Domain) == key {
			return 0, fmt.Errorf("%w: id %d", contact.ErrDuplicate, existing.ID)
		}
	}
	cp := c.Clone()
	cp.ID = s.nextID("contacts")
	cp.CreatedAt = s.stamp()
	cp.UpdatedAt = cp.CreatedAt
	s.contacts[cp.ID] = cp
	c.ID, c.CreatedAt, c.UpdatedAt = cp.ID, cp.CreatedAt, cp.UpdatedAt
	return cp.ID, nil
}

func (r *ContactRepo) Get(_ context.Context, id int64) (*domain.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, contact.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *ContactRepo) FindByIdentity(_ context.Context, companyName, city, dom string) (*domain.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identity(companyName, city, dom)
	for _, c := range s.contacts {
		if identity(c.CompanyName, c.City, c.Domain) == key {
			return c.Clone(), nil
		}
	}
	return nil, contact.ErrNotFound
}

func (r *ContactRepo) List(_ context.Context, f contact.ListFilter) ([]domain.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(f.CompanyContains)
	var out []domain.Contact
	for _, c := range s.contacts {
		if needle != "" && !strings.Contains(strings.ToLower(c.CompanyName), needle) {
			continue
		}
		if f.City != "" && !strings.EqualFold(c.City, f.City) {
			continue
		}
		if f.Tier != "" && c.Tier != f.Tier {
			continue
		}
		if f.OutreachStatus != "" && c.OutreachStatus != f.OutreachStatus {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *ContactRepo) Mutate(_ context.Context, id int64, fn func(c *domain.Contact) error) (*domain.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, contact.ErrNotFound
	}
	work := c.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.ID, work.CreatedAt = c.ID, c.CreatedAt
	work.UpdatedAt = s.stamp()
	s.contacts[id] = work
	return work.Clone(), nil
}

func (r *ContactRepo) AppendDiscovery(_ context.Context, e *domain.DiscoveryLogEntry) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[e.ContactID]; !ok {
		return 0, contact.ErrNotFound
	}
	e.ID = s.nextID("discovery_log")
	e.CreatedAt = s.stamp()
	s.discovery = append(s.discovery, *e)
	return e.ID, nil
}

func (r *ContactRepo) DiscoveryLog(_ context.Context, contactID int64) ([]domain.DiscoveryLogEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DiscoveryLogEntry
	for _, e := range s.discovery {
		if e.ContactID == contactID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *ContactRepo) AppendBounce(_ context.Context, e *domain.BounceEvent) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[e.ContactID]; !ok {
		return 0, contact.ErrNotFound
	}
	e.ID = s.nextID("bounce_events")
	e.CreatedAt = s.stamp()
	s.bounces = append(s.bounces, *e)
	return e.ID, nil
}

func (r *ContactRepo) Bounces(_ context.Context, contactID int64) ([]domain.BounceEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BounceEvent
	for _, e := range s.bounces {
		if e.ContactID == contactID {
			out = append(out, e)
		}
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
