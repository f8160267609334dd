// Package outreachtest provides an in-memory engine with a scripted send
// adapter and a controllable clock for tests.
package outreachtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/outreach"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/templates"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type scripted struct {
	result domain.SendResult
	err    error
}

// Adapter records every message and replays scripted results. Once the
// script runs out every send succeeds.
type Adapter struct {
	mu     sync.Mutex
	script []scripted
	sent   []domain.OutboundMessage
}

// Send implements sending.Adapter.
func (a *Adapter) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	if len(a.script) > 0 {
		next := a.script[0]
		a.script = a.script[1:]
		return next.result, next.err
	}
	return domain.SendResult{Success: true, SMTPCode: 250, MessageID: fmt.Sprintf("msg-%d", len(a.sent))}, nil
}

// Push queues the outcome of the next send.
func (a *Adapter) Push(r domain.SendResult, err error) {
	a.mu.Lock()
	a.script = append(a.script, scripted{result: r, err: err})
	a.mu.Unlock()
}

// Sent returns a copy of the messages handed to the adapter.
func (a *Adapter) Sent() []domain.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.OutboundMessage(nil), a.sent...)
}

// Templates is the catalog every fixture starts with.
var Templates = []domain.Template{
	{Tier: domain.TierC, Name: domain.TemplateInitial, Subject: "Hello {{ company_name }}", Body: "Hi {{ first_name | default: \"there\" }},\n\nWe help businesses in {{ city }}."},
	{Tier: domain.TierC, Name: domain.TemplateFollowUp, Subject: "Following up, {{ company_name }}", Body: "Just checking in."},
	{Tier: domain.TierA, Name: domain.TemplateInitial, Subject: "A-list intro for {{ company_name }}", Body: "Hello {{ contact_name }}."},
	{Tier: domain.TierA, Name: domain.TemplateFollowUp, Subject: "A-list follow-up", Body: "Checking in again."},
}

// Fixture is a fully wired in-memory engine.
type Fixture struct {
	*outreach.Engine
	Store   *memory.Store
	Adapter *Adapter
	Clock   *Clock
	Catalog *templates.Catalog
}

// Start is the fixture clock's initial time.
var Start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

// New builds a fixture. opts may adjust the engine options before wiring.
func New(t testing.TB, opts ...func(*outreach.Options)) *Fixture {
	t.Helper()
	clock := NewClock(Start)
	store := memory.NewStore().WithClock(clock.Now)
	catalog := templates.New()
	require.NoError(t, catalog.Replace(Templates))
	adapter := &Adapter{}

	o := outreach.Options{
		BounceThreshold: 3,
		Cadence:         []int{5, 10, 17, 25, 35},
		SendRetries:     2,
		RetryBaseDelay:  time.Millisecond,
		SendTimeout:     time.Second,
		ResolveTimeout:  time.Second,
		TrackingBaseURL: "https://t.example.com",
		Now:             clock.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	eng := outreach.New(outreach.Deps{
		Repos:     outreach.MemoryRepositories(store),
		Templates: catalog,
		Adapter:   adapter,
	}, o)
	return &Fixture{Engine: eng, Store: store, Adapter: adapter, Clock: clock, Catalog: catalog}
}

// Contact creates a contact and, when email is set, records it as found.
func (f *Fixture) Contact(t testing.TB, company, email string) *domain.Contact {
	t.Helper()
	ctx := context.Background()
	c, err := f.Contacts.Create(ctx, contact.CreateInput{CompanyName: company, City: "Calgary", ContactName: "Dana Smith"}, contact.CreateOptions{})
	require.NoError(t, err)
	if email == "" {
		return c
	}
	c, err = f.Contacts.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "pattern", Result: domain.DiscoveryFound, Email: email})
	require.NoError(t, err)
	return c
}

// SentBundle drafts, approves and delivers a bundle for the contact.
func (f *Fixture) SentBundle(t testing.TB, contactID int64) *domain.OutreachBundle {
	t.Helper()
	ctx := context.Background()
	b, err := f.Bundles.Draft(ctx, contactID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)
	b, err = f.Bundles.Deliver(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BundleSent, b.Status)
	return b
}
