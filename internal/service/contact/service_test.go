package contact_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/contact"
)

type fixedTiers map[string]domain.Tier

func (f fixedTiers) TierFor(industry string) domain.Tier {
	if t, ok := f[industry]; ok {
		return t
	}
	return domain.TierC
}

func newService(t *testing.T) (*contact.Service, *[]int64) {
	t.Helper()
	svc := contact.NewService(memory.NewStore().Contacts(), fixedTiers{"MANUF": domain.TierA}, contact.Options{BounceThreshold: 3})
	var terminal []int64
	svc.SetHooks(contact.Hooks{OnTerminal: func(_ context.Context, id int64) error {
		terminal = append(terminal, id)
		return nil
	}})
	return svc, &terminal
}

func create(t *testing.T, svc *contact.Service, in contact.CreateInput) *domain.Contact {
	t.Helper()
	c, err := svc.Create(context.Background(), in, contact.CreateOptions{})
	require.NoError(t, err)
	return c
}

func TestCreate(t *testing.T) {
	svc, _ := newService(t)
	c := create(t, svc, contact.CreateInput{
		CompanyName:  "  Acme Fabrication ",
		City:         "Calgary",
		Website:      "https://www.Acme.example/about",
		IndustryCode: "manuf",
	})

	assert.Equal(t, "Acme Fabrication", c.CompanyName)
	assert.Equal(t, "acme.example", c.Domain)
	assert.Equal(t, domain.TierA, c.Tier)
	assert.Equal(t, "MANUF", c.IndustryCode)
	assert.Equal(t, 50, c.PriorityScore)
	assert.Equal(t, domain.AccountCold, c.AccountStatus)
	assert.Equal(t, domain.EmailPending, c.EmailStatus)
	assert.Equal(t, domain.OutreachPending, c.OutreachStatus)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService(t)
	bad := 120
	cases := []contact.CreateInput{
		{CompanyName: "   "},
		{CompanyName: "Acme", Tier: "Z"},
		{CompanyName: "Acme", PriorityScore: &bad},
	}
	for _, in := range cases {
		_, err := svc.Create(context.Background(), in, contact.CreateOptions{})
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first := create(t, svc, contact.CreateInput{CompanyName: "Acme", City: "Calgary", Domain: "acme.example"})

	existing, err := svc.Create(ctx, contact.CreateInput{CompanyName: "ACME", City: "calgary", Domain: "Acme.example"}, contact.CreateOptions{})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)

	merged, err := svc.Create(ctx, contact.CreateInput{CompanyName: "Acme", City: "Calgary", Domain: "acme.example", Phone: "403-555-0100"},
		contact.CreateOptions{AllowMerge: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, "403-555-0100", merged.Phone)

	_, err = svc.Create(ctx, contact.CreateInput{CompanyName: "Acme", City: "Edmonton", Domain: "acme.example"}, contact.CreateOptions{})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCreate_DomainlessBranchesKeyOnCity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	windsor := create(t, svc, contact.CreateInput{CompanyName: "Prairie Tool", City: "Windsor"})
	toronto := create(t, svc, contact.CreateInput{CompanyName: "Prairie Tool", City: "Toronto"})
	assert.NotEqual(t, windsor.ID, toronto.ID)

	_, err := svc.Create(ctx, contact.CreateInput{CompanyName: "prairie tool", City: "WINDSOR"}, contact.CreateOptions{})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestRecordDiscoveryAttempt_OnlyUpgrades(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})

	got, err := svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "pattern", Result: domain.DiscoveryFound, Email: "Info@Acme.example"})
	require.NoError(t, err)
	assert.Equal(t, "info@acme.example", got.DiscoveredEmail)
	assert.Equal(t, domain.EmailFound, got.EmailStatus)

	got, err = svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "scrape", Result: domain.DiscoveryFound, Email: "sales@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, "info@acme.example", got.DiscoveredEmail)

	got, err = svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "smtp", Result: domain.DiscoveryVerified, Email: "dana@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, "dana@acme.example", got.DiscoveredEmail)
	assert.Equal(t, domain.EmailVerified, got.EmailStatus)

	_, err = svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "smtp", Result: domain.DiscoveryNotFound})
	require.NoError(t, err)

	log, err := svc.DiscoveryLog(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, log, 4)

	_, err = svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "smtp", Result: domain.DiscoveryFound})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordDiscoveryAttempt_IgnoresBouncedAddress(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})
	_, err := svc.RecordBounce(ctx, c.ID, "old@acme.example")
	require.NoError(t, err)

	got, err := svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "pattern", Result: domain.DiscoveryVerified, Email: "old@acme.example"})
	require.NoError(t, err)
	assert.Empty(t, got.DiscoveredEmail)
	assert.Equal(t, domain.EmailPending, got.EmailStatus)
}

func TestPromoteEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})
	_, err := svc.RecordBounce(ctx, c.ID, "old@acme.example")
	require.NoError(t, err)

	_, err = svc.PromoteEmail(ctx, c.ID, "old@acme.example")
	assert.ErrorIs(t, err, contact.ErrBouncedAddress)

	got, err := svc.PromoteEmail(ctx, c.ID, "new@acme.example")
	require.NoError(t, err)
	assert.Equal(t, "new@acme.example", got.DiscoveredEmail)
	assert.Equal(t, domain.EmailFound, got.EmailStatus)

	log, err := svc.DiscoveryLog(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "manual", log[0].Step)
}

func TestRecordBounce_Threshold(t *testing.T) {
	svc, terminal := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})
	_, err := svc.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "pattern", Result: domain.DiscoveryFound, Email: "a@acme.example"})
	require.NoError(t, err)

	got, err := svc.RecordBounce(ctx, c.ID, "a@acme.example")
	require.NoError(t, err)
	assert.Equal(t, domain.EmailUndeliverable, got.EmailStatus)
	assert.False(t, got.IsTerminal())

	_, err = svc.RecordBounce(ctx, c.ID, "b@acme.example")
	require.NoError(t, err)
	got, err = svc.RecordBounce(ctx, c.ID, "a@acme.example")
	require.NoError(t, err)

	assert.Equal(t, 3, got.BounceCount)
	assert.ElementsMatch(t, []string{"a@acme.example", "b@acme.example"}, got.BouncedEmails)
	assert.Equal(t, domain.OutreachBounced, got.OutreachStatus)
	assert.Equal(t, domain.EmailInvalid, got.EmailStatus)
	assert.Equal(t, []int64{c.ID}, *terminal)

	_, err = svc.RecordBounce(ctx, c.ID, "c@acme.example")
	require.NoError(t, err)
	assert.Len(t, *terminal, 1)
}

func TestUpdateScore_Clamps(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})

	up, down, abs := 80, -500, 42
	got, err := svc.UpdateScore(ctx, c.ID, contact.ScoreChange{Delta: &up})
	require.NoError(t, err)
	assert.Equal(t, 100, got.PriorityScore)

	got, err = svc.UpdateScore(ctx, c.ID, contact.ScoreChange{Delta: &down})
	require.NoError(t, err)
	assert.Equal(t, 0, got.PriorityScore)

	got, err = svc.UpdateScore(ctx, c.ID, contact.ScoreChange{Absolute: &abs})
	require.NoError(t, err)
	assert.Equal(t, 42, got.PriorityScore)

	_, err = svc.UpdateScore(ctx, c.ID, contact.ScoreChange{Delta: &up, Absolute: &abs})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransitionAccount(t *testing.T) {
	svc, terminal := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})

	_, err := svc.TransitionAccount(ctx, c.ID, domain.AccountCustomer)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := svc.TransitionAccount(ctx, c.ID, domain.AccountActive)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountActive, got.AccountStatus)

	got, err = svc.TransitionAccount(ctx, c.ID, domain.AccountLost)
	require.NoError(t, err)
	assert.True(t, got.IsTerminal())
	assert.Equal(t, []int64{c.ID}, *terminal)

	_, err = svc.TransitionAccount(ctx, c.ID, domain.AccountWarm)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTerminalOutreachIsSticky(t *testing.T) {
	svc, terminal := newService(t)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})

	got, err := svc.Unsubscribe(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachUnsubscribed, got.OutreachStatus)

	got, err = svc.MarkOutreach(ctx, c.ID, domain.OutreachSent)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachUnsubscribed, got.OutreachStatus)

	got, err = svc.RecordReply(ctx, c.ID, domain.ReplyInterested)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachUnsubscribed, got.OutreachStatus)
	assert.Len(t, *terminal, 1)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTerminalTransitionsWaitForContactLock(t *testing.T) {
	svc, _ := newService(t)
	locker := distlock.NewLocalLocker()
	svc.WithLocker(locker)
	ctx := context.Background()
	c := create(t, svc, contact.CreateInput{CompanyName: "Acme"})

	release, err := locker.Lock(ctx, contact.LockKey(c.ID))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Unsubscribe(ctx, c.ID)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("unsubscribe ran while the contact lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not finish after release")
	}
	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachUnsubscribed, got.OutreachStatus)

	held, err := svc.Held().RecordBounce(ctx, c.ID, "info@acme.example")
	require.NoError(t, err, "held view never blocks on the lock")
	assert.Equal(t, 1, held.BounceCount)
}
