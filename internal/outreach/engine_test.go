package outreach_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/outreach"
	"github.com/ignite/outreach-engine/internal/outreach/outreachtest"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/service/followup"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

const day = 24 * time.Hour

func TestDraft_ConcurrentDraftsYieldOneBundle(t *testing.T) {
	f := outreachtest.New(t)
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.Bundles.Draft(context.Background(), c.ID, "2025-03-03")
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	list, err := f.Bundles.ListByBatch(context.Background(), "2025-03-03")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDraft_RendersTierTemplate(t *testing.T) {
	f := outreachtest.New(t)
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")

	b, err := f.Bundles.Draft(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello Acme Fabrication", b.Subject)
	assert.Contains(t, b.Body, "Hi Dana,")
	assert.Equal(t, "2025-03-03", b.BatchDate)
	assert.Equal(t, "dana@acme.example", b.Recipient)

	got, err := f.Contacts.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachQueued, got.OutreachStatus)
}

func TestDraftBatch_SelectsEligibleByPriority(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	score := func(c *domain.Contact, v int) *domain.Contact {
		t.Helper()
		c, err := f.Contacts.UpdateScore(ctx, c.ID, contact.ScoreChange{Absolute: &v})
		require.NoError(t, err)
		return c
	}
	low := score(f.Contact(t, "Acme Fabrication", "dana@acme.example"), 30)
	high := score(f.Contact(t, "Northwind Traders", "lee@northwind.example"), 80)
	score(f.Contact(t, "Initech Office", ""), 99)
	gone := score(f.Contact(t, "Globex Storage", "sam@globex.example"), 99)
	_, err := f.Contacts.Unsubscribe(ctx, gone.ID)
	require.NoError(t, err)
	busy := score(f.Contact(t, "Umbrella Supply", "kim@umbrella.example"), 99)
	_, err = f.Bundles.Draft(ctx, busy.ID, "")
	require.NoError(t, err)
	tied := score(f.Contact(t, "Hooli Logistics", "pat@hooli.example"), 80)

	r, err := f.Bundles.DraftBatch(ctx, "2025-03-04", 2)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04", r.BatchDate)
	require.Len(t, r.Drafted, 2)
	assert.Equal(t, high.ID, r.Drafted[0].ContactID)
	assert.Equal(t, tied.ID, r.Drafted[1].ContactID, "equal scores draft in id order")
	assert.Equal(t, domain.BundleQueued, r.Drafted[0].Status)
	assert.Zero(t, r.Approved)

	r, err = f.Bundles.DraftBatch(ctx, "2025-03-04", 0)
	require.NoError(t, err)
	require.Len(t, r.Drafted, 1)
	assert.Equal(t, low.ID, r.Drafted[0].ContactID)

	r, err = f.Bundles.DraftBatch(ctx, "2025-03-04", 0)
	require.NoError(t, err)
	assert.Empty(t, r.Drafted)

	_, err = f.Bundles.DraftBatch(ctx, "04/03/2025", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.Bundles.DraftBatch(ctx, "", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDraftBatch_AutoApprove(t *testing.T) {
	f := outreachtest.New(t, func(o *outreach.Options) { o.AutoApprove = true })
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")

	r, err := f.Bundles.DraftBatch(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", r.BatchDate)
	require.Len(t, r.Drafted, 1)
	assert.Equal(t, 1, r.Approved)
	assert.Equal(t, domain.BundleApproved, r.Drafted[0].Status)

	approved, err := f.Bundles.ListApproved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, c.ID, approved[0].ContactID)
}

func TestApprove_RequiresQueued(t *testing.T) {
	f := outreachtest.New(t)
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)

	_, err := f.Bundles.Approve(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDeliver_SchedulesFirstFollowUpAndInjectsPixel(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)

	require.NotNil(t, b.SentAt)
	assert.True(t, b.EmailSent)

	sent := f.Adapter.Sent()
	require.Len(t, sent, 1)
	tok, err := f.Store.Tracking().TokenByBundle(ctx, b.ID)
	require.NoError(t, err)
	assert.Contains(t, sent[0].HTMLBody, "https://t.example.com/track/"+tok.TrackingID+".gif")

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 1)
	assert.Equal(t, 1, fus[0].SequenceNumber)
	assert.Equal(t, domain.Date(outreachtest.Start).AddDate(0, 0, 5), fus[0].ScheduledDate)

	got, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachSent, got.OutreachStatus)
}

func TestDeliver_PermanentFailureBouncesBundle(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.Adapter.Push(domain.SendResult{SMTPCode: 550, SMTPText: "mailbox unavailable"}, nil)

	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)
	b, err = f.Bundles.Deliver(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleBounced, b.Status)

	got, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BounceCount)
	assert.Equal(t, domain.EmailUndeliverable, got.EmailStatus)
	assert.True(t, got.HasBounced("dana@acme.example"))
	assert.Equal(t, domain.OutreachPending, got.OutreachStatus, "bounced below threshold returns to the pool")

	log, err := f.Bundles.SendLog(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].Permanent)
	assert.Equal(t, 550, log[0].SMTPCode)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, fus)
}

func TestDeliver_RetriesTransientFailures(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.Adapter.Push(domain.SendResult{}, errors.New("connection reset"))
	f.Adapter.Push(domain.SendResult{SMTPCode: 421, SMTPText: "try again later"}, nil)

	b := f.SentBundle(t, c.ID)

	log, err := f.Bundles.SendLog(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.False(t, log[0].Success)
	assert.False(t, log[0].Permanent)
	assert.Equal(t, 421, log[1].SMTPCode)
	assert.True(t, log[2].Success)
}

func TestDeliver_ExhaustedRetriesEscalateToBounce(t *testing.T) {
	f := outreachtest.New(t, func(o *outreach.Options) { o.SendRetries = 1 })
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.Adapter.Push(domain.SendResult{}, errors.New("timeout"))
	f.Adapter.Push(domain.SendResult{}, errors.New("timeout"))

	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)
	b, err = f.Bundles.Deliver(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleBounced, b.Status)

	log, err := f.Bundles.SendLog(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.True(t, log[2].Permanent)
	assert.True(t, strings.HasPrefix(log[2].Error, "retries exhausted"))
}

func TestMarkSent_TransientLeavesBundleApproved(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.Bundles.MarkSent(ctx, b.ID, domain.SendResult{SMTPCode: 451, SMTPText: "greylisted"})
	assert.ErrorIs(t, err, domain.ErrTransientSend)
	assert.True(t, domain.IsRetryable(err))

	got, err := f.Bundles.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleApproved, got.Status)

	got, err = f.Bundles.MarkSent(ctx, b.ID, domain.SendResult{Success: true, SMTPCode: 250})
	require.NoError(t, err)
	assert.Equal(t, domain.BundleSent, got.Status)
}

func TestMarkSent_PermanentFailureCountsContactBounce(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)

	got, err := f.Bundles.MarkSent(ctx, b.ID, domain.SendResult{SMTPCode: 550, SMTPText: "no such user"})
	require.NoError(t, err)
	assert.Equal(t, domain.BundleBounced, got.Status)

	ct, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ct.BounceCount)
	assert.Equal(t, domain.OutreachPending, ct.OutreachStatus)

	_, err = f.Bundles.Draft(ctx, c.ID, "")
	assert.NoError(t, err, "contact is draftable again")
}

func TestMarkSent_RequiresRecipient(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "")
	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.Bundles.MarkSent(ctx, b.ID, domain.SendResult{SMTPCode: 550})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	got, err := f.Bundles.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleApproved, got.Status)
	assert.Empty(t, got.Recipient)

	ct, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, ct.BounceCount)
	assert.Equal(t, domain.OutreachQueued, ct.OutreachStatus)

	log, err := f.Bundles.SendLog(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestBounceThreshold_MakesContactIneligible(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)

	for _, email := range []string{"dana@acme.example", "info@acme.example", "sales@acme.example"} {
		_, err := f.Contacts.RecordBounce(ctx, c.ID, email)
		require.NoError(t, err)
	}

	got, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachBounced, got.OutreachStatus)
	assert.Equal(t, domain.EmailInvalid, got.EmailStatus)

	_, err = f.Bundles.Draft(ctx, c.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 1)
	assert.Equal(t, domain.FollowUpCancelled, fus[0].Status)
}

func TestUnsubscribeRacingDraft_LeavesNoUnresolvedBundle(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		c := f.Contact(t, "Racer "+strings.Repeat("x", i+1), "ops@racer.example")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.Bundles.Draft(ctx, c.ID, "")
		}()
		go func() {
			defer wg.Done()
			_, err := f.Contacts.Unsubscribe(ctx, c.ID)
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := f.Contacts.Get(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OutreachUnsubscribed, got.OutreachStatus)
		_, err = f.Store.Bundles().Unresolved(ctx, c.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound, "contact %d kept an unresolved bundle", c.ID)
	}
}

func TestUnsubscribe_CancelsUnresolvedBundle(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)

	_, err = f.Contacts.Unsubscribe(ctx, c.ID)
	require.NoError(t, err)

	got, err := f.Bundles.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleCancelled, got.Status)

	_, err = f.Bundles.Approve(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRecordReply_ClosesConversation(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)

	got, err := f.Bundles.RecordReply(ctx, b.ID, "Interested", "Sounds good, call me")
	require.NoError(t, err)
	assert.Equal(t, domain.BundleReplied, got.Status)
	assert.Equal(t, domain.ReplyInterested, got.ReplyType)
	require.NotNil(t, got.RepliedAt)

	ct, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutreachReplied, ct.OutreachStatus)
	assert.Equal(t, domain.AccountWarm, ct.AccountStatus)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 1)
	assert.Equal(t, domain.FollowUpCancelled, fus[0].Status)

	again, err := f.Bundles.RecordReply(ctx, b.ID, "interested", "Sounds good, call me")
	require.NoError(t, err)
	assert.Equal(t, got.RepliedAt.UTC(), again.RepliedAt.UTC())
}

func TestRecordBounce_AsyncNotification(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)

	got, err := f.Bundles.RecordBounce(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleBounced, got.Status)

	again, err := f.Bundles.RecordBounce(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleBounced, again.Status)

	ct, err := f.Contacts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ct.BounceCount)
	assert.Equal(t, domain.OutreachPending, ct.OutreachStatus)

	log, err := f.Bundles.SendLog(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, log, 1, "a bounce notification is not a send attempt")
	assert.True(t, log[0].Success)

	bounces, err := f.Contacts.Bounces(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, bounces, 1)
	assert.Equal(t, "dana@acme.example", bounces[0].Email)
}

func TestScheduleNext_ContiguousUntilCadenceExhausted(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)

	for i := 0; i < 4; i++ {
		_, err := f.FollowUps.ScheduleNext(ctx, c.ID, b.ID, nil)
		require.NoError(t, err)
	}
	_, err := f.FollowUps.ScheduleNext(ctx, c.ID, b.ID, nil)
	assert.ErrorIs(t, err, domain.ErrCadenceExhausted)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 5)
	sentDay := domain.Date(*b.SentAt)
	for i, fu := range fus {
		assert.Equal(t, i+1, fu.SequenceNumber)
		assert.Equal(t, sentDay.AddDate(0, 0, []int{5, 10, 17, 25, 35}[i]), fu.ScheduledDate)
	}
}

func TestScheduleNext_RequiresSentBundle(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b, err := f.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)

	_, err = f.FollowUps.ScheduleNext(ctx, c.ID, b.ID, []int{3})
	assert.ErrorIs(t, err, followup.ErrNotSent)
}

func TestMarkDispatched(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 1)
	id := fus[0].ID

	_, err = f.FollowUps.MarkDispatched(ctx, id, outreachtest.Start.Add(2*day))
	assert.ErrorIs(t, err, followup.ErrNotDue)

	got, err := f.FollowUps.MarkDispatched(ctx, id, outreachtest.Start.Add(5*day))
	require.NoError(t, err)
	assert.Equal(t, domain.FollowUpSent, got.Status)

	_, err = f.FollowUps.MarkDispatched(ctx, id, outreachtest.Start.Add(6*day))
	assert.ErrorIs(t, err, followup.ErrInvalidTransition)
}

func TestMarkDispatched_CancelledIsNeverOverwritten(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)

	n, err := f.FollowUps.CancelPending(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.FollowUps.MarkDispatched(ctx, fus[0].ID, outreachtest.Start.Add(30*day))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDispatch_SendsAndSchedulesNext(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)
	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)

	out, err := f.FollowUps.Dispatch(ctx, fus[0].ID)
	require.NoError(t, err)
	assert.Equal(t, followup.OutcomeNotDue, out)

	f.Clock.Advance(5 * day)
	out, err = f.FollowUps.Dispatch(ctx, fus[0].ID)
	require.NoError(t, err)
	assert.Equal(t, followup.OutcomeSent, out)

	sent := f.Adapter.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Following up, Acme Fabrication", sent[1].Subject)

	fus, err = f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, fus, 2)
	assert.Equal(t, domain.FollowUpSent, fus[0].Status)
	assert.Equal(t, 2, fus[1].SequenceNumber)

	out, err = f.FollowUps.Dispatch(ctx, fus[0].ID)
	require.NoError(t, err)
	assert.Equal(t, followup.OutcomeStale, out)
}

func TestDispatch_CancelsForTerminalContact(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)
	fus, err := f.FollowUps.ListByContact(ctx, c.ID)
	require.NoError(t, err)

	// Bypass the cascade to simulate a contact that went terminal
	// between scheduling and dispatch.
	_, err = f.Store.Contacts().Mutate(ctx, c.ID, func(ct *domain.Contact) error {
		ct.AccountStatus = domain.AccountLost
		return nil
	})
	require.NoError(t, err)

	f.Clock.Advance(5 * day)
	out, err := f.FollowUps.Dispatch(ctx, fus[0].ID)
	require.NoError(t, err)
	assert.Equal(t, followup.OutcomeCancelled, out)
	assert.Len(t, f.Adapter.Sent(), 1)
}

func TestDue_OrderedAndRestartable(t *testing.T) {
	f := outreachtest.New(t, func(o *outreach.Options) { o.FollowUpPageSize = 2 })
	ctx := context.Background()

	var contacts []int64
	for _, name := range []string{"Alpha Ltd", "Bravo Inc", "Charlie Co", "Delta Corp"} {
		c := f.Contact(t, name, "hello@"+strings.ToLower(strings.Fields(name)[0])+".example")
		f.SentBundle(t, c.ID)
		contacts = append(contacts, c.ID)
		f.Clock.Advance(day)
	}

	collect := func(asOf time.Time) []domain.FollowUp {
		var out []domain.FollowUp
		for fu, err := range f.FollowUps.Due(ctx, asOf) {
			require.NoError(t, err)
			out = append(out, fu)
		}
		return out
	}

	// Follow-ups are due on Start+5d .. Start+8d.
	assert.Empty(t, collect(outreachtest.Start.Add(4*day)))
	due := collect(outreachtest.Start.Add(7 * day))
	require.Len(t, due, 3)
	for i, fu := range due {
		assert.Equal(t, contacts[i], fu.ContactID)
	}

	all := collect(outreachtest.Start.Add(30 * day))
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].ScheduledDate.Before(all[i-1].ScheduledDate))
	}
	assert.Equal(t, all, collect(outreachtest.Start.Add(30*day)))
}

func TestRecordOpen_AggregatesOpens(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	b := f.SentBundle(t, c.ID)
	tok, err := f.Store.Tracking().TokenByBundle(ctx, b.ID)
	require.NoError(t, err)

	later := outreachtest.Start.Add(3 * time.Hour)
	earlier := outreachtest.Start.Add(time.Hour)

	agg, err := f.Tracking.RecordOpenAt(ctx, tok.TrackingID+".gif", "203.0.113.9", "Mail/1.0", later)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.FirstOpen)

	agg, err = f.Tracking.RecordOpenAt(ctx, tok.TrackingID, "203.0.113.9", "Mail/1.0", earlier)
	require.NoError(t, err)
	assert.False(t, agg.FirstOpen)
	assert.Equal(t, 2, agg.OpenCount)

	got, err := f.Bundles.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OpenCount)
	require.NotNil(t, got.FirstOpenedAt)
	assert.True(t, got.FirstOpenedAt.Equal(earlier))
	assert.Equal(t, domain.BundleSent, got.Status)

	agg, err = f.Tracking.RecordOpen(ctx, "not-a-token", "", "")
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestPromoteSignal_CreatesContactFromRule(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()

	res, err := f.Signals.Ingest(ctx, signal.IngestInput{
		SourceURL:   "https://news.example.com/a?utm_source=x",
		Source:      "local",
		Headline:    "Northwind Traders opens new plant",
		CompanyName: "Northwind Traders Inc.",
		City:        "Calgary",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	dup, err := f.Signals.Ingest(ctx, signal.IngestInput{SourceURL: "https://NEWS.example.com/a", Headline: "same story"})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, res.Signal.ID, dup.Signal.ID)

	sig, c, err := f.Signals.Promote(ctx, res.Signal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalPromoted, sig.Status)
	require.NotNil(t, sig.ContactID)
	assert.Equal(t, c.ID, *sig.ContactID)
	assert.Equal(t, domain.TierC, c.Tier)
	assert.Equal(t, "news:local", c.Source)

	_, _, err = f.Signals.Promote(ctx, res.Signal.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyPromoted)
}

func TestStatsRecompute_Idempotent(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()
	c := f.Contact(t, "Acme Fabrication", "dana@acme.example")
	f.SentBundle(t, c.ID)

	first, err := f.Stats.Recompute(ctx, "2025-03-03")
	require.NoError(t, err)
	second, err := f.Stats.Recompute(ctx, "2025-03-03")
	require.NoError(t, err)

	a, b := *first, *second
	a.ComputedAt, b.ComputedAt = time.Time{}, time.Time{}
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a.ContactsCreated)
	assert.Equal(t, 1, a.EmailsFound)
	assert.Equal(t, 1, a.BundlesDrafted)
	assert.Equal(t, 1, a.BundlesApproved)
	assert.Equal(t, 1, a.EmailsSent)

	stored, err := f.Stats.Get(ctx, "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, second.EmailsSent, stored.EmailsSent)
}

func TestStatsRecompute_CountsBouncesFromBounceEvents(t *testing.T) {
	f := outreachtest.New(t)
	ctx := context.Background()

	async := f.Contact(t, "Async Bounce Ltd", "a@async.example")
	b := f.SentBundle(t, async.ID)
	_, err := f.Bundles.RecordBounce(ctx, b.ID)
	require.NoError(t, err)

	direct := f.Contact(t, "Direct Bounce Ltd", "d@direct.example")
	_, err = f.Contacts.RecordBounce(ctx, direct.ID, "d@direct.example")
	require.NoError(t, err)

	rejected := f.Contact(t, "Rejected Ltd", "r@rejected.example")
	f.Adapter.Push(domain.SendResult{SMTPCode: 550}, nil)
	rb, err := f.Bundles.Draft(ctx, rejected.ID, "")
	require.NoError(t, err)
	_, err = f.Bundles.Approve(ctx, rb.ID)
	require.NoError(t, err)
	_, err = f.Bundles.Deliver(ctx, rb.ID)
	require.NoError(t, err)

	st, err := f.Stats.Recompute(ctx, "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Bounces)
	assert.Equal(t, 1, st.SendFailures)
	assert.Equal(t, 1, st.EmailsSent)
}
