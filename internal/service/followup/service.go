package followup

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/bundle"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// Contacts is the slice of the contact service follow-ups need.
type Contacts interface {
	Get(ctx context.Context, id int64) (*domain.Contact, error)
	RecordBounce(ctx context.Context, id int64, email string) (*domain.Contact, error)
}

// Bundles resolves the bundle a follow-up continues.
type Bundles interface {
	Get(ctx context.Context, id int64) (*domain.OutreachBundle, error)
}

// SendLog records follow-up send attempts next to the bundle's.
type SendLog interface {
	AppendSendLog(ctx context.Context, e *domain.SendLogEntry) (int64, error)
}

// Deps are the collaborators of the follow-up service.
type Deps struct {
	Repo      Repository
	Contacts  Contacts
	Bundles   Bundles
	SendLog   SendLog
	Templates sending.TemplateResolver
	Adapter   sending.Adapter
	Locker    distlock.Locker
}

// Options tunes cadence and timeouts.
type Options struct {
	Cadence        []int // day offsets from the initial send, one per touch
	PageSize       int
	SendTimeout    time.Duration
	ResolveTimeout time.Duration
	Now            func() time.Time
}

// Service implements follow-up scheduling and dispatch.
type Service struct {
	repo      Repository
	contacts  Contacts
	bundles   Bundles
	sendLog   SendLog
	templates sending.TemplateResolver
	adapter   sending.Adapter
	locker    distlock.Locker
	opts      Options
	log       *logger.Logger
}

// NewService creates a follow-up service.
func NewService(d Deps, opts Options) *Service {
	if len(opts.Cadence) == 0 {
		opts.Cadence = []int{5, 10, 17, 25, 35}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = distlock.NewLocalLocker()
	}
	return &Service{
		repo:      d.Repo,
		contacts:  d.Contacts,
		bundles:   d.Bundles,
		sendLog:   d.SendLog,
		templates: d.Templates,
		adapter:   d.Adapter,
		locker:    d.Locker,
		opts:      opts,
		log:       logger.With("component", "followup"),
	}
}

// FollowUpLockKey is the lock key serializing a contact's scheduling.
func FollowUpLockKey(contactID int64) string {
	return "followup:" + strconv.FormatInt(contactID, 10)
}

// Get returns a single follow-up.
func (s *Service) Get(ctx context.Context, id int64) (*domain.FollowUp, error) {
	return s.repo.Get(ctx, id)
}

// ListByContact returns a contact's follow-ups by sequence number.
func (s *Service) ListByContact(ctx context.Context, contactID int64) ([]domain.FollowUp, error) {
	return s.repo.ListByContact(ctx, contactID)
}

// ScheduleNext schedules the contact's next touch after a sent bundle:
// sequence number max+1, dated bundle.sent_at + cadence[seq-1] days. A nil
// cadence uses the configured one. Returns ErrCadenceExhausted when no
// offset is left.
func (s *Service) ScheduleNext(ctx context.Context, contactID, afterBundleID int64, cadence []int) (*domain.FollowUp, error) {
	if cadence == nil {
		cadence = s.opts.Cadence
	}
	for _, d := range cadence {
		if d < 0 {
			return nil, fmt.Errorf("%w: cadence offsets must not be negative", domain.ErrValidation)
		}
	}

	release, err := s.locker.Lock(ctx, FollowUpLockKey(contactID))
	if err != nil {
		return nil, fmt.Errorf("lock contact %d follow-ups: %w", contactID, err)
	}
	defer release()

	c, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrContactIneligible
	}
	b, err := s.bundles.Get(ctx, afterBundleID)
	if err != nil {
		return nil, err
	}
	if b.ContactID != contactID {
		return nil, fmt.Errorf("%w: bundle %d belongs to contact %d", domain.ErrValidation, b.ID, b.ContactID)
	}
	if b.SentAt == nil {
		return nil, ErrNotSent
	}

	maxSeq, err := s.repo.MaxSequence(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("max sequence: %w", err)
	}
	seq := maxSeq + 1
	if seq > len(cadence) {
		return nil, fmt.Errorf("%w: contact %d has had %d follow-ups", ErrCadenceExhausted, contactID, maxSeq)
	}

	bundleID := b.ID
	f := &domain.FollowUp{
		ContactID:      contactID,
		BundleID:       &bundleID,
		SequenceNumber: seq,
		ScheduledDate:  domain.Date(*b.SentAt).AddDate(0, 0, cadence[seq-1]),
		Status:         domain.FollowUpPending,
	}
	id, err := s.repo.Create(ctx, f)
	if err != nil {
		return nil, err
	}
	f.ID = id
	s.log.Info("follow-up scheduled", "contact_id", contactID, "sequence", seq,
		"scheduled_date", f.ScheduledDate.Format(domain.BatchDateLayout))
	return f, nil
}

// Due lazily yields pending follow-ups with scheduled_date <= asOf in
// (scheduled_date, contact_id, id) order, one page at a time. The sequence
// is finite and can be ranged over again to restart the scan. A storage
// error is yielded once and ends the sequence.
func (s *Service) Due(ctx context.Context, asOf time.Time) iter.Seq2[domain.FollowUp, error] {
	day := domain.Date(asOf)
	return func(yield func(domain.FollowUp, error) bool) {
		var cur Cursor
		for {
			page, err := s.repo.DuePage(ctx, day, cur, s.opts.PageSize)
			if err != nil {
				yield(domain.FollowUp{}, fmt.Errorf("due follow-ups: %w", err))
				return
			}
			for _, f := range page {
				if !yield(f, nil) {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
			last := page[len(page)-1]
			cur = Cursor{ScheduledDate: last.ScheduledDate, ContactID: last.ContactID, ID: last.ID}
		}
	}
}

// MarkDispatched moves a pending follow-up to sent. It fails with
// ErrInvalidTransition when the follow-up is no longer pending (cancelled
// ones are never overwritten) and ErrNotDue before its scheduled date.
func (s *Service) MarkDispatched(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status != domain.FollowUpPending {
		return nil, fmt.Errorf("%w (status %s)", ErrInvalidTransition, f.Status)
	}
	if domain.Date(now).Before(f.ScheduledDate) {
		return nil, ErrNotDue
	}
	at := now.UTC()
	ok, err := s.repo.Transition(ctx, id, domain.FollowUpPending, domain.FollowUpSent, &at)
	if err != nil {
		return nil, fmt.Errorf("mark dispatched: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	f.Status = domain.FollowUpSent
	f.SentAt = &at
	return f, nil
}

// CancelPending cancels all pending follow-ups of a contact. It takes no
// lock so terminal cascades can call it while holding the contact lock.
func (s *Service) CancelPending(ctx context.Context, contactID int64) (int, error) {
	n, err := s.repo.CancelPending(ctx, contactID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending follow-ups: %w", err)
	}
	if n > 0 {
		s.log.Info("follow-ups cancelled", "contact_id", contactID, "count", n)
	}
	return n, nil
}

// Outcome is what Dispatch did with a due follow-up.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeStale     Outcome = "stale"     // no longer pending
	OutcomeNotDue    Outcome = "not_due"   // scheduled in the future
	OutcomeCancelled Outcome = "cancelled" // contact went terminal
	OutcomeSkipped   Outcome = "skipped"   // no deliverable address
	OutcomeBounced   Outcome = "bounced"   // permanent transport failure
)

// Dispatch sends one due follow-up. Status and contact eligibility are
// re-checked under the contact lock. After a successful send the next
// touch is scheduled; an exhausted cadence ends the sequence quietly.
// Transient send failures leave the follow-up pending and return an error
// wrapping domain.ErrTransientSend.
func (s *Service) Dispatch(ctx context.Context, id int64) (Outcome, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	release, err := s.locker.Lock(ctx, bundle.ContactLockKey(f.ContactID))
	if err != nil {
		return "", fmt.Errorf("lock contact %d: %w", f.ContactID, err)
	}
	defer release()

	if f, err = s.repo.Get(ctx, id); err != nil {
		return "", err
	}
	now := s.opts.Now()
	if f.Status != domain.FollowUpPending {
		return OutcomeStale, nil
	}
	if domain.Date(now).Before(f.ScheduledDate) {
		return OutcomeNotDue, nil
	}
	c, err := s.contacts.Get(ctx, f.ContactID)
	if err != nil {
		return "", err
	}
	if c.IsTerminal() {
		if _, err := s.repo.Transition(ctx, f.ID, domain.FollowUpPending, domain.FollowUpCancelled, nil); err != nil {
			return "", err
		}
		return OutcomeCancelled, nil
	}
	if c.EmailStatus.Rank() == 0 || c.DiscoveredEmail == "" || f.BundleID == nil {
		if _, err := s.repo.Transition(ctx, f.ID, domain.FollowUpPending, domain.FollowUpSkipped, nil); err != nil {
			return "", err
		}
		s.log.Warn("follow-up skipped: no deliverable address", "follow_up_id", f.ID, "contact_id", c.ID)
		return OutcomeSkipped, nil
	}

	subject, body, err := sending.RenderFor(ctx, s.templates, s.opts.ResolveTimeout, c, domain.TemplateFollowUp)
	if err != nil {
		return "", err
	}
	msg := domain.OutboundMessage{
		Recipient: c.DiscoveredEmail,
		Subject:   subject,
		TextBody:  body,
		HTMLBody:  sending.HTMLBody(body, ""),
		Tags: map[string]string{
			"bundle_id":    strconv.FormatInt(*f.BundleID, 10),
			"follow_up_id": strconv.FormatInt(f.ID, 10),
		},
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	r, sendErr := s.adapter.Send(sctx, msg)
	cancel()
	if sendErr != nil {
		r = domain.SendResult{Error: sendErr.Error()}
	}
	if !r.Success && domain.PermanentSMTPCode(r.SMTPCode) {
		r.Permanent = true
	}

	entry := domain.NewSendLogEntry(*f.BundleID, msg.Recipient, r)
	fid := f.ID
	entry.FollowUpID = &fid
	if _, err := s.sendLog.AppendSendLog(ctx, &entry); err != nil {
		return "", fmt.Errorf("append send log: %w", err)
	}

	switch {
	case r.Success:
		if _, err := s.MarkDispatched(ctx, f.ID, now); err != nil {
			return "", err
		}
		s.log.Info("follow-up sent", "follow_up_id", f.ID, "contact_id", c.ID, "sequence", f.SequenceNumber)
		if _, err := s.ScheduleNext(ctx, c.ID, *f.BundleID, nil); err != nil && !errors.Is(err, ErrCadenceExhausted) {
			s.log.Error("schedule next follow-up failed", "contact_id", c.ID, "error", err.Error())
		}
		return OutcomeSent, nil

	case r.Permanent:
		if _, err := s.repo.Transition(ctx, f.ID, domain.FollowUpPending, domain.FollowUpSkipped, nil); err != nil {
			return "", err
		}
		if _, err := s.contacts.RecordBounce(ctx, c.ID, msg.Recipient); err != nil {
			return "", err
		}
		return OutcomeBounced, nil

	default:
		return "", fmt.Errorf("%w: follow-up %d: %s", domain.ErrTransientSend, f.ID, r.Error)
	}
}
