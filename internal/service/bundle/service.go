package bundle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// Contacts is the slice of the contact service the bundle lifecycle needs.
// Calls are made with the contact lock held, so implementations must not
// take it again (see contact.Held).
type Contacts interface {
	Get(ctx context.Context, id int64) (*domain.Contact, error)
	MarkOutreach(ctx context.Context, id int64, status domain.OutreachStatus) (*domain.Contact, error)
	RecordBounce(ctx context.Context, id int64, email string) (*domain.Contact, error)
	RecordReply(ctx context.Context, id int64, replyType string) (*domain.Contact, error)
}

// Tokens issues or returns the tracking token of a bundle.
type Tokens interface {
	Ensure(ctx context.Context, bundleID int64) (*domain.TrackingToken, error)
}

// Deps are the collaborators of the bundle service.
type Deps struct {
	Repo      Repository
	Contacts  Contacts
	Templates sending.TemplateResolver
	Adapter   sending.Adapter
	Tokens    Tokens // optional; without it no open pixel is injected
	Locker    distlock.Locker
}

// Options tunes timeouts and retries.
type Options struct {
	ResolveTimeout  time.Duration
	SendTimeout     time.Duration
	SendRetries     int
	RetryBaseDelay  time.Duration
	TrackingBaseURL string
	AutoApprove     bool // DraftBatch approves what it drafts
	BatchSize       int  // DraftBatch default limit
	Now             func() time.Time
}

// Hooks are cross-service reactions, wired by the outreach engine. Hook
// failures are logged; the bundle change they follow is already durable.
type Hooks struct {
	// OnSent runs after a bundle is marked sent (schedules follow-up #1).
	OnSent func(ctx context.Context, b *domain.OutreachBundle) error
	// OnClosed runs after a reply or bounce closes the conversation
	// (cancels pending follow-ups).
	OnClosed func(ctx context.Context, contactID int64) error
}

// Service implements the bundle lifecycle.
type Service struct {
	repo      Repository
	contacts  Contacts
	templates sending.TemplateResolver
	adapter   sending.Adapter
	tokens    Tokens
	locker    distlock.Locker
	opts      Options
	hooks     Hooks
	log       *logger.Logger
}

// NewService creates a bundle service.
func NewService(d Deps, opts Options) *Service {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 5 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
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
		templates: d.Templates,
		adapter:   d.Adapter,
		tokens:    d.Tokens,
		locker:    d.Locker,
		opts:      opts,
		log:       logger.With("component", "bundle"),
	}
}

// SetHooks installs the cross-service hooks. Call before serving traffic.
func (s *Service) SetHooks(h Hooks) { s.hooks = h }

// ContactLockKey is the lock key serializing a contact's outreach. The
// contact service takes the same key for terminal transitions.
func ContactLockKey(contactID int64) string {
	return contact.LockKey(contactID)
}

// Get returns a single bundle.
func (s *Service) Get(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	return s.repo.Get(ctx, id)
}

// ListByBatch returns the bundles drafted for a batch date.
func (s *Service) ListByBatch(ctx context.Context, batchDate string) ([]domain.OutreachBundle, error) {
	if _, err := domain.ParseDate(batchDate); err != nil {
		return nil, fmt.Errorf("%w: batch_date must be YYYY-MM-DD", domain.ErrValidation)
	}
	return s.repo.ListByBatch(ctx, batchDate)
}

// SendLog returns the bundle's send attempts.
func (s *Service) SendLog(ctx context.Context, id int64) ([]domain.SendLogEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.SendLog(ctx, id)
}

// CountSends counts send attempts since the given instant. Failed
// attempts count so a failing transport cannot exceed the daily cap.
func (s *Service) CountSends(ctx context.Context, since time.Time) (int, error) {
	return s.repo.CountSends(ctx, since)
}

// Draft creates a queued bundle for the contact from the tier/industry
// initial template. An empty batchDate means today.
func (s *Service) Draft(ctx context.Context, contactID int64, batchDate string) (*domain.OutreachBundle, error) {
	if batchDate == "" {
		batchDate = s.opts.Now().UTC().Format(domain.BatchDateLayout)
	} else if _, err := domain.ParseDate(batchDate); err != nil {
		return nil, fmt.Errorf("%w: batch_date must be YYYY-MM-DD", domain.ErrValidation)
	}

	release, err := s.locker.Lock(ctx, ContactLockKey(contactID))
	if err != nil {
		return nil, fmt.Errorf("lock contact %d: %w", contactID, err)
	}
	defer release()

	c, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrContactIneligible
	}
	if existing, err := s.repo.Unresolved(ctx, contactID); err == nil {
		return nil, fmt.Errorf("%w (bundle %d)", ErrUnresolvedExists, existing.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	subject, body, err := sending.RenderFor(ctx, s.templates, s.opts.ResolveTimeout, c, domain.TemplateInitial)
	if err != nil {
		return nil, err
	}

	b := &domain.OutreachBundle{
		ContactID:    contactID,
		BatchDate:    batchDate,
		Subject:      subject,
		Body:         body,
		TemplateName: domain.TemplateInitial,
		Status:       domain.BundleQueued,
	}
	if c.EmailStatus.Rank() > 0 {
		b.Recipient = c.DiscoveredEmail
	}
	id, err := s.repo.Create(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id

	if _, err := s.contacts.MarkOutreach(ctx, contactID, domain.OutreachQueued); err != nil {
		return nil, err
	}
	s.log.Info("bundle drafted", "bundle_id", id, "contact_id", contactID, "batch_date", batchDate)
	return b, nil
}

// BatchReport summarizes one DraftBatch run.
type BatchReport struct {
	BatchDate string                  `json:"batch_date"`
	Drafted   []domain.OutreachBundle `json:"drafted"`
	Approved  int                     `json:"approved"`
	Skipped   int                     `json:"skipped"` // became ineligible between selection and draft
	Failed    int                     `json:"failed"`
}

// DraftBatch drafts initial bundles for up to limit eligible contacts,
// highest priority first. Eligible means outreach pending, a found or
// verified email and no unresolved bundle. With AutoApprove set each
// drafted bundle is approved right away. A limit of 0 uses BatchSize.
func (s *Service) DraftBatch(ctx context.Context, batchDate string, limit int) (*BatchReport, error) {
	if batchDate == "" {
		batchDate = s.opts.Now().UTC().Format(domain.BatchDateLayout)
	} else if _, err := domain.ParseDate(batchDate); err != nil {
		return nil, fmt.Errorf("%w: batch_date must be YYYY-MM-DD", domain.ErrValidation)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	if limit == 0 {
		limit = s.opts.BatchSize
	}

	ids, err := s.repo.DraftCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{BatchDate: batchDate, Drafted: []domain.OutreachBundle{}}
	for _, contactID := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		b, err := s.Draft(ctx, contactID, batchDate)
		switch {
		case errors.Is(err, domain.ErrNotEligible), errors.Is(err, domain.ErrConflict):
			report.Skipped++
			continue
		case err != nil:
			report.Failed++
			s.log.Warn("batch draft failed", "contact_id", contactID, "error", err)
			continue
		}
		if s.opts.AutoApprove {
			approved, err := s.Approve(ctx, b.ID)
			if err != nil {
				report.Failed++
				s.log.Warn("batch approve failed", "bundle_id", b.ID, "error", err)
			} else {
				b = approved
				report.Approved++
			}
		}
		report.Drafted = append(report.Drafted, *b)
	}

	s.log.Info("batch drafted", "batch_date", batchDate, "candidates", len(ids),
		"drafted", len(report.Drafted), "approved", report.Approved, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// ListApproved returns up to limit approved bundles awaiting delivery,
// oldest approval first.
func (s *Service) ListApproved(ctx context.Context, limit int) ([]domain.OutreachBundle, error) {
	return s.repo.ListApproved(ctx, limit)
}

// Approve moves a queued bundle to approved.
func (s *Service) Approve(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if b.Status != domain.BundleQueued {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, domain.BundleApproved)
		}
		if c.IsTerminal() {
			return nil, ErrContactIneligible
		}
		at := s.opts.Now().UTC()
		b.Status = domain.BundleApproved
		b.ApprovedAt = &at
		if err := s.repo.Save(ctx, b, domain.BundleQueued); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// Cancel supersedes a queued or approved bundle.
func (s *Service) Cancel(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if !b.IsUnresolved() {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, domain.BundleCancelled)
		}
		prev := b.Status
		b.Status = domain.BundleCancelled
		if err := s.repo.Save(ctx, b, prev); err != nil {
			return nil, err
		}
		if c.OutreachStatus == domain.OutreachQueued {
			if _, err := s.contacts.MarkOutreach(ctx, c.ID, domain.OutreachPending); err != nil {
				return nil, err
			}
		}
		return b, nil
	})
}

// CancelUnresolved cancels every queued/approved bundle of a contact. It
// takes no lock: it runs inside terminal cascades that may already hold
// the contact lock.
func (s *Service) CancelUnresolved(ctx context.Context, contactID int64) (int, error) {
	n, err := s.repo.CancelUnresolved(ctx, contactID)
	if err != nil {
		return 0, fmt.Errorf("cancel unresolved bundles: %w", err)
	}
	if n > 0 {
		s.log.Info("bundles cancelled", "contact_id", contactID, "count", n)
	}
	return n, nil
}

// MarkSent records the transport outcome of an approved bundle that was
// sent outside Deliver. Success marks the bundle sent. A transient failure
// returns an error wrapping domain.ErrTransientSend and leaves the bundle
// approved. A permanent failure bounces the bundle, counts a contact
// bounce and returns the bundle with a nil error. A bundle whose contact
// has no address fails with ErrNoRecipient and is left unchanged.
func (s *Service) MarkSent(ctx context.Context, id int64, result domain.SendResult) (*domain.OutreachBundle, error) {
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if b.Status != domain.BundleApproved {
			return nil, fmt.Errorf("%w: bundle is %s, not approved", ErrInvalidTransition, b.Status)
		}
		if b.Recipient == "" {
			if c.DiscoveredEmail == "" {
				return nil, ErrNoRecipient
			}
			b.Recipient = c.DiscoveredEmail
		}
		return s.applyResult(ctx, b, result)
	})
}

// Deliver renders and sends an approved bundle through the adapter.
// Transient failures are retried with exponential backoff; when retries
// run out the failure is escalated to a permanent bounce.
func (s *Service) Deliver(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if b.Status != domain.BundleApproved {
			return nil, fmt.Errorf("%w: bundle is %s, not approved", ErrInvalidTransition, b.Status)
		}
		if c.IsTerminal() {
			return nil, ErrContactIneligible
		}
		if b.Recipient == "" {
			if c.EmailStatus.Rank() == 0 || c.DiscoveredEmail == "" {
				return nil, ErrNoRecipient
			}
			b.Recipient = c.DiscoveredEmail
		}

		msg := domain.OutboundMessage{
			Recipient: b.Recipient,
			Subject:   b.Subject,
			TextBody:  b.Body,
			Tags:      map[string]string{"bundle_id": strconv.FormatInt(b.ID, 10), "template": b.TemplateName},
		}
		pixel := ""
		if s.tokens != nil {
			tok, err := s.tokens.Ensure(ctx, b.ID)
			if err != nil {
				return nil, fmt.Errorf("tracking token: %w", err)
			}
			pixel = sending.PixelURL(s.opts.TrackingBaseURL, tok.TrackingID)
		}
		msg.HTMLBody = sending.HTMLBody(b.Body, pixel)

		var final domain.SendResult
		policy := retry.Policy{MaxRetries: s.opts.SendRetries, BaseDelay: s.opts.RetryBaseDelay, MaxDelay: 30 * time.Second}
		err := retry.Do(ctx, policy, domain.IsRetryable, func(ctx context.Context, attempt int) error {
			r := s.sendOnce(ctx, msg)
			if r.Success || isPermanent(r) {
				final = r
				return nil
			}
			entry := domain.NewSendLogEntry(b.ID, b.Recipient, r)
			if _, err := s.repo.AppendSendLog(ctx, &entry); err != nil {
				return fmt.Errorf("append send log: %w", err)
			}
			s.log.Warn("transient send failure", "bundle_id", b.ID, "attempt", attempt+1, "error", r.Error)
			return fmt.Errorf("%w: %s", domain.ErrTransientSend, r.Error)
		})
		switch {
		case err == nil:
		case domain.IsRetryable(err) && ctx.Err() == nil:
			final = domain.SendResult{Permanent: true, Error: "retries exhausted: " + err.Error()}
		default:
			return nil, err
		}
		return s.applyResult(ctx, b, final)
	})
}

// sendOnce performs a single bounded adapter call. Transport errors and
// timeouts come back as transient results.
func (s *Service) sendOnce(ctx context.Context, msg domain.OutboundMessage) domain.SendResult {
	sctx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()
	r, err := s.adapter.Send(sctx, msg)
	if err != nil {
		return domain.SendResult{Error: err.Error()}
	}
	return r
}

func isPermanent(r domain.SendResult) bool {
	return !r.Success && (r.Permanent || domain.PermanentSMTPCode(r.SMTPCode))
}

// applyResult logs the outcome and moves an approved bundle accordingly.
// Caller holds the contact lock.
func (s *Service) applyResult(ctx context.Context, b *domain.OutreachBundle, r domain.SendResult) (*domain.OutreachBundle, error) {
	if !r.Success && !r.Permanent && domain.PermanentSMTPCode(r.SMTPCode) {
		r.Permanent = true
	}
	entry := domain.NewSendLogEntry(b.ID, b.Recipient, r)
	if _, err := s.repo.AppendSendLog(ctx, &entry); err != nil {
		return nil, fmt.Errorf("append send log: %w", err)
	}

	switch {
	case r.Success:
		at := s.opts.Now().UTC()
		b.Status = domain.BundleSent
		b.EmailSent = true
		b.SentAt = &at
		if err := s.repo.Save(ctx, b, domain.BundleApproved); err != nil {
			return nil, err
		}
		if _, err := s.contacts.MarkOutreach(ctx, b.ContactID, domain.OutreachSent); err != nil {
			return nil, err
		}
		s.log.Info("bundle sent", "bundle_id", b.ID, "recipient", b.Recipient, "message_id", r.MessageID)
		s.runHook("on_sent", func() error {
			if s.hooks.OnSent == nil {
				return nil
			}
			return s.hooks.OnSent(ctx, b)
		})
		return b, nil

	case r.Permanent:
		b.Status = domain.BundleBounced
		if err := s.repo.Save(ctx, b, domain.BundleApproved); err != nil {
			return nil, err
		}
		s.log.Warn("permanent send failure", "bundle_id", b.ID, "recipient", b.Recipient, "smtp_code", r.SMTPCode, "error", r.Error)
		if err := s.bounceContact(ctx, b); err != nil {
			return b, err
		}
		return b, nil

	default:
		reason := r.Error
		if reason == "" {
			reason = strings.TrimSpace(fmt.Sprintf("%d %s", r.SMTPCode, r.SMTPText))
		}
		return b, fmt.Errorf("%w: %s", domain.ErrTransientSend, reason)
	}
}

// RecordReply stores a reply on a sent bundle. Repeating the same reply
// is a no-op; a different reply type overwrites the previous one.
func (s *Service) RecordReply(ctx context.Context, id int64, replyType, snippet string) (*domain.OutreachBundle, error) {
	replyType = strings.ToLower(strings.TrimSpace(replyType))
	if replyType == "" {
		return nil, fmt.Errorf("%w: reply_type is required", domain.ErrValidation)
	}
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if b.Status != domain.BundleSent && b.Status != domain.BundleReplied {
			return nil, fmt.Errorf("%w: cannot reply to a %s bundle", ErrInvalidTransition, b.Status)
		}
		if b.Status == domain.BundleReplied && b.ReplyType == replyType && b.ReplySnippet == snippet {
			return b, nil
		}
		prev := b.Status
		b.Status = domain.BundleReplied
		b.ReplyType = replyType
		b.ReplySnippet = snippet
		if b.RepliedAt == nil {
			at := s.opts.Now().UTC()
			b.RepliedAt = &at
		}
		if err := s.repo.Save(ctx, b, prev); err != nil {
			return nil, err
		}
		if _, err := s.contacts.RecordReply(ctx, b.ContactID, replyType); err != nil {
			return nil, err
		}
		s.log.Info("reply recorded", "bundle_id", b.ID, "contact_id", b.ContactID, "reply_type", replyType)
		s.runHook("on_closed", func() error { return s.closed(ctx, b.ContactID) })
		return b, nil
	})
}

// RecordBounce applies an asynchronous bounce notification to a bundle
// that was sent. Bouncing an already bounced bundle is a no-op.
func (s *Service) RecordBounce(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	return s.withBundle(ctx, id, func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error) {
		if b.Status == domain.BundleBounced {
			return b, nil
		}
		if !b.CanBounce() {
			return nil, fmt.Errorf("%w: cannot bounce a %s bundle", ErrInvalidTransition, b.Status)
		}
		if b.Recipient == "" {
			return nil, ErrNoRecipient
		}
		prev := b.Status
		b.Status = domain.BundleBounced
		if err := s.repo.Save(ctx, b, prev); err != nil {
			return nil, err
		}
		if err := s.bounceContact(ctx, b); err != nil {
			return b, err
		}
		return b, nil
	})
}

// bounceContact counts the bounce on the contact and closes the
// conversation. A contact that stays eligible and has nothing else in
// flight goes back to pending so the next batch can pick it up. Caller
// holds the contact lock.
func (s *Service) bounceContact(ctx context.Context, b *domain.OutreachBundle) error {
	c, err := s.contacts.RecordBounce(ctx, b.ContactID, b.Recipient)
	if err != nil {
		return err
	}
	if !c.IsTerminal() && c.OutreachStatus != domain.OutreachPending {
		_, err := s.repo.Unresolved(ctx, b.ContactID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if _, err := s.contacts.MarkOutreach(ctx, b.ContactID, domain.OutreachPending); err != nil {
				return err
			}
		case err != nil:
			return err
		}
	}
	s.runHook("on_closed", func() error { return s.closed(ctx, b.ContactID) })
	return nil
}

func (s *Service) closed(ctx context.Context, contactID int64) error {
	if s.hooks.OnClosed == nil {
		return nil
	}
	return s.hooks.OnClosed(ctx, contactID)
}

func (s *Service) runHook(name string, fn func() error) {
	if err := fn(); err != nil {
		s.log.Error("bundle hook failed", "hook", name, "error", err.Error())
	}
}

// withBundle loads the bundle, takes its contact's lock, reloads both and
// runs fn with them.
func (s *Service) withBundle(ctx context.Context, id int64, fn func(b *domain.OutreachBundle, c *domain.Contact) (*domain.OutreachBundle, error)) (*domain.OutreachBundle, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, ContactLockKey(b.ContactID))
	if err != nil {
		return nil, fmt.Errorf("lock contact %d: %w", b.ContactID, err)
	}
	defer release()

	if b, err = s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	c, err := s.contacts.Get(ctx, b.ContactID)
	if err != nil {
		return nil, err
	}
	return fn(b, c)
}
