package contact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// TierPolicy maps an industry code to its default tier.
type TierPolicy interface {
	TierFor(industryCode string) domain.Tier
}

// Options tunes the lifecycle rules.
type Options struct {
	BounceThreshold int // bounces before a contact is permanently bounced
	DefaultPriority int
}

// Hooks are cross-service reactions, wired by the outreach engine.
type Hooks struct {
	// OnTerminal runs after a contact has become bounced, unsubscribed or
	// lost. It must be idempotent.
	OnTerminal func(ctx context.Context, contactID int64) error
}

// Service implements contact business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
// Outreach status changes and bounces run under LockKey so they serialize
// with bundle drafting and delivery.
type Service struct {
	repo   Repository
	tiers  TierPolicy
	opts   Options
	hooks  Hooks
	locker distlock.Locker
	log    *logger.Logger
}

// NewService creates a contact service backed by the given repository.
func NewService(repo Repository, tiers TierPolicy, opts Options) *Service {
	if opts.BounceThreshold <= 0 {
		opts.BounceThreshold = 3
	}
	if opts.DefaultPriority <= 0 {
		opts.DefaultPriority = 50
	}
	return &Service{
		repo:   repo,
		tiers:  tiers,
		opts:   opts,
		locker: distlock.NewLocalLocker(),
		log:    logger.With("component", "contact"),
	}
}

// SetHooks installs the cross-service hooks. Call before serving traffic.
func (s *Service) SetHooks(h Hooks) { s.hooks = h }

// WithLocker shares the locker the bundle and follow-up services use.
func (s *Service) WithLocker(l distlock.Locker) *Service {
	if l != nil {
		s.locker = l
	}
	return s
}

// LockKey is the lock key serializing a contact's outreach.
func LockKey(id int64) string {
	return "contact:" + strconv.FormatInt(id, 10)
}

func (s *Service) locked(ctx context.Context, id int64, fn func() (*domain.Contact, error)) (*domain.Contact, error) {
	release, err := s.locker.Lock(ctx, LockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock contact %d: %w", id, err)
	}
	defer release()
	return fn()
}

// Held applies outreach updates for a caller that already holds
// LockKey(id).
type Held struct{ s *Service }

// Held returns the lock-free view used by the bundle and follow-up
// services inside their contact lock.
func (s *Service) Held() Held { return Held{s: s} }

// Get returns a single contact.
func (h Held) Get(ctx context.Context, id int64) (*domain.Contact, error) {
	return h.s.repo.Get(ctx, id)
}

// MarkOutreach is Service.MarkOutreach without taking the lock.
func (h Held) MarkOutreach(ctx context.Context, id int64, status domain.OutreachStatus) (*domain.Contact, error) {
	return h.s.setOutreach(ctx, id, status)
}

// RecordBounce is Service.RecordBounce without taking the lock.
func (h Held) RecordBounce(ctx context.Context, id int64, email string) (*domain.Contact, error) {
	return h.s.recordBounce(ctx, id, email)
}

// RecordReply is Service.RecordReply without taking the lock.
func (h Held) RecordReply(ctx context.Context, id int64, replyType string) (*domain.Contact, error) {
	return h.s.recordReply(ctx, id, replyType)
}

// BounceThreshold returns the configured terminal bounce count.
func (s *Service) BounceThreshold() int { return s.opts.BounceThreshold }

// Get returns a single contact.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Contact, error) {
	return s.repo.Get(ctx, id)
}

// List returns contacts matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Contact, error) {
	return s.repo.List(ctx, f)
}

// DiscoveryLog returns the contact's discovery attempts oldest first.
func (s *Service) DiscoveryLog(ctx context.Context, id int64) ([]domain.DiscoveryLogEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.DiscoveryLog(ctx, id)
}

// Bounces returns the contact's bounce records oldest first.
func (s *Service) Bounces(ctx context.Context, id int64) ([]domain.BounceEvent, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Bounces(ctx, id)
}

// CreateInput holds the fields for creating a new contact.
type CreateInput struct {
	CompanyName   string `json:"company_name"`
	ContactName   string `json:"contact_name"`
	TitleRole     string `json:"title_role"`
	Address       string `json:"address"`
	City          string `json:"city"`
	Province      string `json:"province"`
	PostalCode    string `json:"postal_code"`
	Phone         string `json:"phone"`
	Website       string `json:"website"`
	Domain        string `json:"domain"`
	Notes         string `json:"notes"`
	Source        string `json:"source"`
	Tier          string `json:"tier"`
	IndustryCode  string `json:"industry_code"`
	PriorityScore *int   `json:"priority_score"`
}

// CreateOptions controls duplicate handling.
type CreateOptions struct {
	// AllowMerge returns the existing contact, with its empty fields
	// filled from the input, instead of failing with ErrDuplicate.
	AllowMerge bool
}

// Create validates and persists a new contact in cold/pending/pending
// state. On ErrDuplicate the existing contact is returned alongside the
// error.
func (s *Service) Create(ctx context.Context, in CreateInput, opts CreateOptions) (*domain.Contact, error) {
	c, err := s.build(in)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindByIdentity(ctx, c.CompanyName, c.City, c.Domain)
		switch {
		case err == nil:
			if !opts.AllowMerge {
				return existing, fmt.Errorf("%w: id %d", ErrDuplicate, existing.ID)
			}
			return s.merge(ctx, existing.ID, c)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}

		id, err := s.repo.Create(ctx, c)
		if err == nil {
			c.ID = id
			s.log.Info("contact created", "contact_id", id, "tier", string(c.Tier), "source", c.Source)
			return c, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("create contact: %w", err)
		}
		// Lost a race with a concurrent create; look it up again.
	}
	return nil, fmt.Errorf("%w: concurrent create of %q", ErrDuplicate, c.CompanyName)
}

func (s *Service) build(in CreateInput) (*domain.Contact, error) {
	name := strings.TrimSpace(in.CompanyName)
	if name == "" {
		return nil, fmt.Errorf("%w: company_name is required", domain.ErrValidation)
	}
	tier := domain.Tier(strings.ToUpper(strings.TrimSpace(in.Tier)))
	if tier == "" {
		tier = s.tiers.TierFor(in.IndustryCode)
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: tier %q must be one of A-E", domain.ErrValidation, in.Tier)
	}
	priority := s.opts.DefaultPriority
	if in.PriorityScore != nil {
		priority = *in.PriorityScore
	}
	if priority < 0 || priority > 100 {
		return nil, fmt.Errorf("%w: priority_score %d out of range 0-100", domain.ErrValidation, priority)
	}
	dom := strings.ToLower(strings.TrimSpace(in.Domain))
	if dom == "" {
		dom = DomainFromWebsite(in.Website)
	}
	return &domain.Contact{
		CompanyName:    name,
		ContactName:    strings.TrimSpace(in.ContactName),
		TitleRole:      strings.TrimSpace(in.TitleRole),
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		Province:       strings.TrimSpace(in.Province),
		PostalCode:     strings.TrimSpace(in.PostalCode),
		Phone:          strings.TrimSpace(in.Phone),
		Website:        strings.TrimSpace(in.Website),
		Domain:         dom,
		Notes:          in.Notes,
		Source:         in.Source,
		Tier:           tier,
		IndustryCode:   strings.ToUpper(strings.TrimSpace(in.IndustryCode)),
		PriorityScore:  priority,
		AccountStatus:  domain.AccountCold,
		EmailStatus:    domain.EmailPending,
		OutreachStatus: domain.OutreachPending,
	}, nil
}

// merge fills the existing contact's empty descriptive fields.
func (s *Service) merge(ctx context.Context, id int64, in *domain.Contact) (*domain.Contact, error) {
	return s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		fill := func(dst *string, v string) {
			if *dst == "" {
				*dst = v
			}
		}
		fill(&c.ContactName, in.ContactName)
		fill(&c.TitleRole, in.TitleRole)
		fill(&c.Address, in.Address)
		fill(&c.Province, in.Province)
		fill(&c.PostalCode, in.PostalCode)
		fill(&c.Phone, in.Phone)
		fill(&c.Website, in.Website)
		fill(&c.Notes, in.Notes)
		fill(&c.IndustryCode, in.IndustryCode)
		return nil
	})
}

// DomainFromWebsite extracts a bare lowercase host from a website field.
func DomainFromWebsite(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	if !strings.Contains(w, "://") {
		w = "http://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Attempt is one email-discovery attempt to record.
type Attempt struct {
	Step   string                 `json:"step"`
	Result domain.DiscoveryResult `json:"result"`
	Detail string                 `json:"detail"`
	Email  string                 `json:"email"`
}

func (a Attempt) validate() error {
	if strings.TrimSpace(a.Step) == "" {
		return fmt.Errorf("%w: step is required", domain.ErrValidation)
	}
	switch a.Result {
	case domain.DiscoveryFound, domain.DiscoveryVerified:
		if !validEmail(a.Email) {
			return fmt.Errorf("%w: result %s needs a valid email", domain.ErrValidation, a.Result)
		}
	case domain.DiscoveryNotFound, domain.DiscoveryInvalid, domain.DiscoveryError, domain.DiscoverySkipped:
	default:
		return fmt.Errorf("%w: unknown discovery result %q", domain.ErrValidation, a.Result)
	}
	return nil
}

// RecordDiscoveryAttempt appends an entry to the discovery log and, for
// found/verified results, upgrades the contact's email only when the new
// confidence is strictly higher. Addresses that already bounced for the
// contact are logged but never applied.
func (s *Service) RecordDiscoveryAttempt(ctx context.Context, id int64, a Attempt) (*domain.Contact, error) {
	a.Email = normalizeEmail(a.Email)
	if err := a.validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	entry := &domain.DiscoveryLogEntry{ContactID: id, Step: a.Step, Result: a.Result, Detail: a.Detail, Email: a.Email}
	if _, err := s.repo.AppendDiscovery(ctx, entry); err != nil {
		return nil, fmt.Errorf("append discovery log: %w", err)
	}
	if !a.Result.Succeeded() {
		return s.repo.Get(ctx, id)
	}

	status := a.Result.EmailStatus()
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		if c.HasBounced(a.Email) || c.OutreachStatus == domain.OutreachBounced {
			return errNoChange
		}
		if status.Rank() <= c.EmailStatus.Rank() {
			return errNoChange
		}
		c.DiscoveredEmail = a.Email
		c.EmailStatus = status
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.log.Debug("discovery result not applied", "contact_id", id, "email", a.Email, "result", string(a.Result))
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("discovered email applied", "contact_id", id, "email", a.Email, "email_status", string(c.EmailStatus))
	return c, nil
}

// PromoteEmail explicitly re-targets a contact to a new address, for
// example after the previous one bounced.
func (s *Service) PromoteEmail(ctx context.Context, id int64, email string) (*domain.Contact, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		if c.IsTerminal() {
			return ErrTerminal
		}
		if c.HasBounced(email) {
			return ErrBouncedAddress
		}
		if strings.EqualFold(c.DiscoveredEmail, email) && c.EmailStatus == domain.EmailVerified {
			return errNoChange
		}
		c.DiscoveredEmail = email
		c.EmailStatus = domain.EmailFound
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	_, err = s.repo.AppendDiscovery(ctx, &domain.DiscoveryLogEntry{
		ContactID: id, Step: "manual", Result: domain.DiscoveryFound, Detail: "promoted by operator", Email: email,
	})
	if err != nil {
		return nil, fmt.Errorf("append discovery log: %w", err)
	}
	return c, nil
}

// RecordBounce adds email to the contact's bounced set and counts the
// bounce. Reaching the bounce threshold makes the contact permanently
// bounced and fires the terminal cascade.
func (s *Service) RecordBounce(ctx context.Context, id int64, email string) (*domain.Contact, error) {
	return s.locked(ctx, id, func() (*domain.Contact, error) { return s.recordBounce(ctx, id, email) })
}

func (s *Service) recordBounce(ctx context.Context, id int64, email string) (*domain.Contact, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	var becameTerminal bool
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		wasTerminal := c.IsTerminal()
		if !c.HasBounced(email) {
			c.BouncedEmails = append(c.BouncedEmails, email)
		}
		c.BounceCount++
		if strings.EqualFold(c.DiscoveredEmail, email) {
			c.EmailStatus = domain.EmailUndeliverable
		}
		if c.BounceCount >= s.opts.BounceThreshold {
			c.EmailStatus = domain.EmailInvalid
			c.OutreachStatus = domain.OutreachBounced
		}
		becameTerminal = !wasTerminal && c.IsTerminal()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.AppendBounce(ctx, &domain.BounceEvent{ContactID: id, Email: email}); err != nil {
		return nil, fmt.Errorf("append bounce: %w", err)
	}
	s.log.Info("bounce recorded", "contact_id", id, "email", email, "bounce_count", c.BounceCount)
	if becameTerminal {
		if err := s.fireTerminal(ctx, id, "bounce threshold"); err != nil {
			return c, err
		}
	}
	return c, nil
}

// ScoreChange adjusts priority either relatively or absolutely.
type ScoreChange struct {
	Delta    *int `json:"delta"`
	Absolute *int `json:"absolute"`
}

// UpdateScore applies the change and clamps the result to 0-100.
func (s *Service) UpdateScore(ctx context.Context, id int64, ch ScoreChange) (*domain.Contact, error) {
	if (ch.Delta == nil) == (ch.Absolute == nil) {
		return nil, fmt.Errorf("%w: exactly one of delta or absolute is required", domain.ErrValidation)
	}
	return s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		v := c.PriorityScore
		if ch.Delta != nil {
			v += *ch.Delta
		} else {
			v = *ch.Absolute
		}
		c.PriorityScore = min(max(v, 0), 100)
		return nil
	})
}

// TransitionAccount moves the account status along the allowed graph.
// Moving to lost fires the terminal cascade.
func (s *Service) TransitionAccount(ctx context.Context, id int64, to domain.AccountStatus) (*domain.Contact, error) {
	switch to {
	case domain.AccountCold, domain.AccountWarm, domain.AccountActive, domain.AccountCustomer, domain.AccountLost:
	default:
		return nil, fmt.Errorf("%w: unknown account status %q", domain.ErrValidation, to)
	}
	return s.locked(ctx, id, func() (*domain.Contact, error) { return s.transitionAccount(ctx, id, to) })
}

func (s *Service) transitionAccount(ctx context.Context, id int64, to domain.AccountStatus) (*domain.Contact, error) {
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		if c.AccountStatus == to {
			return errNoChange
		}
		if !c.AccountStatus.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.AccountStatus, to)
		}
		c.AccountStatus = to
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if to == domain.AccountLost {
		if err := s.fireTerminal(ctx, id, "account lost"); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Unsubscribe marks the contact unsubscribed and fires the terminal
// cascade. A bounced contact stays bounced.
func (s *Service) Unsubscribe(ctx context.Context, id int64) (*domain.Contact, error) {
	return s.MarkOutreach(ctx, id, domain.OutreachUnsubscribed)
}

// MarkOutreach records pipeline progress (queued, sent). Terminal outreach
// statuses are never overwritten.
func (s *Service) MarkOutreach(ctx context.Context, id int64, status domain.OutreachStatus) (*domain.Contact, error) {
	return s.locked(ctx, id, func() (*domain.Contact, error) { return s.setOutreach(ctx, id, status) })
}

// RecordReply reflects a reply on the contact: replied, or unsubscribed
// for an unsubscribe reply. An interested reply warms a cold account.
func (s *Service) RecordReply(ctx context.Context, id int64, replyType string) (*domain.Contact, error) {
	return s.locked(ctx, id, func() (*domain.Contact, error) { return s.recordReply(ctx, id, replyType) })
}

func (s *Service) recordReply(ctx context.Context, id int64, replyType string) (*domain.Contact, error) {
	if replyType == domain.ReplyUnsubscribe {
		return s.setOutreach(ctx, id, domain.OutreachUnsubscribed)
	}
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		if c.IsTerminal() {
			return errNoChange
		}
		c.OutreachStatus = domain.OutreachReplied
		if replyType == domain.ReplyInterested && c.AccountStatus == domain.AccountCold {
			c.AccountStatus = domain.AccountWarm
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.repo.Get(ctx, id)
	}
	return c, err
}

func (s *Service) setOutreach(ctx context.Context, id int64, status domain.OutreachStatus) (*domain.Contact, error) {
	var becameTerminal bool
	c, err := s.repo.Mutate(ctx, id, func(c *domain.Contact) error {
		if c.OutreachStatus == status ||
			c.OutreachStatus == domain.OutreachBounced ||
			c.OutreachStatus == domain.OutreachUnsubscribed {
			return errNoChange
		}
		wasTerminal := c.IsTerminal()
		c.OutreachStatus = status
		becameTerminal = !wasTerminal && c.IsTerminal()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if becameTerminal {
		if err := s.fireTerminal(ctx, id, string(status)); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *Service) fireTerminal(ctx context.Context, id int64, reason string) error {
	s.log.Info("contact terminal", "contact_id", id, "reason", reason)
	if s.hooks.OnTerminal == nil {
		return nil
	}
	if err := s.hooks.OnTerminal(ctx, id); err != nil {
		s.log.Error("terminal cascade failed", "contact_id", id, "error", err.Error())
		return fmt.Errorf("terminal cascade for contact %d: %w", id, err)
	}
	return nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func validEmail(e string) bool {
	at := strings.LastIndexByte(e, '@')
	return at > 0 && at < len(e)-1 && !strings.ContainsAny(e, " \t\r\n")
}
