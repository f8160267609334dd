package signal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/policy"
	"github.com/ignite/outreach-engine/internal/service/contact"
)

// Contacts is the slice of the contact service promotion needs.
type Contacts interface {
	List(ctx context.Context, f contact.ListFilter) ([]domain.Contact, error)
	Create(ctx context.Context, in contact.CreateInput, opts contact.CreateOptions) (*domain.Contact, error)
}

// Rules supplies the per-signal-type lead defaults.
type Rules interface {
	Rule(signalType string) (policy.SignalRule, bool)
}

// Service implements signal intake.
type Service struct {
	repo     Repository
	contacts Contacts
	rules    Rules
	locker   distlock.Locker
	log      *logger.Logger
}

// NewService creates a signal service.
func NewService(repo Repository, contacts Contacts, rules Rules, locker distlock.Locker) *Service {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Service{repo: repo, contacts: contacts, rules: rules, locker: locker, log: logger.With("component", "signal")}
}

// Get returns a single signal.
func (s *Service) Get(ctx context.Context, id int64) (*domain.NewsSignal, error) {
	return s.repo.Get(ctx, id)
}

// GetByURL returns the signal stored for a source URL after normalization.
func (s *Service) GetByURL(ctx context.Context, sourceURL string) (*domain.NewsSignal, error) {
	norm, err := NormalizeURL(sourceURL)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByURL(ctx, norm)
}

// List returns signals matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.NewsSignal, error) {
	return s.repo.List(ctx, f)
}

// IngestInput is one observed news item.
type IngestInput struct {
	SourceURL   string     `json:"source_url"`
	Source      string     `json:"source"`
	SignalType  string     `json:"signal_type"`
	Headline    string     `json:"headline"`
	Snippet     string     `json:"snippet"`
	CompanyName string     `json:"company_name"`
	City        string     `json:"city"`
	PublishedAt *time.Time `json:"published_at"`
}

// IngestResult reports the stored signal and whether it already existed.
type IngestResult struct {
	Signal    *domain.NewsSignal `json:"signal"`
	Duplicate bool               `json:"duplicate"`
}

// Ingest stores a signal in status new. Ingesting a URL that normalizes to
// an existing signal returns that signal with Duplicate set and no error.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	norm, err := NormalizeURL(in.SourceURL)
	if err != nil {
		return IngestResult{}, err
	}
	headline := strings.TrimSpace(in.Headline)
	if headline == "" {
		return IngestResult{}, fmt.Errorf("%w: headline is required", domain.ErrValidation)
	}
	sigType := strings.ToLower(strings.TrimSpace(in.SignalType))
	if sigType == "" {
		sigType = "other"
	}

	sig := &domain.NewsSignal{
		SourceURL:   norm,
		Source:      strings.TrimSpace(in.Source),
		SignalType:  sigType,
		Headline:    headline,
		Snippet:     strings.TrimSpace(in.Snippet),
		CompanyName: strings.TrimSpace(in.CompanyName),
		City:        strings.TrimSpace(in.City),
		PublishedAt: in.PublishedAt,
		Status:      domain.SignalNew,
	}
	id, err := s.repo.Create(ctx, sig)
	if errors.Is(err, domain.ErrDuplicate) {
		existing, gerr := s.repo.GetByURL(ctx, norm)
		if gerr != nil {
			return IngestResult{}, gerr
		}
		return IngestResult{Signal: existing, Duplicate: true}, nil
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest signal: %w", err)
	}
	sig.ID = id
	s.log.Info("signal ingested", "signal_id", id, "signal_type", sigType, "source", sig.Source)
	return IngestResult{Signal: sig}, nil
}

// Review marks a new signal as reviewed.
func (s *Service) Review(ctx context.Context, id int64) (*domain.NewsSignal, error) {
	return s.transition(ctx, id, []domain.SignalStatus{domain.SignalNew}, domain.SignalReviewed)
}

// Dismiss discards a signal that has not been promoted.
func (s *Service) Dismiss(ctx context.Context, id int64) (*domain.NewsSignal, error) {
	return s.transition(ctx, id, []domain.SignalStatus{domain.SignalNew, domain.SignalReviewed}, domain.SignalDismissed)
}

func (s *Service) transition(ctx context.Context, id int64, from []domain.SignalStatus, to domain.SignalStatus) (*domain.NewsSignal, error) {
	sig, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.Status == to {
		return sig, nil
	}
	if !slices.Contains(from, sig.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sig.Status, to)
	}
	ok, err := s.repo.Transition(ctx, id, from, to, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	return s.repo.Get(ctx, id)
}

// Promote turns a signal into a lead: it links the contact matching the
// signal's company and city, or creates one with the tier, priority and
// industry of the signal-type policy. A second promotion fails with
// ErrAlreadyPromoted; dismissed signals cannot be promoted.
func (s *Service) Promote(ctx context.Context, id int64) (*domain.NewsSignal, *domain.Contact, error) {
	release, err := s.locker.Lock(ctx, "signal:"+strconv.FormatInt(id, 10))
	if err != nil {
		return nil, nil, fmt.Errorf("lock signal %d: %w", id, err)
	}
	defer release()

	sig, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch sig.Status {
	case domain.SignalPromoted:
		return sig, nil, fmt.Errorf("%w: signal %d", ErrAlreadyPromoted, id)
	case domain.SignalDismissed:
		return nil, nil, fmt.Errorf("%w: signal %d was dismissed", ErrInvalidTransition, id)
	}
	if sig.CompanyName == "" {
		return nil, nil, fmt.Errorf("%w: signal %d names no company", domain.ErrValidation, id)
	}

	c, err := s.resolveContact(ctx, sig)
	if err != nil {
		return nil, nil, err
	}
	cid := c.ID
	ok, err := s.repo.Transition(ctx, id, []domain.SignalStatus{domain.SignalNew, domain.SignalReviewed}, domain.SignalPromoted, &cid)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: signal %d changed concurrently", ErrInvalidTransition, id)
	}
	sig.Status = domain.SignalPromoted
	sig.ContactID = &cid
	s.log.Info("signal promoted", "signal_id", id, "contact_id", cid)
	return sig, c, nil
}

func (s *Service) resolveContact(ctx context.Context, sig *domain.NewsSignal) (*domain.Contact, error) {
	norm := policy.NormalizeCompany(sig.CompanyName)
	prefix := norm
	if i := strings.IndexByte(norm, ' '); i > 0 {
		prefix = norm[:i]
	}
	candidates, err := s.contacts.List(ctx, contact.ListFilter{CompanyContains: prefix})
	if err != nil {
		return nil, fmt.Errorf("match contact: %w", err)
	}
	if c, ok := policy.MatchContact(candidates, sig.CompanyName, sig.City); ok {
		return c, nil
	}

	rule, _ := s.rules.Rule(sig.SignalType)
	in := contact.CreateInput{
		CompanyName:  sig.CompanyName,
		City:         sig.City,
		Source:       "news:" + sig.Source,
		Tier:         string(rule.Tier),
		IndustryCode: rule.IndustryCode,
		Notes:        sig.Headline + "\n" + sig.SourceURL,
	}
	if rule.Priority > 0 {
		p := rule.Priority
		in.PriorityScore = &p
	}
	return s.contacts.Create(ctx, in, contact.CreateOptions{AllowMerge: true})
}
