// Package outreach composes the lifecycle services into one engine and
// wires their cross-service reactions:
//
//   - a contact turning terminal cancels its pending follow-ups and
//     unresolved bundles;
//   - a bundle marked sent schedules follow-up #1;
//   - a reply or bounce cancels the contact's pending follow-ups.
//
// The services only know each other through narrow interfaces, so the
// wiring lives here to keep the package graph acyclic.
package outreach

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/policy"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/bundle"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/service/followup"
	"github.com/ignite/outreach-engine/internal/service/sending"
	"github.com/ignite/outreach-engine/internal/service/signal"
	"github.com/ignite/outreach-engine/internal/service/stats"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// Repositories bundles one implementation of every repository.
type Repositories struct {
	Contacts  contact.Repository
	Bundles   bundle.Repository
	Tracking  tracking.Repository
	FollowUps followup.Repository
	Signals   signal.Repository
	Stats     stats.Repository
}

// MemoryRepositories returns repositories backed by one in-memory store.
func MemoryRepositories(s *memory.Store) Repositories {
	return Repositories{
		Contacts:  s.Contacts(),
		Bundles:   s.Bundles(),
		Tracking:  s.Tracking(),
		FollowUps: s.FollowUps(),
		Signals:   s.Signals(),
		Stats:     s.Stats(),
	}
}

// Options are the engine knobs, normally taken from config.EngineConfig.
type Options struct {
	BounceThreshold  int
	Cadence          []int
	DefaultPriority  int
	SendTimeout      time.Duration
	ResolveTimeout   time.Duration
	SendRetries      int
	RetryBaseDelay   time.Duration
	FollowUpPageSize int
	TrackingBaseURL  string
	AutoApprove      bool
	BatchSize        int
	Now              func() time.Time
}

// OptionsFromConfig maps the configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BounceThreshold:  cfg.Engine.BounceThreshold,
		Cadence:          cfg.Engine.Cadence,
		DefaultPriority:  cfg.Engine.DefaultPriority,
		SendTimeout:      cfg.Engine.SendTimeout(),
		ResolveTimeout:   cfg.Engine.ResolveTimeout(),
		SendRetries:      cfg.Engine.SendRetries,
		RetryBaseDelay:   cfg.Engine.RetryBaseDelay(),
		FollowUpPageSize: cfg.Engine.FollowUpPageSize,
		TrackingBaseURL:  cfg.Tracking.BaseURL,
		AutoApprove:      cfg.Engine.AutoApprove,
		BatchSize:        cfg.Engine.BatchSize,
	}
}

// Deps are the engine's external collaborators.
type Deps struct {
	Repos     Repositories
	Templates sending.TemplateResolver
	Adapter   sending.Adapter
	Locker    distlock.Locker    // nil selects an in-process locker
	Policy    *policy.Classifier // nil selects the built-in defaults
}

// Engine exposes the composed services.
type Engine struct {
	Contacts  *contact.Service
	Bundles   *bundle.Service
	Tracking  *tracking.Service
	FollowUps *followup.Service
	Signals   *signal.Service
	Stats     *stats.Service
	Policy    *policy.Classifier
	Options   Options
}

// New builds the services and wires their hooks.
func New(d Deps, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	locker := d.Locker
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	if d.Policy == nil {
		// An empty policy always validates: tier C for everything.
		d.Policy, _ = policy.New(config.PolicyConfig{})
	}

	contacts := contact.NewService(d.Repos.Contacts, d.Policy, contact.Options{
		BounceThreshold: opts.BounceThreshold,
		DefaultPriority: opts.DefaultPriority,
	}).WithLocker(locker)
	trk := tracking.NewService(d.Repos.Tracking, locker).WithClock(opts.Now)
	bundles := bundle.NewService(bundle.Deps{
		Repo:      d.Repos.Bundles,
		Contacts:  contacts.Held(),
		Templates: d.Templates,
		Adapter:   d.Adapter,
		Tokens:    trk,
		Locker:    locker,
	}, bundle.Options{
		ResolveTimeout:  opts.ResolveTimeout,
		SendTimeout:     opts.SendTimeout,
		SendRetries:     opts.SendRetries,
		RetryBaseDelay:  opts.RetryBaseDelay,
		TrackingBaseURL: opts.TrackingBaseURL,
		AutoApprove:     opts.AutoApprove,
		BatchSize:       opts.BatchSize,
		Now:             opts.Now,
	})
	followups := followup.NewService(followup.Deps{
		Repo:      d.Repos.FollowUps,
		Contacts:  contacts.Held(),
		Bundles:   bundles,
		SendLog:   d.Repos.Bundles,
		Templates: d.Templates,
		Adapter:   d.Adapter,
		Locker:    locker,
	}, followup.Options{
		Cadence:        opts.Cadence,
		PageSize:       opts.FollowUpPageSize,
		SendTimeout:    opts.SendTimeout,
		ResolveTimeout: opts.ResolveTimeout,
		Now:            opts.Now,
	})

	contacts.SetHooks(contact.Hooks{
		OnTerminal: func(ctx context.Context, contactID int64) error {
			_, errF := followups.CancelPending(ctx, contactID)
			_, errB := bundles.CancelUnresolved(ctx, contactID)
			return errors.Join(errF, errB)
		},
	})
	bundles.SetHooks(bundle.Hooks{
		OnSent: func(ctx context.Context, b *domain.OutreachBundle) error {
			_, err := followups.ScheduleNext(ctx, b.ContactID, b.ID, nil)
			if errors.Is(err, domain.ErrCadenceExhausted) || errors.Is(err, followup.ErrContactIneligible) {
				return nil
			}
			return err
		},
		OnClosed: func(ctx context.Context, contactID int64) error {
			_, err := followups.CancelPending(ctx, contactID)
			return err
		},
	})

	return &Engine{
		Contacts:  contacts,
		Bundles:   bundles,
		Tracking:  trk,
		FollowUps: followups,
		Signals:   signal.NewService(d.Repos.Signals, contacts, d.Policy, locker),
		Stats:     stats.NewService(d.Repos.Stats),
		Policy:    d.Policy,
		Options:   opts,
	}
}
