// Package sending defines the seams between the outreach lifecycle and
// the outside world: template resolution and message transport.
//
// Implementations live elsewhere (internal/templates for the resolver,
// internal/worker for SES and dry-run adapters). Services only depend on
// the interfaces here.
package sending

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Adapter delivers one rendered message. Implementations must be safe for
// concurrent use.
//
// A returned error means the attempt never reached a definitive answer
// (network failure, timeout) and is treated as transient. A nil error with
// Success=false carries the transport's verdict; Permanent marks the
// recipient as undeliverable.
type Adapter interface {
	Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error)
}

// TemplateResolver looks up templates by (tier, industry, name) and
// renders them with per-contact data. Resolve returns an error wrapping
// domain.ErrNoTemplate when nothing matches.
type TemplateResolver interface {
	Resolve(ctx context.Context, tier domain.Tier, industryCode, name string) (*domain.Template, error)
	Render(t *domain.Template, data map[string]any) (subject, body string, err error)
}
