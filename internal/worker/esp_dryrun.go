package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// DryRunAdapter accepts every message without sending it. It is selected
// when SES is disabled so the full lifecycle can run in development.
type DryRunAdapter struct {
	log *logger.Logger
}

var _ sending.Adapter = (*DryRunAdapter)(nil)

func NewDryRunAdapter() *DryRunAdapter {
	return &DryRunAdapter{log: logger.With("component", "dry-run-sender")}
}

func (d *DryRunAdapter) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	id := "dry-run-" + uuid.NewString()
	d.log.Info("dry run send", "recipient", logger.RedactEmail(msg.Recipient), "subject", msg.Subject, "message_id", id)
	return domain.SendResult{Success: true, SMTPCode: 250, SMTPText: "OK (dry run)", MessageID: id}, nil
}
