package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// SESAPI is the subset of *sesv2.Client used by SESAdapter.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESAdapter delivers outreach mail through AWS SES v2.
type SESAdapter struct {
	client    SESAPI
	fromEmail string
	fromName  string
	configSet string
	log       *logger.Logger
}

var _ sending.Adapter = (*SESAdapter)(nil)

// NewSESAdapter wraps an SES client.
func NewSESAdapter(client SESAPI, cfg config.SESConfig) *SESAdapter {
	return &SESAdapter{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		configSet: cfg.ConfigurationSet,
		log:       logger.With("component", "ses"),
	}
}

// NewSESClient builds the SES client, using static credentials when
// configured and the default chain otherwise.
func NewSESClient(ctx context.Context, cfg config.SESConfig) (*sesv2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

// Send delivers one message. SES rejections of the message or address
// come back as permanent results; throttling, paused sending and network
// failures are returned as errors so the caller retries.
func (s *SESAdapter) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.HTMLBody != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}
	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(msg.Tags[k])})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if r, ok := permanentSESFailure(err); ok {
			s.log.Warn("ses rejected message", "recipient", logger.RedactEmail(msg.Recipient), "error", err)
			return r, nil
		}
		return domain.SendResult{}, fmt.Errorf("ses send: %w", err)
	}

	id := aws.ToString(out.MessageId)
	s.log.Info("ses accepted message", "recipient", logger.RedactEmail(msg.Recipient), "message_id", id)
	return domain.SendResult{Success: true, SMTPCode: 250, SMTPText: "OK", MessageID: id}, nil
}

func permanentSESFailure(err error) (domain.SendResult, bool) {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return domain.SendResult{Permanent: true, SMTPCode: 554, SMTPText: "message rejected", Error: err.Error()}, true
	}
	var bad *types.BadRequestException
	if errors.As(err, &bad) {
		return domain.SendResult{Permanent: true, SMTPCode: 550, SMTPText: "bad request", Error: err.Error()}, true
	}
	return domain.SendResult{}, false
}
