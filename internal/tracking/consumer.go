package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
)

// Consumer drains the open-event queue into a Recorder. A message is
// deleted once applied or once it is known to be unusable; a failed
// apply is left for SQS to redeliver.
type Consumer struct {
	client   SQSAPI
	queueURL string
	rec      Recorder
	log      *logger.Logger

	waitSeconds int32
	errBackoff  time.Duration
}

func NewConsumer(client SQSAPI, queueURL string, rec Recorder) *Consumer {
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		rec:         rec,
		log:         logger.With("component", "tracking-consumer"),
		waitSeconds: 20,
		errBackoff:  5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("tracking consumer started", "queue", c.queueURL)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("sqs receive failed", "error", err)
			if err := retry.Sleep(ctx, c.errBackoff); err != nil {
				return nil
			}
		}
	}
}

// PollOnce receives one batch and applies it, returning how many events
// were recorded.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, msg := range out.Messages {
		var evt OpenEvent
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
			c.log.Warn("dropping malformed open event", "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		if _, err := c.rec.RecordOpenAt(ctx, evt.TrackingID, evt.IPAddress, evt.UserAgent, evt.Timestamp); err != nil {
			c.log.Error("open event not applied", "tracking_id", evt.TrackingID, "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
		applied++
	}
	return applied, nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		c.log.Warn("sqs delete failed", "error", err)
	}
}
