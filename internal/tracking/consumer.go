package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// Consumer drains the tracking queue into a klaviyo.Tracker. Messages are
// deleted once delivered or when they cannot be decoded; delivery failures
// stay on the queue for SQS to redeliver.
type Consumer struct {
	sqsClient SQSAPI
	queueURL  string
	sink      klaviyo.Tracker
	backoff   time.Duration
	log       *logger.Entry
	done      chan struct{}
	stopOnce  sync.Once
}

func NewConsumer(sqsClient SQSAPI, queueURL string, sink klaviyo.Tracker) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		sink:      sink,
		backoff:   5 * time.Second,
		log:       logger.Component("tracking"),
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	c.log.Info("SQS tracking consumer started", "queue", c.queueURL)
	go c.poll(ctx)
}

// Stop ends polling. It is safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("SQS receive error", "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}
}

// PollOnce receives one batch and delivers it. It returns how many events
// reached the sink.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range out.Messages {
		var m Message
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &m); err != nil {
			c.log.Warn("SQS bad message", "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.sink.Track(ctx, m.ToEvent()); err != nil {
			c.log.Error("error delivering tracking event", "event", m.Event, "id", m.ID, "error", err)
			continue
		}
		delivered++
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return delivered, nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		c.log.Warn("SQS delete failed", "error", err)
	}
}
