// Package tracking moves form tracking events through an SQS queue: the
// Publisher enqueues them, the Consumer drains the queue into the vendor's
// events endpoint, and Handler accepts browser beacons.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client used by this package.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message is the queued form of a klaviyo.Event.
type Message struct {
	ID          string                 `json:"id"`
	Event       string                 `json:"event"`
	Properties  map[string]interface{} `json:"properties"`
	APIKey      string                 `json:"api_key"`
	AnonymousID string                 `json:"anonymous_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewMessage stamps event with a fresh id and the current time.
func NewMessage(event klaviyo.Event) Message {
	return Message{
		ID:          uuid.NewString(),
		Event:       event.Name,
		Properties:  event.Properties,
		APIKey:      event.APIKey,
		AnonymousID: event.AnonymousID,
		Timestamp:   time.Now().UTC(),
	}
}

// ToEvent converts the message back into a tracking event.
func (m Message) ToEvent() klaviyo.Event {
	return klaviyo.Event{
		Name:        m.Event,
		Properties:  m.Properties,
		APIKey:      m.APIKey,
		AnonymousID: m.AnonymousID,
	}
}

const sendTimeout = 5 * time.Second

// Publisher sends tracking events to SQS without blocking the caller.
type Publisher struct {
	client   SQSAPI
	queueURL string
	log      *logger.Entry
	wg       sync.WaitGroup
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, log: logger.Component("tracking")}
}

// Track enqueues the event in the background. Only an encoding failure is
// returned; send errors are logged.
func (p *Publisher) Track(_ context.Context, event klaviyo.Event) error {
	msg := NewMessage(event)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tracking: marshal event %q: %w", event.Name, err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			p.log.Error("error publishing to SQS", "event", msg.Event, "id", msg.ID, "error", err)
			return
		}
		p.log.Debug("tracking event published", "event", msg.Event, "id", msg.ID)
	}()
	return nil
}

// Wait blocks until every in-flight send has finished.
func (p *Publisher) Wait() { p.wg.Wait() }
