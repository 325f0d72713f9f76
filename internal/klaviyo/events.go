package klaviyo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DefaultEventsEndpoint is the client-side events endpoint.
const DefaultEventsEndpoint = "https://a.klaviyo.com/client/events/"

type eventPayload struct {
	Data eventData `json:"data"`
}

type eventData struct {
	Type       string          `json:"type"`
	Attributes eventAttributes `json:"attributes"`
}

type eventAttributes struct {
	Properties map[string]interface{} `json:"properties"`
	Metric     metricRef              `json:"metric"`
	Profile    ProfileRef             `json:"profile"`
}

type metricRef struct {
	Data metricData `json:"data"`
}

type metricData struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func newEventPayload(event Event) eventPayload {
	props := event.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	anon := event.AnonymousID
	if anon == "" {
		anon = uuid.NewString()
	}
	return eventPayload{Data: eventData{
		Type: "event",
		Attributes: eventAttributes{
			Properties: props,
			Metric: metricRef{Data: metricData{
				Type:       "metric",
				Attributes: map[string]string{"name": event.Name},
			}},
			Profile: ProfileRef{Data: Profile{
				Type:       "profile",
				Attributes: map[string]interface{}{"anonymous_id": anon},
			}},
		},
	}}
}

// Track posts event to the client events endpoint with the latest revision
// and the default retry policy, so a Client can serve as a Tracker.
func (c *Client) Track(ctx context.Context, event Event) error {
	if event.APIKey == "" {
		return ErrMissingAPIKey
	}
	body, err := json.Marshal(newEventPayload(event))
	if err != nil {
		return fmt.Errorf("klaviyo: marshaling event: %w", err)
	}
	rev := c.revisions.Latest()
	c.log.Debug("tracking event", "event", event.Name, "revision", rev.Revision)
	return c.post(ctx, c.eventsURL, rev.Revision, event.APIKey, body, 0)
}
