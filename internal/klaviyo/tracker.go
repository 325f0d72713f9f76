package klaviyo

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/klaviyo-webflow/internal/metrics"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// Tracking event names.
const (
	EventViewedForm    = "Viewed Form"
	EventSubmittedForm = "Submitted Form"
)

// Event is a named tracking event for one account. AnonymousID identifies
// the visitor; Client.Track generates one when it is empty.
type Event struct {
	Name        string
	Properties  map[string]interface{}
	APIKey      string
	AnonymousID string
}

// Tracker delivers tracking events to the vendor's tracking surface.
type Tracker interface {
	Track(ctx context.Context, event Event) error
}

// TrackStatus reports what happened to an event handed to EventQueue.Track.
type TrackStatus string

const (
	StatusQueued  TrackStatus = "queued"
	StatusTracked TrackStatus = "tracked"
	StatusDropped TrackStatus = "dropped"
)

// TrackResult is returned by EventQueue.Track.
type TrackResult struct {
	Status TrackStatus
	Event  string
}

// EventQueue buffers events until a Tracker is ready, then forwards them in
// order from a background goroutine so callers never wait on delivery.
// Failures are logged and counted.
type EventQueue struct {
	mu       sync.Mutex
	tracker  Tracker
	pending  []Event
	outbox   []Event
	draining bool
	wg       sync.WaitGroup
	timeout  time.Duration
	log      *logger.Entry
}

// NewEventQueue returns an empty queue with no tracker attached.
func NewEventQueue() *EventQueue {
	return &EventQueue{timeout: 30 * time.Second, log: logger.Component("tracking")}
}

// Track hands the event to the delivery goroutine when a tracker is ready,
// otherwise queues it. It never blocks on the tracker.
func (q *EventQueue) Track(ctx context.Context, event Event) TrackResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tracker == nil {
		q.pending = append(q.pending, event)
		metrics.RecordTrackingEvent(string(StatusQueued))
		return TrackResult{Status: StatusQueued, Event: event.Name}
	}
	q.enqueue(ctx, event)
	return TrackResult{Status: StatusTracked, Event: event.Name}
}

// Ready attaches the tracker and hands queued events over for delivery in
// arrival order. It returns how many queued events were flushed.
func (q *EventQueue) Ready(ctx context.Context, tracker Tracker) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracker = tracker
	if tracker == nil {
		return 0
	}

	flushed := len(q.pending)
	for _, event := range q.pending {
		q.enqueue(ctx, event)
	}
	q.pending = nil
	return flushed
}

// Wait blocks until every handed-over event has been delivered or dropped.
func (q *EventQueue) Wait() { q.wg.Wait() }

// Pending returns a copy of the events waiting for a tracker.
func (q *EventQueue) Pending() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.pending))
	copy(out, q.pending)
	return out
}

// enqueue must be called with q.mu held.
func (q *EventQueue) enqueue(ctx context.Context, event Event) {
	q.outbox = append(q.outbox, event)
	if q.draining {
		return
	}
	q.draining = true
	q.wg.Add(1)
	go q.drain(context.WithoutCancel(ctx))
}

func (q *EventQueue) drain(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.outbox) == 0 || q.tracker == nil {
			// A detached tracker sends undelivered events back to pending.
			q.pending = append(q.outbox, q.pending...)
			q.outbox = nil
			q.draining = false
			q.mu.Unlock()
			return
		}
		event := q.outbox[0]
		q.outbox = q.outbox[1:]
		tracker := q.tracker
		q.mu.Unlock()

		q.deliver(ctx, tracker, event)
	}
}

func (q *EventQueue) deliver(ctx context.Context, tracker Tracker, event Event) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if err := tracker.Track(ctx, event); err != nil {
		q.log.Error("error tracking event", "event", event.Name, "error", err)
		metrics.RecordTrackingEvent(string(StatusDropped))
		return
	}
	metrics.RecordTrackingEvent(string(StatusTracked))
}
