package klaviyo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (r *recordingTracker) Track(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("tracker unavailable")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingTracker) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

func TestEventQueue_QueuesUntilReady(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue()

	res := q.Track(ctx, Event{Name: EventViewedForm})
	assert.Equal(t, StatusQueued, res.Status)
	assert.Equal(t, EventViewedForm, res.Event)
	q.Track(ctx, Event{Name: EventSubmittedForm})
	assert.Len(t, q.Pending(), 2)

	tracker := &recordingTracker{}
	assert.Equal(t, 2, q.Ready(ctx, tracker))
	assert.Empty(t, q.Pending())

	res = q.Track(ctx, Event{Name: "Custom"})
	assert.Equal(t, StatusTracked, res.Status)
	q.Wait()
	assert.Equal(t, []string{EventViewedForm, EventSubmittedForm, "Custom"}, tracker.names())
}

func TestEventQueue_FailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue()
	q.Track(ctx, Event{Name: EventViewedForm})

	tracker := &recordingTracker{fail: true}
	assert.Equal(t, 1, q.Ready(ctx, tracker))

	res := q.Track(ctx, Event{Name: EventSubmittedForm})
	assert.Equal(t, StatusTracked, res.Status)
	q.Wait()
	assert.Empty(t, q.Pending())
	assert.Empty(t, tracker.names())
}

type blockingTracker struct {
	release chan struct{}
	started chan string
}

func (b *blockingTracker) Track(ctx context.Context, event Event) error {
	b.started <- event.Name
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestEventQueue_TrackDoesNotWaitForDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewEventQueue()
	tracker := &blockingTracker{release: make(chan struct{}), started: make(chan string, 4)}
	q.Ready(ctx, tracker)

	done := make(chan TrackResult, 2)
	go func() {
		done <- q.Track(ctx, Event{Name: EventViewedForm})
		done <- q.Track(ctx, Event{Name: EventSubmittedForm})
	}()

	for i := 0; i < 2; i++ {
		select {
		case res := <-done:
			assert.Equal(t, StatusTracked, res.Status)
		case <-time.After(time.Second):
			t.Fatal("Track blocked on a slow tracker")
		}
	}
	assert.Equal(t, EventViewedForm, <-tracker.started)

	// Cancelling the caller's context does not abort delivery.
	cancel()
	close(tracker.release)
	q.Wait()
	assert.Equal(t, EventSubmittedForm, <-tracker.started)
}

func TestEventQueue_ReadyNilKeepsQueueing(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue()
	assert.Equal(t, 0, q.Ready(ctx, nil))
	assert.Equal(t, StatusQueued, q.Track(ctx, Event{Name: EventViewedForm}).Status)
}
