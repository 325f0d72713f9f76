package forms

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
)

// Event types dispatched after a submission.
const (
	EventSubmitSuccess = "klaviyoSubmitSuccess"
	EventSubmitError   = "klaviyoSubmitError"
)

// SubmitEvent is the detail delivered to listeners. Payload is set on
// success; Err on failure (a *ValidationError, *klaviyo.APIError or a
// transport error).
type SubmitEvent struct {
	Type     string
	Form     *Form
	FormData MappedAttributes
	Payload  *klaviyo.SubscriptionPayload
	Err      error
}

// Listener receives dispatched events. Listeners run synchronously and must
// not submit the same form again from inside the callback.
type Listener func(SubmitEvent)

// EventBus delivers submit events to form-level listeners, then to
// document-level listeners.
type EventBus struct {
	mu       sync.RWMutex
	document map[string][]Listener
	forms    map[*html.Node]map[string][]Listener
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		document: make(map[string][]Listener),
		forms:    make(map[*html.Node]map[string][]Listener),
	}
}

// On registers a document-level listener.
func (b *EventBus) On(eventType string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.document[eventType] = append(b.document[eventType], l)
}

// OnForm registers a listener for one form.
func (b *EventBus) OnForm(form *Form, eventType string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := form.Node()
	if b.forms[n] == nil {
		b.forms[n] = make(map[string][]Listener)
	}
	b.forms[n][eventType] = append(b.forms[n][eventType], l)
}

// Dispatch delivers ev on the form, then on the document.
func (b *EventBus) Dispatch(ev SubmitEvent) {
	b.mu.RLock()
	var listeners []Listener
	if ev.Form != nil {
		listeners = append(listeners, b.forms[ev.Form.Node()][ev.Type]...)
	}
	listeners = append(listeners, b.document[ev.Type]...)
	b.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
