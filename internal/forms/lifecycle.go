package forms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/looplab/fsm"
	"golang.org/x/net/html"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/metrics"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// Per-form lifecycle states.
const (
	StateDiscovered = "discovered"
	StateConfigured = "configured"
	StateSkipped    = "skipped"
	StateArmed      = "armed"
	StateSubmitting = "submitting"
	StateSucceeded  = "succeeded"
	StateFailed     = "failed"
)

// Lifecycle events.
const (
	EventConfigure = "configure"
	EventSkip      = "skip"
	EventArm       = "arm"
	EventSubmit    = "submit"
	EventSucceed   = "succeed"
	EventFail      = "fail"
	EventReject    = "reject"
	EventRearm     = "rearm"
)

var lifecycleEvents = fsm.Events{
	{Name: EventConfigure, Src: []string{StateDiscovered}, Dst: StateConfigured},
	{Name: EventSkip, Src: []string{StateConfigured}, Dst: StateSkipped},
	{Name: EventArm, Src: []string{StateConfigured}, Dst: StateArmed},
	{Name: EventSubmit, Src: []string{StateArmed}, Dst: StateSubmitting},
	{Name: EventSucceed, Src: []string{StateSubmitting}, Dst: StateSucceeded},
	{Name: EventFail, Src: []string{StateSubmitting}, Dst: StateFailed},
	{Name: EventReject, Src: []string{StateArmed}, Dst: StateFailed},
	{Name: EventRearm, Src: []string{StateSucceeded, StateFailed}, Dst: StateArmed},
}

// ErrNotArmed is returned when submitting a form that has no handler.
var ErrNotArmed = errors.New("forms: form is not armed")

// Submitter sends a built payload to the vendor.
type Submitter interface {
	Submit(ctx context.Context, payload *klaviyo.SubscriptionPayload, apiKey string, opts klaviyo.SubmitOptions) error
}

// EventTracker accepts best-effort tracking events.
type EventTracker interface {
	Track(ctx context.Context, event klaviyo.Event) klaviyo.TrackResult
}

// Handle is one discovered form and its lifecycle.
type Handle struct {
	Form   *Form
	Config FormConfig

	mu      sync.Mutex
	machine *fsm.FSM
}

// State returns the current lifecycle state.
func (h *Handle) State() string { return h.machine.Current() }

func (h *Handle) fire(ctx context.Context, event string) error {
	err := h.machine.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return err
	}
	return nil
}

// Outcome reports what one submission did.
type Outcome struct {
	State   string
	Mapped  MappedAttributes
	Payload *klaviyo.SubscriptionPayload
	Err     error
}

// Controller discovers forms on a page, arms them and runs submissions.
type Controller struct {
	page      *Page
	discovery *Discovery
	resolver  *Resolver
	client    Submitter
	tracker   EventTracker
	bus       *EventBus
	log       *logger.Entry

	mu      sync.Mutex
	handles []*Handle
	byNode  map[*html.Node]*Handle
}

// NewController wires a controller for one page. A nil bus gets a fresh
// EventBus; a nil tracker disables tracking.
func NewController(page *Page, resolver *Resolver, client Submitter, tracker EventTracker, bus *EventBus) *Controller {
	if bus == nil {
		bus = NewEventBus()
	}
	return &Controller{
		page:      page,
		discovery: NewDiscovery(resolver.FormIDs()...),
		resolver:  resolver,
		client:    client,
		tracker:   tracker,
		bus:       bus,
		log:       logger.Component("forms"),
		byNode:    make(map[*html.Node]*Handle),
	}
}

// Bus returns the controller's event bus.
func (c *Controller) Bus() *EventBus { return c.bus }

// Handles returns every form this controller has seen, in discovery order.
func (c *Controller) Handles() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Handle(nil), c.handles...)
}

// Lookup returns the handle for the form with the given element id.
func (c *Controller) Lookup(id string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if h.Form.ID() == id {
			return h
		}
	}
	return nil
}

// Init discovers and configures the page's forms. Forms without an API
// key are skipped; the rest are armed once, marked initialized and, when
// view tracking is on, reported as viewed. Calling Init again only picks up
// new forms.
func (c *Controller) Init(ctx context.Context) []*Handle {
	c.page.lock()
	found := c.discovery.Find(c.page)
	c.page.unlock()

	var armed []*Handle
	for _, form := range found {
		if h := c.setup(ctx, form); h != nil && h.State() == StateArmed {
			armed = append(armed, h)
		}
	}
	return armed
}

// setup claims the form and marks it initialized in one page-locked
// section, so concurrent Init calls arm a form at most once.
func (c *Controller) setup(ctx context.Context, form *Form) *Handle {
	c.page.lock()
	c.mu.Lock()
	if _, ok := c.byNode[form.Node()]; ok {
		c.mu.Unlock()
		c.page.unlock()
		return nil
	}
	if form.HasAttr(AttrInitialized) {
		c.mu.Unlock()
		c.page.unlock()
		c.log.Debug("form already initialized", "form_id", form.ID())
		return nil
	}

	formID := form.ID()
	cfg := c.resolver.Resolve(form, formID)
	h := &Handle{
		Form:    form,
		Config:  cfg,
		machine: fsm.NewFSM(StateDiscovered, lifecycleEvents, fsm.Callbacks{}),
	}
	_ = h.fire(ctx, EventConfigure)
	c.byNode[form.Node()] = h
	c.handles = append(c.handles, h)
	if cfg.PublicAPIKey != "" {
		form.SetAttr(AttrInitialized, "true")
	}
	c.mu.Unlock()
	c.page.unlock()

	if cfg.PublicAPIKey == "" {
		c.log.Warn("form has no Klaviyo account ID (public API key), skipping setup", "form_id", labelOrUnknown(formID))
		_ = h.fire(ctx, EventSkip)
		return h
	}
	_ = h.fire(ctx, EventArm)

	if cfg.Tracking.ViewForm {
		c.trackView(ctx, h)
	}
	c.log.Info("form initialized", "form_id", labelOrUnknown(formID), "account", cfg.PublicAPIKey)
	return h
}

// Submit fills the form with values and runs the submission pipeline.
// Validation and vendor failures are reported in the Outcome and on the
// bus; the returned error is only set when the form cannot be submitted.
func (c *Controller) Submit(ctx context.Context, h *Handle, values url.Values) (*Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s := h.State(); s == StateSucceeded || s == StateFailed {
		if err := h.fire(ctx, EventRearm); err != nil {
			return nil, err
		}
	}
	if h.State() != StateArmed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotArmed, labelOrUnknown(h.Form.ID()), h.State())
	}

	cfg := h.Config
	form := h.Form

	c.page.lock()
	form.Fill(values)
	ClearMessages(form)
	mapped := Map(form, cfg)
	if err := Validate(mapped); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			ShowError(form, vErr.Message)
		}
		c.page.unlock()

		_ = h.fire(ctx, EventReject)
		metrics.RecordSubmission(metrics.OutcomeInvalid)
		c.log.Info("submission rejected", "form_id", form.ID(), "reason", err)
		c.bus.Dispatch(SubmitEvent{Type: EventSubmitError, Form: form, FormData: mapped, Err: err})
		return &Outcome{State: h.State(), Mapped: mapped, Err: err}, nil
	}
	payload := BuildPayload(mapped, cfg, form)
	c.page.unlock()

	if err := h.fire(ctx, EventSubmit); err != nil {
		return nil, err
	}

	err := c.client.Submit(ctx, payload, cfg.PublicAPIKey, klaviyo.SubmitOptions{
		APIVersion: cfg.APIVersion,
		Debug:      cfg.Debug,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		c.log.Error("error submitting to Klaviyo", "form_id", form.ID(), "error", err)
		c.page.lock()
		ShowError(form, SubmitErrorMessage)
		c.page.unlock()

		_ = h.fire(ctx, EventFail)
		metrics.RecordSubmission(metrics.OutcomeFailed)
		c.bus.Dispatch(SubmitEvent{Type: EventSubmitError, Form: form, FormData: mapped, Err: err})
		return &Outcome{State: h.State(), Mapped: mapped, Payload: payload, Err: err}, nil
	}

	c.page.lock()
	ShowSuccess(form)
	c.page.unlock()

	if cfg.Tracking.SubmitForm {
		c.trackSubmit(ctx, h, mapped)
	}

	c.page.lock()
	TriggerHostSuccess(form)
	c.page.unlock()

	_ = h.fire(ctx, EventSucceed)
	metrics.RecordSubmission(metrics.OutcomeSucceeded)
	c.bus.Dispatch(SubmitEvent{Type: EventSubmitSuccess, Form: form, FormData: mapped, Payload: payload})
	c.log.Info("form submitted successfully", "form_id", form.ID(), "account", cfg.PublicAPIKey)

	return &Outcome{State: h.State(), Mapped: mapped, Payload: payload}, nil
}

// Blur runs phone validation on the form's phone field, as on blur or
// change. It reports false when the field holds an invalid number; forms
// without a phone field, or with phone formatting off, always pass.
func (c *Controller) Blur(h *Handle) bool {
	if !h.Config.UseLibPhoneNumber || h.State() == StateSkipped {
		return true
	}
	c.page.lock()
	defer c.page.unlock()

	field := PhoneField(h.Form, h.Config)
	if field == nil {
		return true
	}
	return validatePhoneInput(h.Form, field)
}

func (c *Controller) formProperties(h *Handle) map[string]interface{} {
	return map[string]interface{}{
		"Form Name":       h.Form.Label(),
		"Form ID":         h.Form.ID(),
		"Page URL":        c.page.URL(),
		"Page Title":      c.page.Title(),
		"Klaviyo Account": h.Config.PublicAPIKey,
	}
}

func (c *Controller) trackView(ctx context.Context, h *Handle) {
	if c.tracker == nil {
		return
	}
	res := c.tracker.Track(ctx, klaviyo.Event{
		Name:       klaviyo.EventViewedForm,
		Properties: c.formProperties(h),
		APIKey:     h.Config.PublicAPIKey,
	})
	c.log.Debug("tracked form view", "form_id", h.Form.ID(), "status", res.Status)
}

// trackSubmit reports the mapped attributes minus contact data.
func (c *Controller) trackSubmit(ctx context.Context, h *Handle, mapped MappedAttributes) {
	if c.tracker == nil {
		return
	}
	props := copyTree(mapped.Attributes)
	delete(props, "email")
	delete(props, "phone_number")
	for k, v := range c.formProperties(h) {
		props[k] = v
	}
	res := c.tracker.Track(ctx, klaviyo.Event{
		Name:       klaviyo.EventSubmittedForm,
		Properties: props,
		APIKey:     h.Config.PublicAPIKey,
	})
	c.log.Debug("tracked form submission", "form_id", h.Form.ID(), "status", res.Status)
}

func labelOrUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
