package forms

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	errs     []error
	payloads []*klaviyo.SubscriptionPayload
	keys     []string
	opts     []klaviyo.SubmitOptions
}

func (f *fakeSubmitter) Submit(_ context.Context, payload *klaviyo.SubscriptionPayload, apiKey string, opts klaviyo.SubmitOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	f.keys = append(f.keys, apiKey)
	f.opts = append(f.opts, opts)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeTracker struct {
	mu     sync.Mutex
	events []klaviyo.Event
}

func (f *fakeTracker) Track(_ context.Context, event klaviyo.Event) klaviyo.TrackResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return klaviyo.TrackResult{Status: klaviyo.StatusTracked, Event: event.Name}
}

func (f *fakeTracker) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}

const lifecycleFixture = `<html><head><title>Join</title></head><body>
<form id="news" data-name="Newsletter" data-klaviyo-account-id="PK" data-klaviyo-list-id="L1">
  <input name="email">
  <input name="first_name">
  <input name="phone">
  <button type="submit">Join</button>
</form>
<form id="orphan" data-klaviyo-form><input name="email"></form>
<form id="plain"><input name="email"></form>
</body></html>`

func newTestController(t *testing.T, markup string) (*Controller, *fakeSubmitter, *fakeTracker) {
	t.Helper()
	page := mustPage(t, markup)
	resolver := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})
	sub := &fakeSubmitter{}
	tr := &fakeTracker{}
	return NewController(page, resolver, sub, tr, nil), sub, tr
}

func TestInitArmsAndSkips(t *testing.T) {
	c, _, tr := newTestController(t, lifecycleFixture)

	armed := c.Init(context.Background())
	require.Len(t, armed, 1)
	assert.Equal(t, "news", armed[0].Form.ID())
	assert.Equal(t, StateArmed, armed[0].State())
	assert.Equal(t, "true", armed[0].Form.Attr(AttrInitialized))

	orphan := c.Lookup("orphan")
	require.NotNil(t, orphan)
	assert.Equal(t, StateSkipped, orphan.State())
	assert.False(t, orphan.Form.HasAttr(AttrInitialized))

	assert.Nil(t, c.Lookup("plain"))
	assert.Len(t, c.Handles(), 2)

	require.Len(t, tr.events, 1)
	view := tr.events[0]
	assert.Equal(t, klaviyo.EventViewedForm, view.Name)
	assert.Equal(t, "PK", view.APIKey)
	assert.Equal(t, "Newsletter", view.Properties["Form Name"])
	assert.Equal(t, "news", view.Properties["Form ID"])
	assert.Equal(t, "https://example.com/signup", view.Properties["Page URL"])
	assert.Equal(t, "Join", view.Properties["Page Title"])

	// A second Init does not re-arm or re-track.
	assert.Empty(t, c.Init(context.Background()))
	assert.Len(t, tr.events, 1)
}

func TestInitIgnoresFormsInitializedElsewhere(t *testing.T) {
	page := mustPage(t, lifecycleFixture)
	resolver := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})

	first := NewController(page, resolver, &fakeSubmitter{}, nil, nil)
	require.Len(t, first.Init(context.Background()), 1)

	second := NewController(page, resolver, &fakeSubmitter{}, nil, nil)
	assert.Empty(t, second.Init(context.Background()))
	assert.Nil(t, second.Lookup("news"))
}

func TestInitViewTrackingDisabled(t *testing.T) {
	markup := `<html><body><form id="f" data-klaviyo-account-id="PK"
data-klaviyo-config='{"tracking":{"viewForm":false}}'><input name="email"></form></body></html>`
	c, _, tr := newTestController(t, markup)

	require.Len(t, c.Init(context.Background()), 1)
	assert.Empty(t, tr.events)
}

func TestSubmitSuccess(t *testing.T) {
	c, sub, tr := newTestController(t, lifecycleFixture)
	h := c.Init(context.Background())[0]

	var got []SubmitEvent
	c.Bus().On(EventSubmitSuccess, func(ev SubmitEvent) { got = append(got, ev) })

	out, err := c.Submit(context.Background(), h, url.Values{
		"email":      {"jane@example.com"},
		"first_name": {"Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.NoError(t, out.Err)
	require.NotNil(t, out.Payload)

	require.Len(t, sub.payloads, 1)
	assert.Equal(t, "PK", sub.keys[0])
	assert.Equal(t, "L1", sub.payloads[0].ListID())
	assert.Equal(t, "Newsletter", sub.payloads[0].Data.Attributes.CustomSource)
	assert.Equal(t, "jane@example.com", sub.payloads[0].ProfileAttributes()["email"])

	require.Len(t, got, 1)
	assert.Equal(t, sub.payloads[0], got[0].Payload)
	assert.Equal(t, "Jane", got[0].FormData.String("first_name"))

	assert.Equal(t, []string{klaviyo.EventViewedForm, klaviyo.EventSubmittedForm}, tr.names())
	submitted := tr.events[1].Properties
	assert.NotContains(t, submitted, "email")
	assert.Equal(t, "Jane", submitted["first_name"])
	assert.Equal(t, "news", submitted["Form ID"])

	assert.Equal(t, 1, h.Form.Find("div.custom-success").Length())
	assert.Equal(t, "none", StyleValue(h.Form.Find("input"), "display"))
}

func TestSubmitVendorFailure(t *testing.T) {
	c, sub, _ := newTestController(t, lifecycleFixture)
	h := c.Init(context.Background())[0]
	apiErr := &klaviyo.APIError{Status: 500}
	sub.errs = []error{apiErr}

	var got []SubmitEvent
	c.Bus().OnForm(h.Form, EventSubmitError, func(ev SubmitEvent) { got = append(got, ev) })

	out, err := c.Submit(context.Background(), h, url.Values{"email": {"jane@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, apiErr)

	require.Len(t, got, 1)
	assert.Equal(t, apiErr, got[0].Err)
	assert.Equal(t, SubmitErrorMessage, h.Form.Find("div.custom-error").Text())

	// The form re-arms on the next submission.
	out, err = c.Submit(context.Background(), h, url.Values{"email": {"jane@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Len(t, sub.payloads, 2)
}

func TestSubmitValidationRejects(t *testing.T) {
	c, sub, tr := newTestController(t, lifecycleFixture)
	h := c.Init(context.Background())[0]

	var got []SubmitEvent
	c.Bus().On(EventSubmitError, func(ev SubmitEvent) { got = append(got, ev) })

	out, err := c.Submit(context.Background(), h, url.Values{"first_name": {"Jane"}})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)

	var vErr *ValidationError
	require.True(t, errors.As(out.Err, &vErr))
	assert.Equal(t, MsgMissingContact, vErr.Message)
	assert.Empty(t, sub.payloads)
	assert.Len(t, tr.events, 1)

	require.Len(t, got, 1)
	assert.Nil(t, got[0].Payload)
	assert.Equal(t, MsgMissingContact, h.Form.Find("div.custom-error").Text())
}

func TestSubmitSkippedForm(t *testing.T) {
	c, sub, _ := newTestController(t, lifecycleFixture)
	c.Init(context.Background())

	_, err := c.Submit(context.Background(), c.Lookup("orphan"), url.Values{"email": {"a@b.co"}})
	assert.ErrorIs(t, err, ErrNotArmed)
	assert.Empty(t, sub.payloads)
}

func TestSubmitPassesClientOptions(t *testing.T) {
	markup := `<html><body><form id="f" data-klaviyo-account-id="PK" data-klaviyo-api-version="2023-10-15"
data-klaviyo-config='{"debug":true,"maxRetries":1}'><input name="email"></form></body></html>`
	c, sub, _ := newTestController(t, markup)
	h := c.Init(context.Background())[0]

	_, err := c.Submit(context.Background(), h, url.Values{"email": {"jane@example.com"}})
	require.NoError(t, err)
	require.Len(t, sub.opts, 1)
	assert.Equal(t, klaviyo.SubmitOptions{APIVersion: "2023-10-15", Debug: true, MaxRetries: 1}, sub.opts[0])
}

func TestSubmitHostAjaxSuccess(t *testing.T) {
	markup := `<html><body><div class="w-form">
<form id="f" data-klaviyo-account-id="PK" data-wf-form-ajax="true"><input name="email"></form>
<div class="w-form-done" style="display: none">Thank you</div>
<div class="w-form-fail">Oops</div>
</div></body></html>`
	c, _, _ := newTestController(t, markup)
	h := c.Init(context.Background())[0]

	out, err := c.Submit(context.Background(), h, url.Values{"email": {"jane@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, 0, h.Form.Find(".custom-success").Length())
	assert.Equal(t, "block", StyleValue(c.page.Find(".w-form-done"), "display"))
	assert.Equal(t, "none", StyleValue(c.page.Find(".w-form-fail"), "display"))
}

func TestBlurFormatsPhone(t *testing.T) {
	c, _, _ := newTestController(t, lifecycleFixture)
	h := c.Init(context.Background())[0]
	phone := h.Form.FieldsNamed("phone")

	phone.SetAttr("value", "(650) 253-0000")
	assert.True(t, c.Blur(h))
	value, _ := h.Form.FieldValue("phone")
	assert.Equal(t, "+1 650-253-0000", value)

	phone.SetAttr("value", "123")
	assert.False(t, c.Blur(h))
	assert.True(t, phone.HasClass(InvalidPhoneClass))

	phone.SetAttr("value", "")
	assert.True(t, c.Blur(h))
}

func TestBlurWithoutPhoneLibrary(t *testing.T) {
	markup := `<html><body><form id="f" data-klaviyo-account-id="PK"
data-klaviyo-config='{"useLibPhoneNumber":false}'><input name="phone" value="123"></form></body></html>`
	c, _, _ := newTestController(t, markup)
	h := c.Init(context.Background())[0]

	assert.True(t, c.Blur(h))
	assert.False(t, h.Form.FieldsNamed("phone").HasClass(InvalidPhoneClass))
}

type stallingTracker struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *stallingTracker) Track(_ context.Context, _ klaviyo.Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.release
	return errors.New("tracking endpoint unavailable")
}

func TestSubmitDoesNotWaitForTracking(t *testing.T) {
	page := mustPage(t, lifecycleFixture)
	resolver := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})
	sub := &fakeSubmitter{}
	queue := klaviyo.NewEventQueue()
	c := NewController(page, resolver, sub, queue, nil)

	h := c.Init(context.Background())[0]
	tracker := &stallingTracker{release: make(chan struct{})}
	queue.Ready(context.Background(), tracker)

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Submit(context.Background(), h, url.Values{"email": {"jane@example.com"}})
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, StateSucceeded, res.out.State)
	case <-time.After(time.Second):
		t.Fatal("Submit waited on the tracker")
	}
	require.Len(t, sub.payloads, 1)

	close(tracker.release)
	queue.Wait()
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Equal(t, 2, tracker.calls)
}

func TestConcurrentInitArmsOnce(t *testing.T) {
	page := mustPage(t, lifecycleFixture)
	resolver := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})
	tr := &fakeTracker{}
	controllers := []*Controller{
		NewController(page, resolver, &fakeSubmitter{}, tr, nil),
		NewController(page, resolver, &fakeSubmitter{}, tr, nil),
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		armed int
	)
	for i := 0; i < 8; i++ {
		c := controllers[i%len(controllers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(c.Init(context.Background()))
			mu.Lock()
			armed += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, armed)
	assert.Equal(t, []string{klaviyo.EventViewedForm}, tr.names())
}
