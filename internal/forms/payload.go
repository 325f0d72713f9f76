package forms

import (
	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
)

// Form attributes read while building the payload.
const (
	AttrSource = "data-klaviyo-source"
	AttrName   = "data-name"
)

// DefaultSource labels submissions from forms with no source, name or id.
const DefaultSource = "Webflow Form"

var consentFields = map[string][]string{
	klaviyo.ChannelEmail: {"email_consent", "email_marketing_consent"},
	klaviyo.ChannelSMS:   {"sms_consent", "sms_marketing_consent"},
}

// CustomSource picks the submission label: data-klaviyo-source, data-name,
// the element id, then DefaultSource.
func CustomSource(form *Form) string {
	for _, v := range []string{form.Attr(AttrSource), form.Attr(AttrName), form.ID()} {
		if v != "" {
			return v
		}
	}
	return DefaultSource
}

// optedOut reports whether a consent control on the form carries "false".
func optedOut(form *Form, channel string) bool {
	for _, name := range consentFields[channel] {
		if v, ok := form.FieldValue(name); ok && v == "false" {
			return true
		}
	}
	return false
}

// BuildPayload assembles the subscription request. Each channel with a
// contact value is subscribed unless the form opts it out; the list comes
// from the form attribute, then cfg.ListID. m is not modified.
func BuildPayload(m MappedAttributes, cfg FormConfig, form *Form) *klaviyo.SubscriptionPayload {
	attributes := copyTree(m.Attributes)
	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	subscriptions := make(map[string]interface{})
	if m.Email() != "" && !optedOut(form, klaviyo.ChannelEmail) {
		subscriptions[klaviyo.ChannelEmail] = klaviyo.Subscribed()
	}
	if m.PhoneNumber() != "" && !optedOut(form, klaviyo.ChannelSMS) {
		subscriptions[klaviyo.ChannelSMS] = klaviyo.Subscribed()
	}
	if len(subscriptions) > 0 {
		attributes["subscriptions"] = subscriptions
	}

	listID := form.Attr(AttrListID)
	if listID == "" {
		listID = cfg.ListID
	}

	return klaviyo.NewSubscriptionPayload(CustomSource(form), attributes, listID)
}
