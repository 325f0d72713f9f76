package klaviyo

// ConsentSubscribed is the only consent value ever transmitted; an opt-out
// is expressed by omitting the channel.
const ConsentSubscribed = "SUBSCRIBED"

// Channel keys under profile attributes.subscriptions.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// SubscriptionPayload is the request body for the client subscriptions endpoint.
type SubscriptionPayload struct {
	Data Subscription `json:"data"`
}

type Subscription struct {
	Type       string                 `json:"type"`
	Attributes SubscriptionAttributes `json:"attributes"`
}

type SubscriptionAttributes struct {
	CustomSource  string         `json:"custom_source"`
	Profile       ProfileRef     `json:"profile"`
	Relationships *Relationships `json:"relationships,omitempty"`
}

type ProfileRef struct {
	Data Profile `json:"data"`
}

// Profile carries the mapped attribute tree.
type Profile struct {
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
}

type Relationships struct {
	List ListRef `json:"list"`
}

type ListRef struct {
	Data ResourceIdentifier `json:"data"`
}

type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ChannelConsent is the value stored under subscriptions.email / subscriptions.sms.
type ChannelConsent struct {
	Marketing MarketingConsent `json:"marketing"`
}

type MarketingConsent struct {
	Consent string `json:"consent"`
}

// Subscribed returns the consent block for an opted-in channel.
func Subscribed() ChannelConsent {
	return ChannelConsent{Marketing: MarketingConsent{Consent: ConsentSubscribed}}
}

// NewSubscriptionPayload wraps profile attributes in the subscription
// envelope. The list relationship is omitted when listID is empty.
func NewSubscriptionPayload(customSource string, attributes map[string]interface{}, listID string) *SubscriptionPayload {
	p := &SubscriptionPayload{Data: Subscription{
		Type: "subscription",
		Attributes: SubscriptionAttributes{
			CustomSource: customSource,
			Profile: ProfileRef{Data: Profile{
				Type:       "profile",
				Attributes: attributes,
			}},
		},
	}}
	if listID != "" {
		p.Data.Attributes.Relationships = &Relationships{List: ListRef{
			Data: ResourceIdentifier{Type: "list", ID: listID},
		}}
	}
	return p
}

// ListID returns the targeted list, or "" when none.
func (p *SubscriptionPayload) ListID() string {
	if p.Data.Attributes.Relationships == nil {
		return ""
	}
	return p.Data.Attributes.Relationships.List.Data.ID
}

// ProfileAttributes returns the mapped attribute tree.
func (p *SubscriptionPayload) ProfileAttributes() map[string]interface{} {
	return p.Data.Attributes.Profile.Data.Attributes
}
