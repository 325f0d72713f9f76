package forms

import (
	"encoding/json"
	"sort"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// Form attributes read during configuration.
const (
	AttrListID      = "data-klaviyo-list-id"
	AttrAccountID   = "data-klaviyo-account-id"
	AttrAPIVersion  = "data-klaviyo-api-version"
	AttrConfig      = "data-klaviyo-config"
	AttrInitialized = "data-klaviyo-initialized"
)

// TrackingConfig toggles the view and submit tracking events.
type TrackingConfig struct {
	ViewForm   bool `json:"viewForm"`
	SubmitForm bool `json:"submitForm"`
}

// FormConfig is the resolved per-form configuration. JSON names match the
// keys accepted by the data-klaviyo-config attribute.
type FormConfig struct {
	ListID            string                 `json:"listId,omitempty"`
	PublicAPIKey      string                 `json:"publicApiKey,omitempty"`
	FieldMapping      map[string]string      `json:"fieldMapping,omitempty"`
	Tracking          TrackingConfig         `json:"tracking"`
	CustomProperties  map[string]interface{} `json:"customProperties,omitempty"`
	UseLibPhoneNumber bool                   `json:"useLibPhoneNumber"`
	Debug             bool                   `json:"debug"`
	APIVersion        string                 `json:"apiVersion,omitempty"`
	MaxRetries        int                    `json:"maxRetries,omitempty"`
}

// DefaultFormConfig is the library-wide default layer.
func DefaultFormConfig() FormConfig {
	return FormConfig{
		Tracking:          TrackingConfig{ViewForm: true, SubmitForm: true},
		CustomProperties:  map[string]interface{}{},
		UseLibPhoneNumber: true,
	}
}

// DefaultFieldMappings translates common form field names into vendor
// attribute paths.
var DefaultFieldMappings = map[string]string{
	"email":        "email",
	"name":         "name",
	"full-name":    "name",
	"fullname":     "name",
	"first-name":   "first_name",
	"firstname":    "first_name",
	"last-name":    "last_name",
	"lastname":     "last_name",
	"phone":        "phone_number",
	"phone-number": "phone_number",
	"company":      "organization",
	"title":        "title",
	"image":        "image",
	"address1":     "location.address1",
	"address2":     "location.address2",
	"city":         "location.city",
	"country":      "location.country",
	"region":       "location.region",
	"zip":          "location.zip",
	"timezone":     "location.timezone",
	"ip":           "location.ip",
}

// clone deep-copies the maps so later layers never write into shared state.
func (c FormConfig) clone() FormConfig {
	out := c
	if c.FieldMapping != nil {
		out.FieldMapping = make(map[string]string, len(c.FieldMapping))
		for k, v := range c.FieldMapping {
			out.FieldMapping[k] = v
		}
	}
	out.CustomProperties = copyTree(c.CustomProperties)
	return out
}

// ResolverOptions seeds a Resolver.
type ResolverOptions struct {
	Defaults      FormConfig
	FieldMappings map[string]string
	Forms         map[string]map[string]interface{}
	PublicAPIKey  string
}

// Resolver builds the effective FormConfig for each form. Later layers
// override earlier ones: library defaults, the forms table entry, the
// list/account/version attributes, then the data-klaviyo-config JSON.
type Resolver struct {
	defaults  FormConfig
	mappings  map[string]string
	forms     map[string]map[string]interface{}
	globalKey string
	log       *logger.Entry
}

// NewResolver creates a resolver. A nil FieldMappings uses DefaultFieldMappings.
func NewResolver(opts ResolverOptions) *Resolver {
	mappings := opts.FieldMappings
	if mappings == nil {
		mappings = DefaultFieldMappings
	}
	return &Resolver{
		defaults:  opts.Defaults.clone(),
		mappings:  mappings,
		forms:     opts.Forms,
		globalKey: opts.PublicAPIKey,
		log:       logger.Component("forms"),
	}
}

// NewResolverFromConfig builds a resolver from the klaviyo config section.
// Configured field mappings are added to the defaults.
func NewResolverFromConfig(cfg config.KlaviyoConfig) *Resolver {
	defaults := DefaultFormConfig()
	d := cfg.Defaults
	defaults.ListID = d.ListID
	if d.Tracking.ViewForm != nil {
		defaults.Tracking.ViewForm = *d.Tracking.ViewForm
	}
	if d.Tracking.SubmitForm != nil {
		defaults.Tracking.SubmitForm = *d.Tracking.SubmitForm
	}
	if d.UseLibPhoneNumber != nil {
		defaults.UseLibPhoneNumber = *d.UseLibPhoneNumber
	}
	if d.CustomProperties != nil {
		defaults.CustomProperties = copyTree(d.CustomProperties)
	}
	defaults.Debug = d.Debug
	defaults.APIVersion = d.APIVersion
	defaults.MaxRetries = d.MaxRetries

	mappings := make(map[string]string, len(DefaultFieldMappings)+len(cfg.FieldMappings))
	for k, v := range DefaultFieldMappings {
		mappings[k] = v
	}
	for k, v := range cfg.FieldMappings {
		mappings[k] = v
	}

	return NewResolver(ResolverOptions{
		Defaults:      defaults,
		FieldMappings: mappings,
		Forms:         cfg.Forms,
		PublicAPIKey:  cfg.PublicAPIKey,
	})
}

// FormIDs returns the ids of the configured forms table, sorted.
func (r *Resolver) FormIDs() []string {
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve computes the form's configuration. It never fails: a malformed
// layer is logged and skipped.
func (r *Resolver) Resolve(form *Form, formID string) FormConfig {
	result := r.defaults.clone()

	if formID != "" {
		if override, ok := r.forms[formID]; ok {
			raw, err := json.Marshal(override)
			if err == nil {
				result, err = mergeJSON(result, raw)
			}
			if err != nil {
				r.log.Error("error applying forms table entry", "form_id", formID, "error", err)
			}
		}
	}

	if v := form.Attr(AttrListID); v != "" {
		result.ListID = v
	}
	if v := form.Attr(AttrAccountID); v != "" {
		result.PublicAPIKey = v
	}
	if result.PublicAPIKey == "" {
		result.PublicAPIKey = r.globalKey
	}
	if v := form.Attr(AttrAPIVersion); v != "" {
		result.APIVersion = v
	}

	if raw := form.Attr(AttrConfig); raw != "" {
		merged, err := mergeJSON(result, []byte(raw))
		if err != nil {
			r.log.Error("error parsing data-klaviyo-config attribute", "form_id", formID, "error", err)
		} else {
			result = merged
		}
	}

	mapping := make(map[string]string, len(r.mappings)+len(result.FieldMapping))
	for k, v := range r.mappings {
		mapping[k] = v
	}
	for k, v := range result.FieldMapping {
		mapping[k] = v
	}
	result.FieldMapping = mapping

	return result
}

// mergeJSON decodes raw over a copy of base. Objects merge key by key;
// on any decode error base is returned unchanged.
func mergeJSON(base FormConfig, raw []byte) (FormConfig, error) {
	next := base.clone()
	if err := json.Unmarshal(raw, &next); err != nil {
		return base, err
	}
	return next, nil
}

// copyTree deep-copies nested string-keyed maps.
func copyTree(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]interface{}); ok {
			out[k] = copyTree(child)
			continue
		}
		out[k] = v
	}
	return out
}
