package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-webflow/internal/config"
)

func TestResolveLayers(t *testing.T) {
	page := mustPage(t, `<html><body>
<form id="newsletter"
      data-klaviyo-list-id="ATTRLIST"
      data-klaviyo-api-version="2023-10-15"
      data-klaviyo-config='{"debug": true, "tracking": {"viewForm": false}, "fieldMapping": {"zipcode": "location.zip"}, "customProperties": {"source": "footer"}}'>
</form></body></html>`)
	form := mustForm(t, page, "#newsletter")

	defaults := DefaultFormConfig()
	defaults.ListID = "DEFAULTLIST"
	defaults.CustomProperties = map[string]interface{}{"site": "main"}

	r := NewResolver(ResolverOptions{
		Defaults:     defaults,
		PublicAPIKey: "GLOBAL",
		Forms: map[string]map[string]interface{}{
			"newsletter": {
				"listId":       "TABLELIST",
				"maxRetries":   5,
				"fieldMapping": map[string]interface{}{"organisation": "organization"},
			},
		},
	})

	cfg := r.Resolve(form, form.ID())

	assert.Equal(t, "ATTRLIST", cfg.ListID)
	assert.Equal(t, "GLOBAL", cfg.PublicAPIKey)
	assert.Equal(t, "2023-10-15", cfg.APIVersion)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.Tracking.ViewForm)
	assert.True(t, cfg.Tracking.SubmitForm)
	assert.True(t, cfg.UseLibPhoneNumber)
	assert.Equal(t, map[string]interface{}{"site": "main", "source": "footer"}, cfg.CustomProperties)

	assert.Equal(t, "location.zip", cfg.FieldMapping["zipcode"])
	assert.Equal(t, "organization", cfg.FieldMapping["organisation"])
	assert.Equal(t, "email", cfg.FieldMapping["email"])
	assert.Equal(t, "location.city", cfg.FieldMapping["city"])

	assert.Equal(t, map[string]interface{}{"site": "main"}, defaults.CustomProperties)
	assert.NotContains(t, DefaultFieldMappings, "zipcode")
}

func TestResolveAccountAttributeWins(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-account-id="FORMKEY"></form></body></html>`)
	r := NewResolver(ResolverOptions{Defaults: DefaultFormConfig(), PublicAPIKey: "GLOBAL"})

	cfg := r.Resolve(mustForm(t, page, "#f"), "f")
	assert.Equal(t, "FORMKEY", cfg.PublicAPIKey)
}

func TestResolveMalformedConfigIgnored(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-list-id="L1" data-klaviyo-config='{"listId": "X", broken'></form></body></html>`)
	r := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})

	cfg := r.Resolve(mustForm(t, page, "#f"), "f")
	assert.Equal(t, "L1", cfg.ListID)
	assert.Equal(t, "", cfg.PublicAPIKey)
	assert.Equal(t, "phone_number", cfg.FieldMapping["phone"])
}

func TestResolveConfigTypeMismatchIgnored(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-config='{"listId": "X", "maxRetries": "many"}'></form></body></html>`)
	r := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})

	cfg := r.Resolve(mustForm(t, page, "#f"), "f")
	assert.Equal(t, "", cfg.ListID)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestResolveIsFreshPerCall(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-config='{"customProperties": {"a": 1}}'></form></body></html>`)
	r := NewResolver(ResolverOptions{Defaults: DefaultFormConfig()})
	form := mustForm(t, page, "#f")

	first := r.Resolve(form, "f")
	first.CustomProperties["b"] = 2
	first.FieldMapping["extra"] = "x"

	second := r.Resolve(form, "f")
	assert.NotContains(t, second.CustomProperties, "b")
	assert.NotContains(t, second.FieldMapping, "extra")
}

func TestNewResolverFromConfig(t *testing.T) {
	off := false
	r := NewResolverFromConfig(config.KlaviyoConfig{
		PublicAPIKey:  "PK",
		FieldMappings: map[string]string{"mobile": "phone_number"},
		Defaults: config.FormDefaults{
			ListID:            "L9",
			Tracking:          config.TrackingDefaults{SubmitForm: &off},
			UseLibPhoneNumber: &off,
			MaxRetries:        2,
			APIVersion:        "latest",
		},
		Forms: map[string]map[string]interface{}{"b": {}, "a": {}},
	})

	assert.Equal(t, []string{"a", "b"}, r.FormIDs())

	page := mustPage(t, `<html><body><form id="x"></form></body></html>`)
	cfg := r.Resolve(mustForm(t, page, "#x"), "x")

	require.Equal(t, "PK", cfg.PublicAPIKey)
	assert.Equal(t, "L9", cfg.ListID)
	assert.True(t, cfg.Tracking.ViewForm)
	assert.False(t, cfg.Tracking.SubmitForm)
	assert.False(t, cfg.UseLibPhoneNumber)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "phone_number", cfg.FieldMapping["mobile"])
	assert.Equal(t, "email", cfg.FieldMapping["email"])
}
