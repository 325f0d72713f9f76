package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedConfig(t *testing.T, form *Form) FormConfig {
	t.Helper()
	r := NewResolver(ResolverOptions{Defaults: DefaultFormConfig(), PublicAPIKey: "PK"})
	return r.Resolve(form, form.ID())
}

func TestMapCompanyToOrganization(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="email" value="jane@example.com">
<input name="company" value="Acme">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	cfg := DefaultFormConfig()
	cfg.FieldMapping = map[string]string{"company": "organization"}

	m := Map(form, cfg)
	assert.Equal(t, "Acme", m.Attributes["organization"])
	assert.NotContains(t, m.Attributes, "company")
}

func TestMapSplitsName(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="email" value="jane@example.com">
<input name="name" value="Jane Smith">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "Jane", m.Attributes["first_name"])
	assert.Equal(t, "Smith", m.Attributes["last_name"])
	assert.NotContains(t, m.Attributes, "name")
}

func TestMapSplitsMultiWordName(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="full-name" value="Mary Ann  van Dyke"></form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "Mary", m.Attributes["first_name"])
	assert.Equal(t, "Ann van Dyke", m.Attributes["last_name"])
}

func TestMapSingleWordNameOmitsLastName(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="name" value="Cher"></form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "Cher", m.Attributes["first_name"])
	assert.NotContains(t, m.Attributes, "last_name")
	assert.NotContains(t, m.Attributes, "name")
}

func TestMapKeepsNameWhenFirstNamePresent(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="first-name" value="Janet">
<input name="name" value="Jane Smith">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "Janet", m.Attributes["first_name"])
	assert.Equal(t, "Jane Smith", m.Attributes["name"])
}

func TestMapLocationPropertiesAndPaths(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-property-campaign="spring" data-klaviyo-property-source_page="home">
<input name="email" value="jane@example.com">
<input name="City" value="Austin">
<input name="zip" value="78701">
<input name="favorite_color" value="green">
<input name="shoe" value="42" data-klaviyo-field="properties.sizes.shoe">
<input name="referrer" value="ad" data-klaviyo-field="utm_source">
<input name="empty" value="">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	cfg := resolvedConfig(t, form)
	cfg.CustomProperties = map[string]interface{}{"site": "main"}

	m := Map(form, cfg)

	assert.Equal(t, map[string]interface{}{"city": "Austin", "zip": "78701"}, m.Attributes["location"])
	assert.Equal(t, "ad", m.Attributes["utm_source"])
	assert.Equal(t, "spring", m.Attributes["campaign"])
	assert.Equal(t, "home", m.Attributes["source_page"])

	props, ok := m.Attributes["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "main", props["site"])
	assert.Equal(t, "green", props["favorite_color"])
	assert.Equal(t, map[string]interface{}{"shoe": "42"}, props["sizes"])
	assert.NotContains(t, props, "empty")
	assert.NotContains(t, m.Attributes, "empty")
}

func TestMapPhoneFormatting(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="email" value="jane@example.com">
<input name="mobile_phone" value="(650) 253-0000">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "+16502530000", m.PhoneNumber())
	assert.False(t, m.PhoneRejected)
}

func TestMapPhoneUsesCountryField(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="work_phone" value="020 7183 8750">
<select name="country"><option value="GB" selected>UK</option></select>
</form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "+442071838750", m.PhoneNumber())
	assert.Equal(t, map[string]interface{}{"country": "GB"}, m.Attributes["location"])
}

func TestMapInvalidPhoneDropped(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="email" value="jane@example.com">
<input name="mobile_phone" value="12345">
</form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.NotContains(t, m.Attributes, "phone_number")
	assert.True(t, m.PhoneRejected)
}

func TestMapPhoneWithoutLibraryGoesToProperties(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="mobile_phone" value="12345"></form></body></html>`)
	form := mustForm(t, page, "#f")

	cfg := resolvedConfig(t, form)
	cfg.UseLibPhoneNumber = false

	m := Map(form, cfg)
	assert.Equal(t, map[string]interface{}{"mobile_phone": "12345"}, m.Attributes["properties"])
	assert.False(t, m.PhoneRejected)
}

func TestMapDefaultPhoneNameIsDirectTarget(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="phone" value="+1 650 253 0000"></form></body></html>`)
	form := mustForm(t, page, "#f")

	m := Map(form, resolvedConfig(t, form))
	assert.Equal(t, "+1 650 253 0000", m.PhoneNumber())
}

func TestMapIsIdempotent(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-property-campaign="spring">
<input name="email" value="jane@example.com">
<input name="name" value="Jane Smith">
<input name="city" value="Austin">
<input name="mobile_phone" value="650 253 0000">
<input name="favorite" value="tea">
<input type="checkbox" name="newsletter" checked>
</form></body></html>`)
	form := mustForm(t, page, "#f")
	cfg := resolvedConfig(t, form)
	cfg.CustomProperties = map[string]interface{}{"nested": map[string]interface{}{"a": "b"}}

	first := Map(form, cfg)
	second := Map(form, cfg)
	assert.Equal(t, first, second)
	assert.Equal(t, true, first.Attributes["properties"].(map[string]interface{})["newsletter"])
}

func TestSetPath(t *testing.T) {
	root := map[string]interface{}{"a": "scalar"}
	setPath(root, "a.b.c", 1)
	setPath(root, "x", 2)
	assert.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"b": map[string]interface{}{"c": 1}},
		"x": 2,
	}, root)
}
