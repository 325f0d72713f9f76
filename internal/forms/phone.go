package forms

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nyaruka/phonenumbers"
)

// DefaultCountry is used when the form has no country field.
const DefaultCountry = "US"

// InvalidPhoneClass marks a phone input that failed validation on blur.
const InvalidPhoneClass = "klaviyo-invalid-phone"

func parsePhone(raw, country string) (*phonenumbers.PhoneNumber, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	region := strings.ToUpper(strings.TrimSpace(country))
	if region == "" {
		region = DefaultCountry
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return nil, false
	}
	return num, true
}

// FormatE164 normalizes raw to E.164 using country as the default region.
// ok is false for unparsable or invalid numbers.
func FormatE164(raw, country string) (string, bool) {
	num, ok := parsePhone(raw, country)
	if !ok {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// FormatInternational renders raw in international display form.
func FormatInternational(raw, country string) (string, bool) {
	num, ok := parsePhone(raw, country)
	if !ok {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL), true
}

// countryFor reads the form's country field, defaulting to US.
func countryFor(form *Form) string {
	if v, ok := form.FieldValue("country"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return DefaultCountry
}

// PhoneField returns the first phone input of the form: the well-known
// names, an explicit data-klaviyo-field="phone_number", then any field the
// mapping sends to phone_number.
func PhoneField(form *Form, cfg FormConfig) *goquery.Selection {
	candidates := []func() *goquery.Selection{
		func() *goquery.Selection { return form.FieldsNamed("phone") },
		func() *goquery.Selection { return form.FieldsNamed("phone-number") },
		func() *goquery.Selection { return form.FieldsNamed("phone_number") },
		func() *goquery.Selection {
			return form.Fields().FilterFunction(func(_ int, s *goquery.Selection) bool {
				v, _ := s.Attr(AttrField)
				return v == "phone_number"
			})
		},
	}

	var mapped []string
	for source, target := range cfg.FieldMapping {
		if target == "phone_number" {
			mapped = append(mapped, source)
		}
	}
	sort.Strings(mapped)
	for _, name := range mapped {
		name := name
		candidates = append(candidates, func() *goquery.Selection { return form.FieldsNamed(name) })
	}

	for _, find := range candidates {
		if sel := find(); sel.Length() > 0 {
			return sel.First()
		}
	}
	return nil
}

// validatePhoneInput reformats a valid number in place or flags an invalid one.
// Empty inputs are left alone and count as valid.
func validatePhoneInput(form *Form, field *goquery.Selection) bool {
	value := controlValue(field)
	if strings.TrimSpace(value) == "" {
		return true
	}
	formatted, ok := FormatInternational(value, countryFor(form))
	if !ok {
		field.AddClass(InvalidPhoneClass)
		return false
	}
	field.SetAttr("value", formatted)
	field.RemoveClass(InvalidPhoneClass)
	return true
}
