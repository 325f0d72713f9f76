package forms

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Field and form attributes read while mapping.
const (
	AttrField          = "data-klaviyo-field"
	AttrPropertyPrefix = "data-klaviyo-property-"
)

// MappedAttributes is the vendor attribute tree built from one submission.
// PhoneRejected records that a phone-like field carried a non-empty value
// that could not be normalized.
type MappedAttributes struct {
	Attributes    map[string]interface{}
	PhoneRejected bool
}

// String returns a top-level attribute as text, or "".
func (m MappedAttributes) String(key string) string {
	if s, ok := m.Attributes[key].(string); ok {
		return s
	}
	return ""
}

// Email returns the email attribute, or "".
func (m MappedAttributes) Email() string { return m.String("email") }

// PhoneNumber returns the phone_number attribute, or "".
func (m MappedAttributes) PhoneNumber() string { return m.String("phone_number") }

// Map walks the form's submitted fields and builds the attribute tree. Empty
// values are skipped. Each field goes to the first matching destination:
// location.* targets, known target attributes, the phone formatter, a
// data-klaviyo-field path, or the properties bag seeded from
// CustomProperties.
func Map(form *Form, cfg FormConfig) MappedAttributes {
	mappings := cfg.FieldMapping
	targets := make(map[string]bool, len(mappings))
	for _, target := range mappings {
		targets[target] = true
	}

	attributes := make(map[string]interface{})
	location := make(map[string]interface{})
	properties := copyTree(cfg.CustomProperties)
	if properties == nil {
		properties = make(map[string]interface{})
	}
	var phoneRejected bool

	for _, field := range form.Data() {
		if field.IsEmpty() {
			continue
		}
		name := field.Name
		lower := strings.ToLower(name)

		mappedKey := name
		if m, ok := mappings[lower]; ok && m != "" {
			mappedKey = m
		}

		if strings.HasPrefix(mappedKey, "location.") {
			location[strings.TrimPrefix(mappedKey, "location.")] = field.Value
			continue
		}

		if targets[mappedKey] {
			attributes[mappedKey] = field.Value
			continue
		}

		if strings.Contains(lower, "phone") && cfg.UseLibPhoneNumber {
			if formatted, ok := FormatE164(field.String(), countryFor(form)); ok {
				attributes["phone_number"] = formatted
			} else {
				phoneRejected = true
			}
			continue
		}

		if path := customFieldPath(form, name); path != "" {
			setPath(attributes, path, field.Value)
			continue
		}

		properties[name] = field.Value
	}

	if len(location) > 0 {
		mergeInto(attributes, "location", location)
	}
	if len(properties) > 0 {
		mergeInto(attributes, "properties", properties)
	}

	splitName(attributes)

	for _, attr := range form.Attributes() {
		if strings.HasPrefix(attr.Key, AttrPropertyPrefix) {
			attributes[strings.TrimPrefix(attr.Key, AttrPropertyPrefix)] = attr.Val
		}
	}

	return MappedAttributes{Attributes: attributes, PhoneRejected: phoneRejected}
}

// customFieldPath returns the data-klaviyo-field of the first control named name.
func customFieldPath(form *Form, name string) string {
	var path string
	form.FieldsNamed(name).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		path, _ = s.Attr(AttrField)
		return false
	})
	return strings.TrimSpace(path)
}

// setPath writes value at a dotted path, creating intermediate objects and
// replacing non-object values in the way.
func setPath(root map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	node := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

func mergeInto(attributes map[string]interface{}, key string, values map[string]interface{}) {
	existing, ok := attributes[key].(map[string]interface{})
	if !ok {
		attributes[key] = values
		return
	}
	for k, v := range values {
		existing[k] = v
	}
}

// splitName turns a lone "name" into first_name / last_name on whitespace.
func splitName(attributes map[string]interface{}) {
	if _, ok := attributes["first_name"]; ok {
		return
	}
	if _, ok := attributes["last_name"]; ok {
		return
	}
	full, ok := attributes["name"].(string)
	if !ok {
		return
	}
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return
	}
	attributes["first_name"] = parts[0]
	if len(parts) > 1 {
		attributes["last_name"] = strings.Join(parts[1:], " ")
	}
	delete(attributes, "name")
}
