package forms

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a parsed HTML document. All DOM reads and writes made by the
// Controller go through the page lock.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
	url string
}

// ParsePage parses an HTML document served from pageURL.
func ParsePage(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{doc: doc, url: pageURL}, nil
}

// ParsePageString parses an in-memory HTML document.
func ParsePageString(markup, pageURL string) (*Page, error) {
	return ParsePage(strings.NewReader(markup), pageURL)
}

// URL returns the page location.
func (p *Page) URL() string { return p.url }

// Title returns the document title.
func (p *Page) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// HTML renders the current document, including any feedback written by the
// Controller.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

// Find runs a selector against the whole document.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// ElementByID returns the first element with the given id.
func (p *Page) ElementByID(id string) *goquery.Selection {
	return p.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}

func (p *Page) lock()   { p.mu.Lock() }
func (p *Page) unlock() { p.mu.Unlock() }

// Form is one opted-in form element on a Page.
type Form struct {
	sel  *goquery.Selection
	page *Page
}

func newForm(page *Page, sel *goquery.Selection) *Form {
	return &Form{sel: sel.First(), page: page}
}

// Node returns the underlying element node.
func (f *Form) Node() *html.Node {
	if f.sel.Length() == 0 {
		return nil
	}
	return f.sel.Get(0)
}

// Page returns the owning page.
func (f *Form) Page() *Page { return f.page }

// Selection exposes the form element for read-only inspection.
func (f *Form) Selection() *goquery.Selection { return f.sel }

// ID returns the element id, or "".
func (f *Form) ID() string {
	id, _ := f.sel.Attr("id")
	return id
}

// Attr returns a form attribute, or "" when absent.
func (f *Form) Attr(name string) string {
	v, _ := f.sel.Attr(name)
	return v
}

// HasAttr reports whether the form carries the attribute.
func (f *Form) HasAttr(name string) bool {
	_, ok := f.sel.Attr(name)
	return ok
}

// SetAttr sets a form attribute.
func (f *Form) SetAttr(name, value string) { f.sel.SetAttr(name, value) }

// Attributes returns the element's attributes in markup order.
func (f *Form) Attributes() []html.Attribute {
	n := f.Node()
	if n == nil {
		return nil
	}
	out := make([]html.Attribute, len(n.Attr))
	copy(out, n.Attr)
	return out
}

// Find runs a selector within the form.
func (f *Form) Find(selector string) *goquery.Selection {
	return f.sel.Find(selector)
}

// Label is the human name used for tracking: data-name, then id.
func (f *Form) Label() string {
	if name := f.Attr("data-name"); name != "" {
		return name
	}
	if id := f.ID(); id != "" {
		return id
	}
	return "Unknown Form"
}

// Fields returns the named input, select and textarea elements in document order.
func (f *Form) Fields() *goquery.Selection {
	return f.sel.Find("input, select, textarea").FilterFunction(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		return name != ""
	})
}

// FieldsNamed returns every control whose name attribute equals name.
func (f *Form) FieldsNamed(name string) *goquery.Selection {
	return f.Fields().FilterFunction(func(_ int, s *goquery.Selection) bool {
		n, _ := s.Attr("name")
		return n == name
	})
}

// FieldValue returns the current value of the first control named name.
func (f *Form) FieldValue(name string) (string, bool) {
	field := f.FieldsNamed(name).First()
	if field.Length() == 0 {
		return "", false
	}
	return controlValue(field), true
}

// controlValue reads a control's value the way the DOM .value property does.
func controlValue(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "textarea":
		return s.Text()
	case "select":
		opt := selectedOption(s)
		if opt == nil {
			return ""
		}
		return optionValue(opt)
	default:
		v, ok := s.Attr("value")
		if !ok && isCheckable(s) {
			return "on"
		}
		return v
	}
}

func selectedOption(s *goquery.Selection) *goquery.Selection {
	opts := s.Find("option")
	selected := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
		_, ok := o.Attr("selected")
		return ok
	})
	if selected.Length() > 0 {
		return selected.First()
	}
	if opts.Length() > 0 {
		return opts.First()
	}
	return nil
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

func inputType(s *goquery.Selection) string {
	t, _ := s.Attr("type")
	if t == "" {
		return "text"
	}
	return strings.ToLower(t)
}

func isCheckable(s *goquery.Selection) bool {
	if goquery.NodeName(s) != "input" {
		return false
	}
	t := inputType(s)
	return t == "checkbox" || t == "radio"
}

// Field is one (name, value) pair of a RawSubmission. Value is a string, or
// the boolean true for a checked checkbox without a value attribute.
type Field struct {
	Name  string
	Value interface{}
}

// IsEmpty reports whether the value carries nothing to submit.
func (f Field) IsEmpty() bool {
	switch v := f.Value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	}
	return false
}

// String renders the value as text.
func (f Field) String() string {
	if s, ok := f.Value.(string); ok {
		return s
	}
	return fmt.Sprint(f.Value)
}

var skippedInputTypes = map[string]bool{
	"submit": true, "button": true, "reset": true, "image": true, "file": true,
}

// Data collects the RawSubmission: enabled, named controls in document
// order, unchecked checkboxes and radios left out. Names are unique; a
// repeated name keeps its first position and takes the last value.
func (f *Form) Data() []Field {
	var out []Field
	index := make(map[string]int)

	add := func(name string, value interface{}) {
		if i, ok := index[name]; ok {
			out[i].Value = value
			return
		}
		index[name] = len(out)
		out = append(out, Field{Name: name, Value: value})
	}

	f.Fields().Each(func(_ int, s *goquery.Selection) {
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		name, _ := s.Attr("name")

		switch goquery.NodeName(s) {
		case "textarea":
			add(name, s.Text())
		case "select":
			if opt := selectedOption(s); opt != nil {
				add(name, optionValue(opt))
			}
		default:
			t := inputType(s)
			if skippedInputTypes[t] {
				return
			}
			if t == "checkbox" || t == "radio" {
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				if v, ok := s.Attr("value"); ok {
					add(name, v)
				} else {
					add(name, true)
				}
				return
			}
			v, _ := s.Attr("value")
			add(name, v)
		}
	})
	return out
}

// Fill writes submitted values into the form's controls the way a user
// would: text-like inputs get their value attribute, textareas their text,
// selects and radios select the matching option, and checkboxes are checked
// when their value (or "on"/"true" for valueless boxes) is present. Controls
// not named in values keep their authored state.
func (f *Form) Fill(values url.Values) {
	for name, vals := range values {
		fields := f.FieldsNamed(name)
		textIndex := 0
		fields.Each(func(_ int, s *goquery.Selection) {
			switch goquery.NodeName(s) {
			case "textarea":
				if textIndex < len(vals) {
					s.SetText(vals[textIndex])
					textIndex++
				}
			case "select":
				if len(vals) == 0 {
					return
				}
				want := vals[0]
				s.Find("option").Each(func(_ int, o *goquery.Selection) {
					if optionValue(o) == want {
						o.SetAttr("selected", "selected")
					} else {
						o.RemoveAttr("selected")
					}
				})
			default:
				switch inputType(s) {
				case "checkbox":
					v, hasValue := s.Attr("value")
					if setChecked(hasValue, v, vals) {
						s.SetAttr("checked", "checked")
					} else {
						s.RemoveAttr("checked")
					}
				case "radio":
					v := controlValue(s)
					if len(vals) > 0 && vals[0] == v {
						s.SetAttr("checked", "checked")
					} else {
						s.RemoveAttr("checked")
					}
				default:
					if skippedInputTypes[inputType(s)] {
						return
					}
					if textIndex < len(vals) {
						s.SetAttr("value", vals[textIndex])
						textIndex++
					}
				}
			}
		})
	}
}

func setChecked(hasValue bool, value string, vals []string) bool {
	for _, v := range vals {
		if hasValue && v == value {
			return true
		}
		if !hasValue {
			switch strings.ToLower(v) {
			case "on", "true", "1", "yes":
				return true
			}
		}
	}
	return false
}
