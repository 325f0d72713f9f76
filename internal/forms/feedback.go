package forms

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	errorSelector   = ".form-error, .custom-error, .w-form-fail"
	successSelector = ".form-success, .custom-success, .w-form-done"

	// AttrHostAjax marks forms whose host page renders its own AJAX success UI.
	AttrHostAjax = "data-wf-form-ajax"
	// AttrSuccessMessage overrides the default success text.
	AttrSuccessMessage = "data-klaviyo-success-message"

	DefaultSuccessMessage = "Thanks for subscribing!"
	SubmitErrorMessage    = "Error submitting form to Klaviyo. Please try again."
)

var successPolicy = bluemonday.UGCPolicy()

// setStyle sets one inline style property on every node of sel, keeping
// the other declarations in order.
func setStyle(sel *goquery.Selection, prop, value string) {
	sel.Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		var decls []string
		replaced := false
		for _, decl := range strings.Split(style, ";") {
			decl = strings.TrimSpace(decl)
			if decl == "" {
				continue
			}
			name := decl
			if i := strings.Index(decl, ":"); i >= 0 {
				name = decl[:i]
			}
			if strings.EqualFold(strings.TrimSpace(name), prop) {
				decl = prop + ": " + value
				replaced = true
			}
			decls = append(decls, decl)
		}
		if !replaced {
			decls = append(decls, prop+": "+value)
		}
		s.SetAttr("style", strings.Join(decls, "; ")+";")
	})
}

// StyleValue returns an inline style property of the first node of sel.
func StyleValue(sel *goquery.Selection, prop string) string {
	style, _ := sel.First().Attr("style")
	for _, decl := range strings.Split(style, ";") {
		i := strings.Index(decl, ":")
		if i < 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(decl[:i]), prop) {
			return strings.TrimSpace(decl[i+1:])
		}
	}
	return ""
}

// ShowError writes message into the form's error slot, or appends a
// div.custom-error when the form has none.
func ShowError(form *Form, message string) {
	slot := form.Find(errorSelector).First()
	if slot.Length() > 0 {
		if inner := slot.Find("div").First(); inner.Length() > 0 {
			inner.SetText(message)
		} else {
			slot.SetText(message)
		}
		setStyle(slot, "display", "block")
		return
	}
	form.sel.AppendHtml(`<div class="custom-error" style="color: #ff3366; margin-top: 10px;">` +
		html.EscapeString(message) + `</div>`)
}

// ShowSuccess hides the form controls and reveals the success slot, or
// appends a div.custom-success. It does nothing and returns false when the
// host page manages its own AJAX success UI.
func ShowSuccess(form *Form) bool {
	if form.HasAttr(AttrHostAjax) {
		return false
	}

	setStyle(form.Find("input, select, textarea, button"), "display", "none")

	slot := form.Find(successSelector).First()
	if slot.Length() > 0 {
		setStyle(slot, "display", "block")
		return true
	}

	body := html.EscapeString(DefaultSuccessMessage)
	if custom := strings.TrimSpace(form.Attr(AttrSuccessMessage)); custom != "" {
		body = successPolicy.Sanitize(custom)
	}
	form.sel.AppendHtml(`<div class="custom-success" style="color: #12b878; margin-top: 10px;">` + body + `</div>`)
	return true
}

// TriggerHostSuccess reproduces the host page's AJAX success state: within
// the form's parent, hide the form and failure block and show the done block.
func TriggerHostSuccess(form *Form) bool {
	if !form.HasAttr(AttrHostAjax) {
		return false
	}
	parent := form.sel.Parent()
	done := parent.Find(".w-form-done").First()
	if done.Length() == 0 {
		return false
	}
	setStyle(parent.Find("form").First(), "display", "none")
	setStyle(parent.Find(".w-form-fail").First(), "display", "none")
	setStyle(done, "display", "block")
	return true
}

// ClearMessages hides every error and success slot inside the form.
func ClearMessages(form *Form) {
	setStyle(form.Find(errorSelector), "display", "none")
	setStyle(form.Find(successSelector), "display", "none")
}
