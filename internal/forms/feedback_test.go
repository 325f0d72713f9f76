package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowErrorUsesExistingSlot(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<div class="w-form-fail" style="display: none"><div>Oops</div></div>
</form></body></html>`)
	form := mustForm(t, page, "#f")

	ShowError(form, MsgInvalidEmail)

	slot := form.Find(".w-form-fail")
	assert.Equal(t, MsgInvalidEmail, slot.Find("div").Text())
	assert.Equal(t, "block", StyleValue(slot, "display"))
	assert.Equal(t, 0, form.Find(".custom-error").Length())
}

func TestShowErrorAppendsSlot(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="email"></form></body></html>`)
	form := mustForm(t, page, "#f")

	ShowError(form, `<b>bad</b>`)

	slot := form.Find("div.custom-error")
	require.Equal(t, 1, slot.Length())
	assert.Equal(t, "<b>bad</b>", slot.Text())
	assert.Equal(t, "#ff3366", StyleValue(slot, "color"))
	assert.Equal(t, "10px", StyleValue(slot, "margin-top"))
}

func TestShowSuccessWithSlot(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<input name="email"><button>Go</button>
<div class="form-success" style="display: none; color: red">Done</div>
</form></body></html>`)
	form := mustForm(t, page, "#f")

	assert.True(t, ShowSuccess(form))
	assert.Equal(t, "none", StyleValue(form.Find("input"), "display"))
	assert.Equal(t, "none", StyleValue(form.Find("button"), "display"))
	slot := form.Find(".form-success")
	assert.Equal(t, "block", StyleValue(slot, "display"))
	assert.Equal(t, "red", StyleValue(slot, "color"))
}

func TestShowSuccessAppendsDefaultMessage(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f"><input name="email"></form></body></html>`)
	form := mustForm(t, page, "#f")

	assert.True(t, ShowSuccess(form))
	slot := form.Find("div.custom-success")
	assert.Equal(t, DefaultSuccessMessage, slot.Text())
	assert.Equal(t, "#12b878", StyleValue(slot, "color"))
}

func TestShowSuccessSanitizesCustomMessage(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f" data-klaviyo-success-message="<strong>Welcome!</strong><script>alert(1)</script>"></form></body></html>`)
	form := mustForm(t, page, "#f")

	ShowSuccess(form)
	slot := form.Find("div.custom-success")
	assert.Equal(t, 1, slot.Find("strong").Length())
	assert.Equal(t, 0, slot.Find("script").Length())
	assert.Equal(t, "Welcome!", slot.Text())
}

func TestShowSuccessDefersToHostAjax(t *testing.T) {
	page := mustPage(t, `<html><body><div class="w-form">
<form id="f" data-wf-form-ajax="true"><input name="email"></form>
<div class="w-form-done" style="display: none">Thank you</div>
<div class="w-form-fail">Failed</div>
</div></body></html>`)
	form := mustForm(t, page, "#f")

	assert.False(t, ShowSuccess(form))
	assert.Equal(t, "", StyleValue(form.Find("input"), "display"))

	assert.True(t, TriggerHostSuccess(form))
	assert.Equal(t, "none", StyleValue(page.Find("#f"), "display"))
	assert.Equal(t, "none", StyleValue(page.Find(".w-form-fail"), "display"))
	assert.Equal(t, "block", StyleValue(page.Find(".w-form-done"), "display"))
}

func TestTriggerHostSuccessIgnoresPlainForms(t *testing.T) {
	page := mustPage(t, `<html><body><div><form id="f"></form><div class="w-form-done"></div></div></body></html>`)
	assert.False(t, TriggerHostSuccess(mustForm(t, page, "#f")))
}

func TestClearMessages(t *testing.T) {
	page := mustPage(t, `<html><body><form id="f">
<div class="custom-error" style="display: block">x</div>
<div class="custom-success">y</div>
</form></body></html>`)
	form := mustForm(t, page, "#f")

	ClearMessages(form)
	assert.Equal(t, "none", StyleValue(form.Find(".custom-error"), "display"))
	assert.Equal(t, "none", StyleValue(form.Find(".custom-success"), "display"))
}
