package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatHelpers(t *testing.T) {
	assert.Contains(t, FormatSuccess("saved"), SuccessIcon+" saved")
	assert.Contains(t, FormatError("failed"), ErrorIcon+" failed")
	assert.Contains(t, FormatWarning("careful"), "careful")
	assert.Contains(t, FormatInfo("note"), "note")
	assert.Contains(t, FormatTitle("Summary"), LedgerIcon+" Summary")
	assert.Contains(t, FormatPrompt("Choice"), "Choice")
}

func TestFormatField(t *testing.T) {
	assert.Contains(t, FormatField("Amount", "129.99 USD"), "Amount")
	assert.Contains(t, FormatField("Amount", "129.99 USD"), "129.99 USD")
	assert.Contains(t, FormatField("Due", ""), "-")
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Record 1 of 2", "line one\nline two")
	assert.Contains(t, out, "Record 1 of 2")
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "line two")
}
