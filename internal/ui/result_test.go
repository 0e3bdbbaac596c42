package ui

import (
	"strings"
	"testing"
)

func TestRenderWarning(t *testing.T) {
	out := RenderWarning("Some sections were not verified", map[string]string{
		"Skipped": "2 (missing key material)",
		"Failed":  "1 (digest mismatch)",
	})
	for _, want := range []string{"WARNING", "Some sections were not verified", "Skipped", "Failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderWarning() missing %q", want)
		}
	}
}

func TestRenderSuccessDetails(t *testing.T) {
	out := RenderSuccess("Firmware Extraction complete", map[string]string{
		"Sections": "3",
	})
	if !strings.Contains(out, "SUCCESS") || !strings.Contains(out, "Sections") {
		t.Errorf("RenderSuccess() missing title or details:\n%s", out)
	}
}
