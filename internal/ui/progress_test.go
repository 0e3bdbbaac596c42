package ui

import (
	"strings"
	"testing"
)

func TestUpdateStepPercent(t *testing.T) {
	p := NewProgress("", 4)
	p.SetStepNames([]string{"m0100", "m0301", "m0400", "m0800"})

	p.UpdateStep(1, StepRunning, "")
	if p.Current != 1 {
		t.Errorf("Current = %d, want 1", p.Current)
	}
	if p.Percent != 0 {
		t.Errorf("Percent = %v, want 0", p.Percent)
	}

	// Skipped and warned sections still count as landed: the bar
	// tracks sections processed, not sections verified.
	p.UpdateStep(1, StepComplete, "")
	p.UpdateStep(2, StepSkipped, "no key")
	p.UpdateStep(3, StepWarned, "digest mismatch")
	if p.Percent != 0.75 {
		t.Errorf("Percent = %v, want 0.75", p.Percent)
	}

	p.UpdateStep(4, StepFailed, "write failed")
	if p.Percent != 0.75 {
		t.Errorf("Percent after failure = %v, want 0.75", p.Percent)
	}

	// Out-of-range step numbers are ignored.
	p.UpdateStep(0, StepComplete, "")
	p.UpdateStep(5, StepComplete, "")
	if p.Percent != 0.75 {
		t.Errorf("Percent after out-of-range updates = %v, want 0.75", p.Percent)
	}
}

func TestRenderProgressBar(t *testing.T) {
	p := NewProgress("", 2)
	p.SetStepNames([]string{"bldr", "app0"})

	p.StartStep(1, "")
	p.CompleteStep(1, "16 bytes")
	p.StartStep(2, "")

	bar := p.renderProgressBar()
	if !strings.Contains(bar, "50%") {
		t.Errorf("renderProgressBar() = %q, want a 50%% reading", bar)
	}
	if !strings.Contains(bar, "[2/2]") {
		t.Errorf("renderProgressBar() = %q, want step counter [2/2]", bar)
	}
}

func TestRenderStepList(t *testing.T) {
	p := NewProgress("", 3)
	p.SetStepNames([]string{"bldr", "app0", "para"})
	p.CompleteStep(1, "16 bytes")
	p.FailStep(2, "decode failed")

	out := p.Render()
	for _, want := range []string{"bldr", "app0", "para", "(16 bytes)", "(decode failed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q", want)
		}
	}
}
