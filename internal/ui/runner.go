package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig holds configuration for one extraction run's UI
type RunnerConfig struct {
	Title      string            // Command title (e.g., "Firmware Extraction")
	Command    string            // Full command (e.g., "rotortool extract fw.bin")
	Params     map[string]string // Parameters to display in header
	TotalSteps int               // Total number of sections (for progress)
	StepNames  []string          // Section names for each step
	Output     io.Writer         // Output writer (default: os.Stdout)
}

// Runner orchestrates the UI for an extraction run. It manages the
// header, per-section progress lines, and final result box, and
// provides a callback the engine can report section outcomes through.
type Runner struct {
	config    RunnerConfig
	header    *Header
	progress  *Progress
	output    io.Writer
	startTime time.Time
	width     int
}

// NewRunner creates a new runner for an extraction command
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	width := GetTerminalWidth()

	header := NewHeader(config.Title, config.Command, config.Params)
	header.SetWidth(width)

	var progress *Progress
	if config.TotalSteps > 0 {
		progress = NewProgress("", config.TotalSteps)
		progress.SetWidth(width)
		if len(config.StepNames) > 0 {
			progress.SetStepNames(config.StepNames)
		}
	}

	return &Runner{
		config:   config,
		header:   header,
		progress: progress,
		output:   config.Output,
		width:    width,
	}
}

// Operation is the function signature for the work a Runner drives.
// The operation receives a StepCallback to report per-section progress
// and returns the details for the final result box.
type Operation func(onStep StepCallback) (map[string]string, error)

// Run executes the operation with UI updates. It displays the header,
// prints a line per section as it completes, and shows the result.
func (r *Runner) Run(ctx context.Context, operation Operation) (map[string]string, error) {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := operation(r.stepCallback())
	duration := time.Since(r.startTime)

	if err != nil {
		r.printFailure(err)
	} else {
		r.printSuccess(details, duration)
	}

	return details, err
}

// stepCallback creates the step callback function
func (r *Runner) stepCallback() StepCallback {
	return func(stepNumber int, name string, status StepStatus, message string) {
		if r.progress == nil {
			return
		}

		if name != "" && stepNumber > 0 && stepNumber <= len(r.progress.Steps) {
			r.progress.Steps[stepNumber-1].Name = name
		}

		r.progress.UpdateStep(stepNumber, status, message)

		switch status {
		case StepComplete, StepFailed, StepSkipped, StepWarned:
			step := r.progress.Steps[stepNumber-1]
			_, _ = fmt.Fprintln(r.output, r.progress.renderStepLine(step))
			// The bar sits on the line below the list and is
			// overwritten by the next step line.
			_, _ = fmt.Fprint(r.output, r.progress.renderProgressBar()+"\r")
		case StepRunning:
			// Overwritten by the completed line
			step := r.progress.Steps[stepNumber-1]
			_, _ = fmt.Fprint(r.output, r.progress.renderStepLine(step)+"\r")
		}
	}
}

// printSuccess prints a success result with the run's details
func (r *Runner) printSuccess(details map[string]string, duration time.Duration) {
	_, _ = fmt.Fprintln(r.output)

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = duration.Round(time.Millisecond).String()

	result := NewSuccessResult(r.config.Title+" complete", details)
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
}

// printFailure prints a failure result with troubleshooting
func (r *Runner) printFailure(err error) {
	_, _ = fmt.Fprintln(r.output)

	troubleshooting := []string{
		"Check the image file is a complete download",
		"Try: rotortool inspect <image> to see what parsed",
		"Pass --keys <file> if the firmware needs vendor keys",
		"Set ROTORTOOL_LOG_LEVEL=debug for detailed logs",
	}

	result := NewFailureResult(r.config.Title+" failed", err, troubleshooting)
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
}

// --- Simple helper functions for commands that don't need a full Runner ---

// PrintFailure prints a styled failure result
func PrintFailure(title string, err error, troubleshooting []string) {
	width := GetTerminalWidth()
	result := NewFailureResult(title, err, troubleshooting)
	result.SetWidth(width)
	fmt.Println()
	fmt.Println(result.Render())
}

// PrintWarning prints a styled warning result
func PrintWarning(title string, details map[string]string) {
	width := GetTerminalWidth()
	result := NewWarningResult(title, details)
	result.SetWidth(width)
	fmt.Println()
	fmt.Println(result.Render())
}
