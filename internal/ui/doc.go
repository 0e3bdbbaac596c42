// Package ui provides terminal UI components for the rotortool CLI.
//
// This package uses Bubble Tea and Lipgloss to render polished terminal
// output for extraction commands. The components follow a "run once and
// exit" pattern - they render output compellingly but don't require
// user interaction.
//
// # Architecture
//
// The UI package provides three main component types:
//
//   - Header: Command banner showing the image and its parsed parameters
//   - Progress: Progress bar with a per-section step list
//   - Result: Success/failure boxes with styled information
//
// These components are orchestrated by the Runner, which manages the
// header → progress → result flow for an extraction run.
//
// # Usage Pattern
//
// Commands use this package by:
//
//  1. Creating a Runner with command metadata and section names
//  2. Calling Run() with their operation function
//  3. The operation reports per-section progress via a step callback
//  4. Runner handles all UI rendering automatically
//
// Example:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:      "Firmware Extraction",
//	    Command:    "rotortool extract fw.bin",
//	    Params:     map[string]string{"Format": "IMaH v1"},
//	    TotalSteps: len(sections),
//	    StepNames:  names,
//	})
//
//	details, err := runner.Run(ctx, func(onStep ui.StepCallback) (map[string]string, error) {
//	    // ... decode sections, calling onStep per section ...
//	    return map[string]string{"Sections": "5"}, nil
//	})
//
// # Logging Integration
//
// This package expects logging to be controlled via the
// ROTORTOOL_LOG_LEVEL environment variable. When unset or empty, zap
// logging is silent, allowing the curated UI output to be displayed
// cleanly. Set ROTORTOOL_LOG_LEVEL to "debug", "info", "warn", or
// "error" to enable logging output on stderr.
package ui
