package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/extract"
	"github.com/muurk/rotortool/internal/fwimage"
	"github.com/muurk/rotortool/internal/keyring"
	"github.com/muurk/rotortool/internal/ui"

	"github.com/muurk/rotortool/internal/container/imah"
	"github.com/muurk/rotortool/internal/container/xv4"
)

// Command flags
var (
	outDir      string
	keysFile    string
	plainOutput bool
	jobs        int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&keysFile, "keys", "", "YAML key file merged over the builtin keys")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Plain output without styling (CI, pipes)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(keysCmd)
}

// buildRing assembles the key ring: builtin community keys, optionally
// overridden by a user key file.
func buildRing() (*keyring.Ring, error) {
	ring := keyring.Builtin()
	if keysFile != "" {
		if err := ring.LoadKeyfile(keysFile); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// buildRegistry wires every known container driver over one ring.
func buildRegistry(ring *keyring.Ring) *container.Registry {
	return container.NewRegistry(
		imah.New(ring),
		xv4.New(ring),
	)
}

// extractCmd extracts one or more firmware images
var extractCmd = &cobra.Command{
	Use:   "extract <image>...",
	Short: "Extract firmware image sections to a directory",
	Long: `Extract every section of one or more firmware images.

For each image a directory is created under --out, named after the
image file. Each section is written as <name>.bin in decoded form, and
a manifest.yaml records offsets, coding, and verification results.

Sections whose key is unknown are written in stored (scrambled) form
and marked verification-skipped. A checksum mismatch keeps the
artifact and marks it verification-failed. Any other section failure
aborts that image with a partial manifest.`,
	Example: `  # Extract one image into ./wm220_fw/
  rotortool extract wm220_fw.bin

  # Extract several images into a common output root, four at a time
  rotortool extract fw/*.bin --out extracted/ --jobs 4

  # Supply vendor keys for encrypted sections
  rotortool extract wm220_fw.sig --keys vendor-keys.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&outDir, "out", ".", "Output root directory")
	extractCmd.Flags().IntVar(&jobs, "jobs", 1, "Number of images to extract concurrently")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ring, err := buildRing()
	if err != nil {
		return err
	}
	engine := extract.NewEngine(buildRegistry(ring))

	if jobs < 1 {
		jobs = 1
	}

	// Concurrent runs get plain per-image output; interleaved progress
	// bars are worse than none.
	if jobs > 1 && len(args) > 1 {
		return extractConcurrent(cmd, engine, args)
	}

	var firstErr error
	for _, image := range args {
		if err := extractOne(cmd, engine, image); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", image, err)
			}
		}
	}
	return firstErr
}

// extractConcurrent runs up to --jobs image extractions in parallel.
// Each image owns its output directory, so runs are independent.
func extractConcurrent(cmd *cobra.Command, engine *extract.Engine, images []string) error {
	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, image := range images {
		wg.Add(1)
		go func(image string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := extractPlain(cmd, engine, image)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", image, err)
				}
				mu.Unlock()
			}
		}(image)
	}

	wg.Wait()
	return firstErr
}

// extractOne extracts a single image, with the styled runner unless
// --plain was given.
func extractOne(cmd *cobra.Command, engine *extract.Engine, image string) error {
	if plainOutput {
		return extractPlain(cmd, engine, image)
	}
	return extractStyled(cmd, engine, image)
}

// outputDir derives the per-image output directory under --out.
func outputDir(image string) string {
	stem := strings.TrimSuffix(filepath.Base(image), filepath.Ext(image))
	return filepath.Join(outDir, stem)
}

// extractPlain extracts one image with line-oriented output.
func extractPlain(cmd *cobra.Command, engine *extract.Engine, image string) error {
	img, err := fwimage.Open(image)
	if err != nil {
		return err
	}
	defer img.Close()

	sink, err := extract.NewDirSink(outputDir(image))
	if err != nil {
		return err
	}

	fmt.Printf("%s -> %s\n", image, sink.Dir())

	opts := extract.Options{
		OnSection: func(index, total int, sec container.Section, status container.VerifyStatus, err error) {
			if err != nil {
				fmt.Printf("  [%d/%d] %-10s %s\n", index+1, total, sec.Name, err)
				return
			}
			fmt.Printf("  [%d/%d] %-10s %8d bytes  %s\n", index+1, total, sec.Name, sec.Length, status)
		},
	}

	manifest, err := engine.Extract(cmd.Context(), img, sink, opts)
	if err != nil {
		return err
	}

	fmt.Printf("  %d section(s), %d bytes, manifest.yaml written\n",
		len(manifest.Sections), manifest.TotalExtracted())
	return nil
}

// extractStyled extracts one image with the header, progress list, and
// result box UI.
func extractStyled(cmd *cobra.Command, engine *extract.Engine, image string) error {
	img, err := fwimage.Open(image)
	if err != nil {
		return err
	}
	defer img.Close()

	// Pre-parse to name the progress steps; the engine re-runs
	// detection from the same bytes.
	driver, err := engine.Registry().Detect(img)
	if err != nil {
		ui.PrintFailure("Firmware extraction", err, []string{
			"Check the image file is a complete download",
			"Only xV4 and IMaH v1 containers are supported",
		})
		return err
	}
	hdr, err := driver.ParseHeader(img)
	if err != nil {
		return err
	}
	secs, err := driver.EnumerateSections(img)
	if err != nil {
		return err
	}

	sink, err := extract.NewDirSink(outputDir(image))
	if err != nil {
		return err
	}

	names := make([]string, len(secs))
	for i, sec := range secs {
		names[i] = sec.Name
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Firmware Extraction",
		Command: "rotortool extract " + image,
		Params: map[string]string{
			"Format":  string(hdr.Format),
			"Model":   hdr.Model,
			"Version": hdr.Version,
			"Output":  sink.Dir(),
		},
		TotalSteps: len(secs),
		StepNames:  names,
	})

	var manifest *extract.Manifest
	_, runErr := runner.Run(cmd.Context(), func(onStep ui.StepCallback) (map[string]string, error) {
		opts := extract.Options{
			OnSection: func(index, total int, sec container.Section, status container.VerifyStatus, err error) {
				if err != nil {
					onStep(index+1, sec.Name, ui.StepFailed, err.Error())
					return
				}
				note := fmt.Sprintf("%d bytes", sec.Length)
				switch status {
				case container.StatusVerified:
					onStep(index+1, sec.Name, ui.StepComplete, note)
				case container.StatusSkipped:
					onStep(index+1, sec.Name, ui.StepSkipped, note+", no key")
				case container.StatusFailed:
					onStep(index+1, sec.Name, ui.StepWarned, note+", checksum mismatch")
				}
			},
		}

		var runErr error
		manifest, runErr = engine.Extract(cmd.Context(), img, sink, opts)
		if runErr != nil {
			return nil, runErr
		}
		return map[string]string{
			"Sections": fmt.Sprintf("%d", len(manifest.Sections)),
			"Bytes":    fmt.Sprintf("%d", manifest.TotalExtracted()),
			"Manifest": filepath.Join(sink.Dir(), extract.ManifestFilename),
		}, nil
	})
	if runErr != nil {
		return runErr
	}

	// The run succeeded, but call out sections that could not be
	// verified so a clean success box never hides them.
	var skipped, failed int
	for _, rec := range manifest.Sections {
		switch rec.Verification {
		case container.StatusSkipped.String():
			skipped++
		case container.StatusFailed.String():
			failed++
		}
	}
	if skipped+failed > 0 {
		ui.PrintWarning("Some sections were not verified", map[string]string{
			"Skipped": fmt.Sprintf("%d (missing key material)", skipped),
			"Failed":  fmt.Sprintf("%d (digest mismatch)", failed),
		})
	}
	return nil
}

// inspectCmd prints header and section info without extracting
var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Show firmware image header and section table",
	Long: `Parse a firmware image and display its header fields and section
table without writing any artifacts.

Each section is decoded in memory to preview its verification status,
so inspect reports the same verified/skipped/failed results that
extract would record in the manifest.`,
	Example: `  # Inspect an image
  rotortool inspect wm220_fw.bin

  # Inspect with vendor keys so encrypted sections verify
  rotortool inspect wm220_fw.sig --keys vendor-keys.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	ring, err := buildRing()
	if err != nil {
		return err
	}
	registry := buildRegistry(ring)

	img, err := fwimage.Open(args[0])
	if err != nil {
		return err
	}
	defer img.Close()

	driver, err := registry.Detect(img)
	if err != nil {
		return err
	}
	hdr, err := driver.ParseHeader(img)
	if err != nil {
		return err
	}
	secs, err := driver.EnumerateSections(img)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())

	if !plainOutput {
		params := map[string]string{
			"Format":   string(hdr.Format),
			"Model":    hdr.Model,
			"Version":  hdr.Version,
			"Sections": fmt.Sprintf("%d", hdr.SectionCount),
		}
		if hdr.Manufacturer != "" {
			params["Manufacturer"] = hdr.Manufacturer
		}
		if hdr.Signed {
			params["Signature"] = hdr.SignatureStatus.String()
		}
		box := ui.RenderCommandHeader(ui.HeaderConfig{
			Title:   "Firmware Inspection",
			Command: "rotortool inspect " + args[0],
			Params:  params,
		})
		if err := ui.RenderOnce(box); err != nil {
			// No controllable terminal; the box still reads fine raw
			p.Println(box)
		}
		p.Newline()
	} else {
		p.Printf("image:    %s\n", args[0])
		p.Printf("format:   %s\n", hdr.Format)
		if hdr.Manufacturer != "" {
			p.Printf("vendor:   %s\n", hdr.Manufacturer)
		}
		p.Printf("model:    %s\n", hdr.Model)
		p.Printf("version:  %s\n", hdr.Version)
		if hdr.Signed {
			p.Printf("signature: %s\n", hdr.SignatureStatus)
		}
		p.Newline()
	}

	p.Printf("%-10s %-12s %10s %10s %-8s %s\n",
		"NAME", "KIND", "OFFSET", "LENGTH", "CODING", "VERIFICATION")
	for _, sec := range secs {
		var status string
		dec, err := driver.DecodeSection(img, sec)
		if err == nil {
			status = dec.Status.String()
			if dec.Note != "" {
				status += " (" + dec.Note + ")"
			}
		} else {
			status = err.Error()
		}
		p.Printf("%-10s %-12s %10d %10d %-8s %s\n",
			sec.Name, sec.Kind, sec.Offset, sec.Length, sec.Coding, status)
	}

	return nil
}

// keysCmd lists the key slots the toolkit knows about
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List known key slots",
	Long: `List the key slots the toolkit can decode with: the builtin
community-recovered keys plus anything merged from --keys. Key
material itself is never printed.`,
	Example: `  # Builtin slots only
  rotortool keys

  # Builtin plus a vendor key file
  rotortool keys --keys vendor-keys.yaml`,
	Args: cobra.NoArgs,
	RunE: runKeys,
}

func runKeys(cmd *cobra.Command, args []string) error {
	ring, err := buildRing()
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())

	slots := ring.Slots()
	if len(slots) == 0 {
		p.Println("No keys registered.")
		return nil
	}

	p.Printf("%-12s %s\n", "SLOT", "KIND")
	for _, slot := range slots {
		p.Printf("%-12s %s\n", slot.Name, slot.Kind)
	}
	return nil
}
