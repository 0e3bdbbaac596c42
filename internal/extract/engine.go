package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/fwimage"
	"github.com/muurk/rotortool/internal/logging"
)

// Progress is called after every attempted section. Hard failures pass
// a non-nil err; the run stops right after that call.
type Progress func(index, total int, sec container.Section, status container.VerifyStatus, err error)

// Options tunes one extraction run.
type Options struct {
	// OnSection, when set, receives per-section progress.
	OnSection Progress
}

// Engine turns firmware images into artifact directories. One engine
// may serve any number of concurrent runs: it holds no per-run state,
// and each run owns its image and sink exclusively.
type Engine struct {
	registry *container.Registry
}

// NewEngine returns an engine dispatching across the given registry.
func NewEngine(registry *container.Registry) *Engine {
	return &Engine{registry: registry}
}

// Registry returns the driver registry the engine dispatches across.
func (e *Engine) Registry() *container.Registry {
	return e.registry
}

// Extract runs one full extraction: detect the format, parse the
// header, then decode and write every section in enumeration order.
//
// A section whose checksum fails is still written and recorded; any
// other section failure aborts the run. In both abort paths the
// manifest written so far is persisted and returned alongside the
// error, so the caller keeps whatever was recovered.
func (e *Engine) Extract(ctx context.Context, img *fwimage.Image, sink Sink, opts Options) (*Manifest, error) {
	driver, err := e.registry.Detect(img)
	if err != nil {
		return nil, err
	}
	logging.Debug("format detected",
		zap.String("image", img.Path()),
		zap.String("format", string(driver.Format())),
	)

	hdr, err := driver.ParseHeader(img)
	if err != nil {
		return nil, err
	}
	secs, err := driver.EnumerateSections(img)
	if err != nil {
		return nil, err
	}

	manifest := newManifest(img.Path(), hdr)
	total := len(secs)

	for i, sec := range secs {
		// Cancellation is honored between sections; one section is
		// the atomic unit of work.
		if err := ctx.Err(); err != nil {
			e.finish(sink, manifest)
			return manifest, fmt.Errorf("extraction cancelled before section %s: %w", sec.Name, err)
		}

		rec := Record{
			Name:        sec.Name,
			Index:       sec.Index,
			Kind:        sec.Kind.String(),
			ArchHint:    sec.Kind.ArchHint(),
			Target:      sec.Target,
			Offset:      sec.Offset,
			Length:      sec.Length,
			Coding:      sec.Coding.String(),
			LoadAddress: sec.LoadAddress,
		}

		dec, err := driver.DecodeSection(img, sec)
		if err != nil {
			rec.Error = err.Error()
			manifest.Sections = append(manifest.Sections, rec)
			if opts.OnSection != nil {
				opts.OnSection(i, total, sec, 0, err)
			}
			logging.Error("section decode failed",
				zap.String("section", sec.Name),
				zap.Error(err),
			)
			e.finish(sink, manifest)
			return manifest, err
		}

		path, err := sink.WriteArtifact(sec.Name, dec.Data)
		if err != nil {
			rec.Error = err.Error()
			manifest.Sections = append(manifest.Sections, rec)
			if opts.OnSection != nil {
				opts.OnSection(i, total, sec, 0, err)
			}
			e.finish(sink, manifest)
			return manifest, err
		}

		rec.Verification = dec.Status.String()
		rec.Note = dec.Note
		rec.Path = path
		rec.Size = len(dec.Data)
		manifest.Sections = append(manifest.Sections, rec)

		if dec.Status == container.StatusFailed {
			logging.Warn("section verification failed, artifact kept",
				zap.String("section", sec.Name),
				zap.String("note", dec.Note),
			)
		} else {
			logging.Debug("section extracted",
				zap.String("section", sec.Name),
				zap.Int("bytes", len(dec.Data)),
				zap.String("verification", dec.Status.String()),
			)
		}
		if opts.OnSection != nil {
			opts.OnSection(i, total, sec, dec.Status, nil)
		}
	}

	if _, err := sink.WriteManifest(manifest); err != nil {
		return manifest, err
	}
	return manifest, nil
}

// finish persists a partial manifest on the abort paths. The primary
// error is already on its way to the caller; a secondary write failure
// is only logged.
func (e *Engine) finish(sink Sink, manifest *Manifest) {
	if _, err := sink.WriteManifest(manifest); err != nil {
		logging.Error("failed to persist partial manifest", zap.Error(err))
	}
}
