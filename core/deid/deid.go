// Package deid runs the de-identification pipeline for whole-slide
// images: copy under a generated name, remove the label (and optionally
// macro) pages, rewrite the filename recorded in the slide, and move the
// result to its final directory.
//
// Every modification is made in place on the copy, so the output has
// exactly the size of the source. Run checks this before reporting.
package deid

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/ankit-chaubey/svs-surgery/core"
	"github.com/ankit-chaubey/svs-surgery/core/config"
	"github.com/ankit-chaubey/svs-surgery/core/redact"
	"github.com/ankit-chaubey/svs-surgery/core/svs"
)

// ErrSizeChanged is returned when the output differs in size from the
// source.
var ErrSizeChanged = errors.New("output size differs from source")

// Actions recorded in a Report.
const (
	ActionLabelRemoved    = "Label removed from the image"
	ActionMacroRemoved    = "Macro removed from the image"
	ActionMetadataUpdated = "Metadata updated in the image"
	ActionNameUpdated     = "Image name updated in the metadata"
)

// Report describes what Run did with one file.
type Report struct {
	File         string             `json:"file"`
	Source       string             `json:"source"`
	Output       string             `json:"output"`
	DeidName     string             `json:"deid_name"`
	MetadataName string             `json:"metadata_name"`
	Actions      []string           `json:"actions"`
	Removed      []core.RemovedPage `json:"removed,omitempty"`
	Size         int64              `json:"size"`
	SourceDigest string             `json:"source_blake3"`
	OutputDigest string             `json:"output_blake3"`
}

// Pipeline de-identifies files according to a Config.
type Pipeline struct {
	cfg    *config.Config
	log    *slog.Logger
	slides *svs.Handler

	now   func() time.Time
	newID func() uuid.UUID
}

// New returns a Pipeline for cfg.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    logger,
		slides: svs.New(core.FmtSVS, logger),
		now:    time.Now,
		newID:  uuid.New,
	}
}

// Run de-identifies one file. A bare file name is looked up in the
// incoming directory; a path is used as given.
func (p *Pipeline) Run(ctx context.Context, file string) (rep *Report, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := p.log.With("file", file)
	log.Info("start de-identification")
	defer func() {
		if err != nil {
			log.Error("could not process file", "error", err)
		}
	}()

	src := file
	if filepath.Base(file) == file {
		src = filepath.Join(p.cfg.Paths.Incoming, file)
	}
	base := filepath.Base(file)

	deidName, metadataName := GenerateName(base, p.now(), p.newID())
	log.Info("generated names", "deid_name", deidName, "metadata_name", metadataName)

	rep = &Report{
		File:         base,
		Source:       src,
		DeidName:     deidName,
		MetadataName: metadataName,
	}

	srcSize, srcDigest, err := digest(src)
	if err != nil {
		return nil, err
	}
	rep.SourceDigest = srcDigest

	work := filepath.Join(p.cfg.Paths.Incoming, deidName)
	if err := core.CopyFile(src, work); err != nil {
		return nil, err
	}
	log.Info("image copied", "path", work)
	moved := false
	defer func() {
		if err != nil && !moved {
			os.Remove(work)
		}
	}()

	if kinds := p.cfg.Kinds(); len(kinds) > 0 {
		removed, err := p.slides.Strip(work, "", core.StripOptions{Kinds: kinds})
		if err != nil {
			return nil, err
		}
		rep.Removed = removed
		for _, r := range removed {
			if !r.Removed {
				continue
			}
			if r.Kind == "macro" {
				rep.Actions = append(rep.Actions, ActionMacroRemoved)
			} else {
				rep.Actions = append(rep.Actions, ActionLabelRemoved)
			}
		}
	}

	final := filepath.Join(p.cfg.Paths.Final, base)
	if p.cfg.Metadata.Update {
		final = filepath.Join(p.cfg.Paths.Final, deidName)
		err := p.slides.Edit(work, "", core.EditOptions{
			Set:   map[string]string{p.cfg.Metadata.Key: metadataName},
			Tag:   p.cfg.Metadata.Tag,
			Pages: p.cfg.Metadata.Pages,
		})
		if errors.Is(err, redact.ErrValueLengthMismatch) {
			return nil, fmt.Errorf("%w (the generated name is %d bytes and must fit in place of the scanner's filename; set metadata.update: false to keep the original name)",
				err, len(metadataName))
		}
		if err != nil {
			return nil, err
		}
		if pages, err := ReadMetadata(work); err != nil {
			log.Warn("could not read back metadata", "error", err)
		} else {
			log.Info("metadata of the new image", "name", deidName, "pages", pages)
		}
		rep.Actions = append(rep.Actions, ActionMetadataUpdated, ActionNameUpdated)
	}

	if err := core.MoveFile(work, final); err != nil {
		return nil, err
	}
	moved = true
	rep.Output = final
	log.Info("image moved", "path", final)

	outSize, outDigest, err := digest(final)
	if err != nil {
		return nil, err
	}
	rep.OutputDigest = outDigest
	rep.Size = outSize
	if outSize != srcSize {
		return rep, fmt.Errorf("%w: %s is %d bytes, %s is %d", ErrSizeChanged, src, srcSize, final, outSize)
	}

	log.Info("actions performed", "actions", rep.Actions)
	return rep, nil
}

// RunBatch runs files through the pipeline with up to cfg.Workers at
// once. Reports are returned in input order; a failed file leaves a nil
// entry. The first error stops files not yet started.
func (p *Pipeline) RunBatch(ctx context.Context, files []string) ([]*Report, error) {
	reports := make([]*Report, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Workers, 1))
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			rep, err := p.Run(ctx, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			reports[i] = rep
			return nil
		})
	}
	return reports, g.Wait()
}

// digest returns the size and hex BLAKE3 digest of the file at path.
func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash %s: %w", path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
