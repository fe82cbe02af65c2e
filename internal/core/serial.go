package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/encoder"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/meta"
	"github.com/1F47E/go-tilereel/internal/progress"
	"github.com/1F47E/go-tilereel/internal/storage"
	"github.com/1F47E/go-tilereel/internal/workers"
)

// SerialEngine is the single goroutine reference implementation.
type SerialEngine struct {
	source
	encoder *encoder.FrameEncoder
}

func NewSerialEngine(cfg config.Config) *SerialEngine {
	return &SerialEngine{
		source:  newSource(cfg),
		encoder: encoder.NewFrameEncoder(cfg.FrameFormat),
	}
}

// GeneratePhysical decodes the main image once and writes every frame.
// Any failure aborts the run: a crop outside the image means the configured
// dimensions do not match the image.
func (e *SerialEngine) GeneratePhysical(ctx context.Context) (Report, error) {
	log := log.WithField("scope", "serial generate")
	start := time.Now()
	total := e.total()
	rep := Report{Total: total}
	log.Infof("Generating %d physical frames (%s)", total, e.grid)

	if err := e.prepare(); err != nil {
		return rep, err
	}
	img, err := encoder.Decode(e.cfg.ImagePath)
	if err != nil {
		return rep, fmt.Errorf("main image could not be loaded: %w", err)
	}

	p := progress.New("Generating frames...", int64(total), e.cfg.ProgressEvery)
	defer p.Finish()
	for i := uint64(0); i < total; i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		x, y, err := e.grid.Coordinates(i)
		if err != nil {
			return rep, err
		}
		frame, err := encoder.Crop(img, x, y, e.cfg.TileWidth, e.cfg.TileHeight)
		if err != nil {
			return rep, fmt.Errorf("frame %d: %w", i, err)
		}
		if err := e.encoder.Save(storage.FramePath(e.cfg.FramesDir, i, e.encoder.Ext()), frame); err != nil {
			return rep, fmt.Errorf("frame %d: %w", i, err)
		}
		rep.Succeeded++
		p.Add(true)
	}
	log.Infof("Serial frame generation completed in %s", time.Since(start).Round(time.Millisecond))

	rep.Archived, err = e.archive()
	rep.Elapsed = time.Since(start)
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// GenerateMetadata writes one record per frame to the metadata file,
// replacing it as a whole.
func (e *SerialEngine) GenerateMetadata(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	records := e.buildMetadata()
	if err := meta.Save(e.cfg.MetadataPath, records); err != nil {
		return err
	}
	log.WithField("scope", "serial metadata").Infof("Virtual frame metadata for %d frames written to %s in %s",
		len(records), e.cfg.MetadataPath, time.Since(start).Round(time.Millisecond))
	return nil
}

// EnsureMetadata generates the metadata file unless it already exists.
func (e *SerialEngine) EnsureMetadata(ctx context.Context) error {
	ok, err := storage.Exists(e.cfg.MetadataPath)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	log.WithField("scope", "serial metadata").Infof("Metadata file %s not found, generating it", e.cfg.MetadataPath)
	return e.GenerateMetadata(ctx)
}

// ReproduceFrame rebuilds virtual frame id from the metadata file and a freshly
// decoded source image. An id outside the metadata is reported as a
// *frames.OutOfRangeError, a metadata load failure wraps meta.ErrLoad.
func (e *SerialEngine) ReproduceFrame(ctx context.Context, id uint64) (image.Image, error) {
	log := log.WithField("scope", "serial reproduce").WithField("frame", id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := e.loadMetadata()
	if err != nil {
		log.Errorf("Metadata could not be read: %v", err)
		return nil, err
	}
	img, err := workers.ReproduceFrame(records, id)
	switch {
	case errors.Is(err, frames.ErrOutOfRange):
		log.Warnf("No frame to reproduce: %v", err)
		return nil, err
	case err != nil:
		log.Errorf("Error reproducing frame: %v", err)
		return nil, err
	}
	return img, nil
}
