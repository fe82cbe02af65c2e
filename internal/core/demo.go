package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/encoder"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/storage"
	"github.com/1F47E/go-tilereel/internal/workers"
)

// DemoFrames are reproduced one by one after the serial run.
var DemoFrames = []uint64{10, 100}

// Demo runs the whole sequence: serial generation, metadata and single
// reproductions, then parallel generation and concurrent reproduction.
func Demo(ctx context.Context, cfg config.Config) error {
	log := log.WithField("scope", "demo")

	if _, err := encoder.CreateSample(cfg.ImagePath, cfg.ImageWidth, cfg.ImageHeight); err != nil {
		return fmt.Errorf("cannot create main image: %w", err)
	}
	width, height, err := encoder.Size(cfg.ImagePath)
	if err != nil {
		return fmt.Errorf("cannot read main image dimensions: %w", err)
	}
	log.Infof("Main image %s is %dx%d, %d frames possible", cfg.ImagePath, width, height, cfg.Grid().Total())

	if err := storage.Clean(cfg.FramesDir, cfg.ArchivePath, cfg.MetadataPath); err != nil {
		return err
	}

	log.Info("===== SERIAL =====")
	serial := NewSerialEngine(cfg)
	rep, err := serial.GeneratePhysical(ctx)
	if err != nil {
		return err
	}
	log.Info(rep.Print())
	if err := serial.GenerateMetadata(ctx); err != nil {
		return err
	}
	start := time.Now()
	for _, id := range DemoFrames {
		img, err := serial.ReproduceFrame(ctx, id)
		switch {
		case errors.Is(err, frames.ErrOutOfRange), errors.Is(err, encoder.ErrInvalidRegion):
			continue
		case err != nil:
			return err
		}
		log.Infof("Virtual frame %d reproduced: %v", id, img.Bounds())
	}
	log.Infof("Serial reproduction completed in %s", time.Since(start).Round(time.Millisecond))

	if err := storage.Clean(cfg.FramesDir, cfg.ArchivePath); err != nil {
		return err
	}

	log.Info("===== PARALLEL =====")
	rep, err = NewParallelEngine(cfg).GeneratePhysical(ctx)
	if err != nil && !errors.Is(err, workers.ErrShutdownTimeout) {
		return err
	}
	log.Info(rep.Print())

	if err := serial.EnsureMetadata(ctx); err != nil {
		return err
	}
	rrep, err := NewReproductionEngine(cfg).RunFirst(ctx, cfg.Reproductions)
	if err != nil && !errors.Is(err, workers.ErrShutdownTimeout) {
		return err
	}
	log.Info(rrep.Print())
	log.Info("All operations completed")
	return nil
}
