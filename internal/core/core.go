package core

import (
	"context"
	"fmt"
	"time"

	"github.com/1F47E/go-tilereel/internal/archive"
	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/meta"
	"github.com/1F47E/go-tilereel/internal/storage"
)

var log = logger.Log

// Generator renders every frame of the configured grid to its own file and
// archives the frames dir.
type Generator interface {
	GeneratePhysical(ctx context.Context) (Report, error)
}

// Report summarises one generation run.
type Report struct {
	Total     uint64
	Succeeded uint64
	Failed    uint64
	Archived  int
	Elapsed   time.Duration
	// workers had to be force-cancelled after the grace period
	ShutdownTimedOut bool
}

func (r Report) Print() string {
	return fmt.Sprintf("%d/%d frames generated, %d failed, %d archived in %s",
		r.Succeeded, r.Total, r.Failed, r.Archived, r.Elapsed.Round(time.Millisecond))
}

// NewGenerator picks the execution strategy.
func NewGenerator(cfg config.Config, parallel bool) Generator {
	if parallel {
		return NewParallelEngine(cfg)
	}
	return NewSerialEngine(cfg)
}

// source is the indexing and metadata access shared by all engines.
type source struct {
	cfg  config.Config
	grid frames.Grid
}

func newSource(cfg config.Config) source {
	return source{cfg: cfg, grid: cfg.Grid()}
}

func (s source) total() uint64 {
	return s.grid.Total()
}

// prepare removes previous outputs when asked to and creates the frames dir.
func (s source) prepare() error {
	if s.cfg.Clean {
		if err := storage.Clean(s.cfg.FramesDir, s.cfg.ArchivePath); err != nil {
			return err
		}
	}
	return storage.CreateFramesDir(s.cfg.FramesDir)
}

func (s source) archive() (int, error) {
	return archive.Archive(s.cfg.FramesDir, s.cfg.ArchivePath)
}

func (s source) buildMetadata() []meta.FrameMetadata {
	return meta.Build(s.grid, s.cfg.ImagePath)
}

func (s source) loadMetadata() ([]meta.FrameMetadata, error) {
	return meta.Load(s.cfg.MetadataPath)
}
