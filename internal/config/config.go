package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/1F47E/go-tilereel/internal/frames"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpg"
)

// Config is built once per run and handed by value to every engine.
type Config struct {
	// main image, M x N are its logical height and width
	ImagePath   string
	ImageHeight int
	ImageWidth  int

	// frame size, m x n
	TileHeight  int
	TileWidth   int
	FrameFormat string

	FramesDir    string
	ArchivePath  string
	MetadataPath string

	Workers       int
	Reproductions int           // K
	Delay         time.Duration // simulated work per reproduction
	PollInterval  time.Duration

	GenerateGrace  time.Duration
	ReproduceGrace time.Duration

	ProgressEvery int
	Clean         bool
}

func Default() Config {
	return Config{
		ImagePath:      "main_image.png",
		ImageHeight:    64,
		ImageWidth:     64,
		TileHeight:     32,
		TileWidth:      32,
		FrameFormat:    FormatPNG,
		FramesDir:      "physical_frames",
		ArchivePath:    "physical_frames.zip",
		MetadataPath:   "virtual_frames_metadata.json",
		Workers:        runtime.NumCPU(),
		Reproductions:  10,
		Delay:          time.Millisecond,
		PollInterval:   500 * time.Millisecond,
		GenerateGrace:  60 * time.Minute,
		ReproduceGrace: 5 * time.Minute,
		ProgressEvery:  100,
	}
}

func (c Config) Grid() frames.Grid {
	return frames.Grid{
		Height:     c.ImageHeight,
		Width:      c.ImageWidth,
		TileHeight: c.TileHeight,
		TileWidth:  c.TileWidth,
	}
}

func (c Config) Validate() error {
	var problems []string
	if c.ImagePath == "" {
		problems = append(problems, "image path is empty")
	}
	if c.ImageHeight <= 0 || c.ImageWidth <= 0 {
		problems = append(problems, fmt.Sprintf("image size must be positive, got %dx%d", c.ImageWidth, c.ImageHeight))
	}
	if c.TileHeight <= 0 || c.TileWidth <= 0 {
		problems = append(problems, fmt.Sprintf("tile size must be positive, got %dx%d", c.TileWidth, c.TileHeight))
	}
	switch c.FrameFormat {
	case FormatPNG, FormatJPEG:
	default:
		problems = append(problems, fmt.Sprintf("unknown frame format %q", c.FrameFormat))
	}
	if c.FramesDir == "" || c.ArchivePath == "" || c.MetadataPath == "" {
		problems = append(problems, "output paths must be set")
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Reproductions < 0 {
		problems = append(problems, fmt.Sprintf("reproductions must be >= 0, got %d", c.Reproductions))
	}
	if c.Delay < 0 {
		problems = append(problems, "delay must not be negative")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.GenerateGrace <= 0 || c.ReproduceGrace <= 0 {
		problems = append(problems, "grace periods must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
