package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/core"
	"github.com/1F47E/go-tilereel/internal/encoder"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/storage"
	"github.com/1F47E/go-tilereel/internal/workers"
)

var app = cli.NewApp()
var log = logger.Log

// resolved in Before, read by every command
var cfg = config.Default()

func init() {
	app.Name = "tilereel"
	app.Usage = "Split an image into frames, physically or virtually"
	app.UsageText = "tilereel [global options] command [command options] [arguments...]"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "HCL config file"},
		cli.StringFlag{Name: "image, i", Usage: "main image path"},
		cli.IntFlag{Name: "height", Usage: "main image height (M)"},
		cli.IntFlag{Name: "width", Usage: "main image width (N)"},
		cli.IntFlag{Name: "tile-height", Usage: "frame height (m)"},
		cli.IntFlag{Name: "tile-width", Usage: "frame width (n)"},
		cli.StringFlag{Name: "format", Usage: "frame format, png or jpg"},
		cli.StringFlag{Name: "frames-dir", Usage: "physical frames output dir"},
		cli.StringFlag{Name: "archive", Usage: "physical frames archive path"},
		cli.StringFlag{Name: "metadata", Usage: "virtual frames metadata path"},
		cli.IntFlag{Name: "workers, w", Usage: "worker pool size"},
		cli.IntFlag{Name: "reproductions, k", Usage: "number of frames to reproduce concurrently"},
		cli.DurationFlag{Name: "delay", Usage: "simulated work per reproduction"},
		cli.BoolFlag{Name: "clean", Usage: "remove previous outputs before generating"},
	}
	app.Before = func(c *cli.Context) error {
		logger.SetRun(uuid.NewString())
		var err error
		cfg, err = resolveConfig(c)
		return err
	}
	app.Commands = []cli.Command{
		{
			Name:  "sample",
			Usage: "Create the test main image if it is missing",
			Action: func(c *cli.Context) error {
				created, err := encoder.CreateSample(cfg.ImagePath, cfg.ImageWidth, cfg.ImageHeight)
				if err != nil {
					return err
				}
				if !created {
					log.Infof("%s already exists", cfg.ImagePath)
				}
				return nil
			},
		},
		{
			Name:    "generate",
			Aliases: []string{"g"},
			Usage:   "Write every frame to its own file and archive them",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "serial", Usage: "use the single goroutine engine"},
			},
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				rep, err := core.NewGenerator(cfg, !c.Bool("serial")).GeneratePhysical(ctx)
				if err = tolerateTimeout(err); err != nil {
					return err
				}
				log.Info(rep.Print())
				return nil
			},
		},
		{
			Name:    "metadata",
			Aliases: []string{"m"},
			Usage:   "Write the virtual frame metadata file",
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				return core.NewSerialEngine(cfg).GenerateMetadata(ctx)
			},
		},
		{
			Name:      "reproduce",
			Aliases:   []string{"r"},
			Usage:     "Reproduce virtual frames one by one",
			ArgsUsage: "ID...",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out, o", Usage: "save reproduced frames to this dir"},
			},
			Action: func(c *cli.Context) error {
				ids, err := parseIDs(c.Args())
				if err != nil {
					return err
				}
				ctx, cancel := signalContext()
				defer cancel()
				return reproduce(ctx, ids, c.String("out"))
			},
		},
		{
			Name:    "concurrent",
			Aliases: []string{"cr"},
			Usage:   "Reproduce the first K virtual frames with a worker pool",
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				if err := core.NewSerialEngine(cfg).EnsureMetadata(ctx); err != nil {
					return err
				}
				rep, err := core.NewReproductionEngine(cfg).RunFirst(ctx, cfg.Reproductions)
				if err = tolerateTimeout(err); err != nil {
					return err
				}
				log.Info(rep.Print())
				return nil
			},
		},
		{
			Name:    "verify",
			Aliases: []string{"t"},
			Usage:   "Run serial and parallel generation and compare the frames",
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				same, err := core.Compare(ctx, cfg)
				if err != nil {
					return fmt.Errorf("error comparing frames: %w", err)
				}
				if !same {
					return fmt.Errorf("frames are different")
				}
				log.Info("Frames are the same")
				return nil
			},
		},
		{
			Name:  "watch",
			Usage: "Regenerate frames and metadata whenever the main image changes",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "serial", Usage: "use the single goroutine engine"},
			},
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				gen := core.NewGenerator(cfg, !c.Bool("serial"))
				rep, err := gen.GeneratePhysical(ctx)
				if err = tolerateTimeout(err); err != nil {
					return err
				}
				log.Info(rep.Print())
				if err := core.NewSerialEngine(cfg).GenerateMetadata(ctx); err != nil {
					return err
				}
				w, err := core.NewWatcher(cfg, gen)
				if err != nil {
					return err
				}
				return w.Run(ctx)
			},
		},
		{
			Name:  "run",
			Usage: "Run the whole sequence: serial, then parallel and concurrent",
			Action: func(c *cli.Context) error {
				ctx, cancel := signalContext()
				defer cancel()
				return core.Demo(ctx, cfg)
			},
		},
	}
}

// defaults, then the config file, then flags
func resolveConfig(c *cli.Context) (config.Config, error) {
	conf := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		conf, err = config.LoadFile(path, conf)
		if err != nil {
			return conf, err
		}
	}
	strs := map[string]*string{
		"image":      &conf.ImagePath,
		"format":     &conf.FrameFormat,
		"frames-dir": &conf.FramesDir,
		"archive":    &conf.ArchivePath,
		"metadata":   &conf.MetadataPath,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	ints := map[string]*int{
		"height":        &conf.ImageHeight,
		"width":         &conf.ImageWidth,
		"tile-height":   &conf.TileHeight,
		"tile-width":    &conf.TileWidth,
		"workers":       &conf.Workers,
		"reproductions": &conf.Reproductions,
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	if c.IsSet("delay") {
		conf.Delay = c.Duration("delay")
	}
	if c.IsSet("clean") {
		conf.Clean = c.Bool("clean")
	}
	return conf, conf.Validate()
}

func reproduce(ctx context.Context, ids []uint64, out string) error {
	fe := encoder.NewFrameEncoder(cfg.FrameFormat)
	if out != "" {
		if err := storage.CreateFramesDir(out); err != nil {
			return err
		}
	}
	e := core.NewSerialEngine(cfg)
	for _, id := range ids {
		img, err := e.ReproduceFrame(ctx, id)
		switch {
		case errors.Is(err, frames.ErrOutOfRange), errors.Is(err, encoder.ErrInvalidRegion):
			// logged by the engine, no result for this id
			continue
		case err != nil:
			return fmt.Errorf("frame %d: %w", id, err)
		}
		log.Infof("Virtual frame %d reproduced: %v", id, img.Bounds())
		if out == "" {
			continue
		}
		path := storage.FramePath(out, id, fe.Ext())
		if err := fe.Save(path, img); err != nil {
			return err
		}
		log.Infof("Saved to %s", path)
	}
	return nil
}

func parseIDs(args cli.Args) ([]uint64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one frame id is required")
	}
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frame id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// workers that had to be force-cancelled still leave a complete result
func tolerateTimeout(err error) error {
	if errors.Is(err, workers.ErrShutdownTimeout) {
		log.Warn(err)
		return nil
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
