package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/encoder"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher regenerates physical frames, the archive and the metadata each
// time the main image is written or replaced.
type Watcher struct {
	cfg      config.Config
	gen      Generator
	serial   *SerialEngine
	watcher  *fsnotify.Watcher
	target   string
	debounce time.Duration

	// OnRegenerate, when set, is called after every regeneration.
	OnRegenerate func(Report, error)
}

// NewWatcher starts watching the directory of the main image. Editors often
// replace files instead of writing them, so the file itself is not watched.
func NewWatcher(cfg config.Config, gen Generator) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(cfg.ImagePath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{
		cfg:      cfg,
		gen:      gen,
		serial:   NewSerialEngine(cfg),
		watcher:  fw,
		target:   filepath.Clean(cfg.ImagePath),
		debounce: defaultDebounce,
	}, nil
}

// Run handles events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	log := log.WithField("scope", "watch")
	defer w.watcher.Close()
	log.Infof("Watching %s for changes", w.target)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debugf("Main image changed: %s", event)
			// many events arrive for a single save
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Watcher error: %v", err)

		case <-fire:
			fire = nil
			rep, err := w.regenerate(ctx)
			if err != nil {
				log.Errorf("Regeneration failed: %v", err)
			} else {
				log.Info(rep.Print())
			}
			if w.OnRegenerate != nil {
				w.OnRegenerate(rep, err)
			}
		}
	}
}

func (w *Watcher) regenerate(ctx context.Context) (Report, error) {
	width, height, err := encoder.Size(w.cfg.ImagePath)
	if err != nil {
		return Report{}, err
	}
	if width < w.cfg.ImageWidth || height < w.cfg.ImageHeight {
		log.WithField("scope", "watch").Warnf("Main image is %dx%d, smaller than the configured %dx%d: frames past its edge will fail",
			width, height, w.cfg.ImageWidth, w.cfg.ImageHeight)
	}
	rep, err := w.gen.GeneratePhysical(ctx)
	if err != nil {
		return rep, err
	}
	return rep, w.serial.GenerateMetadata(ctx)
}
