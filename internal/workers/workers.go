package workers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/encoder"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/job"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/meta"
	"github.com/1F47E/go-tilereel/internal/storage"
)

var log = logger.Log

var ErrShutdownTimeout = errors.New("workers did not stop within the grace period")

// Worker holds what every pool goroutine shares: the immutable config and the
// kill context. Cancelling ctx is the forced shutdown, it aborts waits that
// are still in flight.
type Worker struct {
	ctx     context.Context
	cfg     config.Config
	grid    frames.Grid
	encoder *encoder.FrameEncoder
}

func NewWorker(ctx context.Context, cfg config.Config) *Worker {
	return &Worker{
		ctx:     ctx,
		cfg:     cfg,
		grid:    cfg.Grid(),
		encoder: encoder.NewFrameEncoder(cfg.FrameFormat),
	}
}

// GenerateFrame renders frame id into the frames dir. The main image is
// decoded for every frame, workers never share a decoded image.
func (w *Worker) GenerateFrame(id uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame %d: panic: %v", id, r)
		}
	}()

	img, err := encoder.Decode(w.cfg.ImagePath)
	if err != nil {
		return err
	}
	x, y, err := w.grid.Coordinates(id)
	if err != nil {
		return err
	}
	frame, err := encoder.Crop(img, x, y, w.cfg.TileWidth, w.cfg.TileHeight)
	if err != nil {
		return err
	}
	return w.encoder.Save(storage.FramePath(w.cfg.FramesDir, id, w.encoder.Ext()), frame)
}

// WorkerGenerate consumes jobs until the channel is closed or the kill context
// is cancelled. The outcome of frame i goes to resChs[i%len(resChs)], the
// caller keeps at most one frame in flight per channel.
func (w *Worker) WorkerGenerate(i int, jobs <-chan job.Gen, resChs []chan job.GenRes) {
	name := fmt.Sprintf("WorkerGenerate #%d", i)
	log.Debugf("%s started", name)
	defer log.Debugf("%s finished", name)

	for {
		select {
		case <-w.ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			now := time.Now()
			err := w.GenerateFrame(j.FrameID)
			if err != nil {
				log.WithField("frame", j.FrameID).Warnf("%s failed: %v", name, err)
			} else {
				log.Debugf("%s frame %d done. Took time: %s", name, j.FrameID, time.Since(now))
			}
			// buffered by 1, never blocks
			resChs[j.FrameID%uint64(len(resChs))] <- job.GenRes{FrameID: j.FrameID, OK: err == nil}
		}
	}
}

// ReproduceFrame crops the frame described by records[id] out of a freshly
// decoded source image.
func ReproduceFrame(records []meta.FrameMetadata, id uint64) (image.Image, error) {
	if id >= uint64(len(records)) {
		return nil, &frames.OutOfRangeError{ID: id, Total: uint64(len(records))}
	}
	rec := records[id]
	img, err := encoder.Decode(rec.SourcePath)
	if err != nil {
		return nil, err
	}
	return encoder.Crop(img, rec.X, rec.Y, rec.Width, rec.Height)
}

// Reproducer is one long-lived worker of the reproduction pool.
//
// Lifecycle: Starting (load metadata) -> Ready -> Waiting <-> Processing -> Stopped.
// Stop is signalled by cancelling the stop context passed to Run; a request
// being processed is finished first.
type Reproducer struct {
	*Worker
	id       int
	queue    <-chan uint64
	outcomes chan<- job.Outcome
}

func (w *Worker) NewReproducer(id int, queue <-chan uint64, outcomes chan<- job.Outcome) *Reproducer {
	return &Reproducer{Worker: w, id: id, queue: queue, outcomes: outcomes}
}

// Run loads the metadata once, reports readiness and serves requests until stop
// is cancelled. A metadata load failure is returned before ready is signalled.
func (r *Reproducer) Run(stop context.Context, ready chan<- int) error {
	name := fmt.Sprintf("WorkerReproduce #%d", r.id)
	log := log.WithField("worker", r.id)

	records, err := meta.Load(r.cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debugf("%s ready with %d records", name, len(records))
	select {
	case ready <- r.id:
	case <-stop.Done():
		return nil
	}

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()
	defer log.Debugf("%s stopped", name)

	for {
		select {
		case <-stop.Done():
			return nil
		case <-r.ctx.Done():
			return nil
		case <-poll.C:
			// idle, loop to re-check stop
		case id := <-r.queue:
			o := r.process(records, id)
			if !o.OK {
				log.WithField("frame", id).Warnf("%s: %v", name, o.Err)
			}
			select {
			case r.outcomes <- o:
			case <-r.ctx.Done():
				return nil
			}
		}
	}
}

func (r *Reproducer) process(records []meta.FrameMetadata, id uint64) (o job.Outcome) {
	o = job.Outcome{FrameID: id, Worker: r.id}
	defer func() {
		if rec := recover(); rec != nil {
			o.OK = false
			o.Err = fmt.Errorf("frame %d: panic: %v", id, rec)
		}
	}()
	if _, err := ReproduceFrame(records, id); err != nil {
		o.Err = err
		return o
	}
	if r.cfg.Delay > 0 {
		t := time.NewTimer(r.cfg.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.ctx.Done():
			o.Err = fmt.Errorf("frame %d: %w", id, r.ctx.Err())
			return o
		}
	}
	o.OK = true
	return o
}

// Await runs wait in the background and reports whether it returned within grace.
func Await(wait func(), grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
