package core

import (
	"context"
	"sync"
	"time"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/job"
	"github.com/1F47E/go-tilereel/internal/progress"
	"github.com/1F47E/go-tilereel/internal/workers"
)

// resultWindowPerWorker bounds how many frames may be in flight per worker.
const resultWindowPerWorker = 4

// ParallelEngine writes the same files as SerialEngine using a fixed pool of
// workers. Every frame is an independent task that decodes the main image on
// its own; a failing task is counted and logged, the others carry on.
type ParallelEngine struct {
	source
}

func NewParallelEngine(cfg config.Config) *ParallelEngine {
	return &ParallelEngine{source: newSource(cfg)}
}

// 1. start W workers reading one jobs channel
// 2. feed every frame id to the jobs channel
// 3. read the ring of result channels in submission order and tally them
// 4. close the pool with a grace period, force-cancel if it does not quiesce
// 5. archive the frames dir
func (e *ParallelEngine) GeneratePhysical(ctx context.Context) (Report, error) {
	log := log.WithField("scope", "parallel generate")
	start := time.Now()
	total := e.total()
	rep := Report{Total: total}
	log.Infof("Generating %d physical frames (%s) with %d workers", total, e.grid, e.cfg.Workers)

	if err := e.prepare(); err != nil {
		return rep, err
	}

	// cancelling killCtx is the forced shutdown
	killCtx, kill := context.WithCancel(ctx)
	defer kill()
	worker := workers.NewWorker(killCtx, e.cfg)

	// ring of result channels, frame i reports to resChs[i%window].
	// The feeder takes a slot before sending frame i and the collector frees it
	// after reading, so frame i is only in flight once frame i-window is collected.
	window := uint64(e.cfg.Workers) * resultWindowPerWorker
	if window > total {
		window = total
	}
	resChs := make([]chan job.GenRes, window)
	for i := range resChs {
		resChs[i] = make(chan job.GenRes, 1)
	}
	slots := make(chan struct{}, window)

	jobs := make(chan job.Gen, e.cfg.Workers)
	wg := sync.WaitGroup{}
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			worker.WorkerGenerate(i+1, jobs, resChs)
		}(i)
	}

	// send all the jobs
	go func() {
		defer close(jobs)
		for i := uint64(0); i < total; i++ {
			select {
			case slots <- struct{}{}:
			case <-killCtx.Done():
				return
			}
			select {
			case jobs <- job.Gen{FrameID: i}:
			case <-killCtx.Done():
				return
			}
		}
	}()

	p := progress.New("Generating frames...", int64(total), e.cfg.ProgressEvery)
	for i := uint64(0); i < total; i++ {
		select {
		case <-ctx.Done():
			p.Finish()
			kill()
			workers.Await(wg.Wait, e.cfg.GenerateGrace)
			rep.Elapsed = time.Since(start)
			return rep, ctx.Err()
		case res := <-resChs[i%window]:
			<-slots
			p.Add(res.OK)
			if res.OK {
				rep.Succeeded++
			} else {
				// the worker already logged the cause
				rep.Failed++
				log.WithField("frame", i).Debug("Frame counted as failed")
			}
		}
	}
	p.Finish()

	// jobs is closed by the feeder, idle workers exit on their own
	if !workers.Await(wg.Wait, e.cfg.GenerateGrace) {
		log.Errorf("Workers did not stop within %s, forcing shutdown", e.cfg.GenerateGrace)
		kill()
		rep.ShutdownTimedOut = true
	}
	log.Infof("Parallel frame generation completed in %s: %d ok, %d failed",
		time.Since(start).Round(time.Millisecond), rep.Succeeded, rep.Failed)

	var err error
	rep.Archived, err = e.archive()
	rep.Elapsed = time.Since(start)
	if err != nil {
		return rep, err
	}
	if rep.ShutdownTimedOut {
		return rep, workers.ErrShutdownTimeout
	}
	return rep, nil
}
