package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/job"
	"github.com/1F47E/go-tilereel/internal/progress"
	"github.com/1F47E/go-tilereel/internal/workers"
)

// ReproductionEngine serves on-demand frame reproductions with a pool of
// long-lived workers sharing one request queue and one outcomes channel.
//
// Workers are stopped by cancelling their stop context. No sentinel ids are
// ever queued.
type ReproductionEngine struct {
	source
}

type ReproductionReport struct {
	Requested  int
	Dispatched int
	Succeeded  int
	Failed     int
	Elapsed    time.Duration
	// workers had to be force-cancelled after the grace period
	ShutdownTimedOut bool
}

func (r ReproductionReport) Print() string {
	return fmt.Sprintf("%d/%d frames reproduced, %d failed in %s",
		r.Succeeded, r.Dispatched, r.Failed, r.Elapsed.Round(time.Millisecond))
}

func NewReproductionEngine(cfg config.Config) *ReproductionEngine {
	return &ReproductionEngine{source: newSource(cfg)}
}

// RunFirst reproduces the first k frames. k is clamped to the number of
// frames of the configured grid.
func (e *ReproductionEngine) RunFirst(ctx context.Context, k int) (ReproductionReport, error) {
	total := e.total()
	actualK := uint64(k)
	if k < 0 {
		actualK = 0
	}
	if actualK > total {
		log.WithField("scope", "reproduce").Warnf("Requested %d frames but only %d exist, reproducing %d", k, total, total)
		actualK = total
	}
	ids := make([]uint64, actualK)
	for i := range ids {
		ids[i] = uint64(i)
	}
	rep, err := e.Run(ctx, ids)
	rep.Requested = k
	return rep, err
}

// Run reproduces every id of ids once. Ids outside the metadata produce
// failed outcomes. The call returns after exactly len(ids) outcomes have been
// drained and the pool has stopped.
//
// If any worker cannot load the metadata the engine stops all workers and
// returns the error (wrapping meta.ErrLoad) without dispatching a request.
// If the pool does not stop within the grace period it is force-cancelled and
// workers.ErrShutdownTimeout is returned with an otherwise complete report.
func (e *ReproductionEngine) Run(ctx context.Context, ids []uint64) (ReproductionReport, error) {
	log := log.WithField("scope", "reproduce")
	start := time.Now()
	rep := ReproductionReport{Requested: len(ids)}
	n := e.cfg.Workers
	log.Infof("Reproducing %d virtual frames with %d workers", len(ids), n)

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(stopCtx)

	// both buffered to the request count, pushes never block
	queue := make(chan uint64, len(ids))
	outcomes := make(chan job.Outcome, len(ids))
	ready := make(chan int, n)

	worker := workers.NewWorker(killCtx, e.cfg)
	for i := 0; i < n; i++ {
		r := worker.NewReproducer(i+1, queue, outcomes)
		g.Go(func() error {
			return r.Run(gctx, ready)
		})
	}

	// startup barrier: every worker has its metadata before anything is queued
	for started := 0; started < n; {
		select {
		case <-ready:
			started++
		case <-gctx.Done():
			started = n
		}
	}
	if gctx.Err() != nil {
		stop()
		err := g.Wait()
		if err == nil {
			err = ctx.Err()
		}
		log.Errorf("Reproduction engine failed to start: %v", err)
		rep.Elapsed = time.Since(start)
		return rep, fmt.Errorf("reproduction engine startup: %w", err)
	}

	for _, id := range ids {
		queue <- id
	}
	rep.Dispatched = len(ids)

	p := progress.New("Reproducing frames...", int64(len(ids)), e.cfg.ProgressEvery)
	var runErr error
drain:
	for i := 0; i < len(ids); i++ {
		select {
		case o := <-outcomes:
			p.Add(o.OK)
			if o.OK {
				rep.Succeeded++
				log.Debug(o.Print())
			} else {
				rep.Failed++
			}
		case <-gctx.Done():
			runErr = ctx.Err()
			break drain
		}
	}
	p.Finish()

	stop()
	if !workers.Await(func() { _ = g.Wait() }, e.cfg.ReproduceGrace) {
		log.Errorf("Reproduction workers did not stop within %s, forcing shutdown", e.cfg.ReproduceGrace)
		kill()
		rep.ShutdownTimedOut = true
	}
	rep.Elapsed = time.Since(start)
	log.Infof("Concurrent reproduction completed: %s", rep.Print())

	if runErr != nil {
		return rep, runErr
	}
	if rep.ShutdownTimedOut {
		return rep, workers.ErrShutdownTimeout
	}
	return rep, nil
}
