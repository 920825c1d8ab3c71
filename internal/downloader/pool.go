package downloader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
)

// downloadJob is one item together with its position in the batch
type downloadJob struct {
	index int
	item  *models.MediaItem
}

// downloadResult carries the outcome of a job back to the collector
type downloadResult struct {
	index    int
	outcome  models.Outcome
	duration time.Duration
}

// processFunc handles a single job on a worker goroutine
type processFunc func(ctx context.Context, job downloadJob, workerID int) downloadResult

// workerPool runs one batch of jobs across a fixed number of workers.
// Cancelling its context stops the producer; workers drain the remaining
// queued jobs as skipped.
type workerPool struct {
	numWorkers  int
	jobQueue    chan downloadJob
	resultQueue chan downloadResult
	process     processFunc
	logger      logger.Logger
}

func newWorkerPool(numWorkers int, process processFunc, log logger.Logger) *workerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &workerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan downloadJob, numWorkers*2),
		resultQueue: make(chan downloadResult, numWorkers),
		process:     process,
		logger:      logger.Or(log),
	}
}

// run feeds items to the workers and returns the result channel. The
// channel is closed once every worker has exited.
func (wp *workerPool) run(ctx context.Context, items []*models.MediaItem) <-chan downloadResult {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"jobs":        len(items),
	})

	var g errgroup.Group

	g.Go(func() error {
		defer close(wp.jobQueue)
		for i, item := range items {
			select {
			case wp.jobQueue <- downloadJob{index: i, item: item}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		g.Go(func() error {
			wp.worker(ctx, id)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(wp.resultQueue)
		wp.logger.Debug("Worker pool stopped")
	}()

	return wp.resultQueue
}

// worker is the main worker routine
func (wp *workerPool) worker(ctx context.Context, id int) {
	for job := range wp.jobQueue {
		var result downloadResult
		if ctx.Err() != nil {
			result = downloadResult{
				index:   job.index,
				outcome: models.Skipped(job.item, "batch cancelled"),
			}
		} else {
			result = wp.process(ctx, job, id)
		}
		// The collector always drains resultQueue, so this never blocks forever.
		wp.resultQueue <- result
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}
