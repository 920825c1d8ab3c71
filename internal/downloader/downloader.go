// Package downloader materializes media items into a project directory
// using a bounded pool of workers.
package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/media"
	"pinscraper/pkg/models"
	"pinscraper/pkg/ratelimit"
	"pinscraper/pkg/retry"
	"pinscraper/pkg/storage"
	"pinscraper/pkg/transcode"
)

// DefaultWorkers is the pool width used when Options.Workers is unset
const DefaultWorkers = 4

// Fetcher streams the body of a media URL
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// Remuxer turns a video stream URL into a local file
type Remuxer interface {
	Remux(ctx context.Context, streamURL, output string, headers map[string]string) error
}

// Options controls one Download call
type Options struct {
	// IncludeStreams fetches video streams through the Remuxer instead of
	// their still image. Requires a Remuxer.
	IncludeStreams bool
	Workers        int
	// FailFast cancels the remaining items after the first failure
	FailFast    bool
	MaxAttempts int
}

// Report is the per-item outcome of a batch, in input order
type Report struct {
	models.BatchReport
	Aborted  bool
	Duration time.Duration
}

// ProgressFunc is called from the collecting goroutine after every item
type ProgressFunc func(done, total int, outcome models.Outcome)

// Downloader fetches media items concurrently
type Downloader struct {
	fetcher  Fetcher
	remuxer  Remuxer
	limiter  ratelimit.Limiter
	retry    *retry.Config
	headers  map[string]string
	progress ProgressFunc
	logger   logger.Logger
}

// New creates a downloader. limiter and retryCfg may be nil.
func New(fetcher Fetcher, limiter ratelimit.Limiter, retryCfg *retry.Config, log logger.Logger) *Downloader {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Downloader{
		fetcher: fetcher,
		limiter: limiter,
		retry:   retryCfg,
		logger:  logger.Or(log),
	}
}

// SetRemuxer enables stream downloads
func (d *Downloader) SetRemuxer(r Remuxer, headers map[string]string) {
	d.remuxer = r
	d.headers = headers
}

// SetProgress registers a progress callback
func (d *Downloader) SetProgress(fn ProgressFunc) {
	d.progress = fn
}

// Download fetches every item into outputDir. Item failures are recorded in
// the report and never returned as an error; the error return is reserved
// for failures that affect the whole batch, such as an output directory
// that cannot be created, or ctx being cancelled by the caller.
//
// Successful items gain a LocalPath, and a Resolution when it was unknown
// and the file is an image.
func (d *Downloader) Download(ctx context.Context, items []*models.MediaItem, outputDir string, opts Options) (*Report, error) {
	if opts.IncludeStreams && d.remuxer == nil {
		return nil, errs.NewConfigError("stream downloads requested without a transcoder")
	}

	mgr, err := storage.NewManager(outputDir)
	if err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	retryCfg := *d.retry
	if opts.MaxAttempts > 0 {
		retryCfg.MaxAttempts = opts.MaxAttempts
	}
	retryCfg.Logger = d.logger

	start := time.Now()
	report := &Report{}
	report.Outcomes = make([]models.Outcome, len(items))
	if len(items) == 0 {
		return report, nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	process := func(ctx context.Context, job downloadJob, workerID int) downloadResult {
		result := d.processJob(ctx, job, workerID, mgr, opts, &retryCfg)
		if opts.FailFast && result.outcome.Status == models.StatusFailed {
			// Cancel before the worker picks up its next job.
			cancel()
		}
		return result
	}
	pool := newWorkerPool(opts.Workers, process, d.logger)

	filled := make([]bool, len(items))
	done := 0
	for result := range pool.run(batchCtx, items) {
		report.Outcomes[result.index] = result.outcome
		filled[result.index] = true
		done++

		if result.outcome.Status == models.StatusFailed && opts.FailFast && !report.Aborted {
			report.Aborted = true
			d.logger.WarnWithFields("Aborting batch after failure", map[string]interface{}{
				"item_id": result.outcome.Item.ID,
			})
		}
		if d.progress != nil {
			d.progress(done, len(items), result.outcome)
		}
	}

	for i, ok := range filled {
		if !ok {
			report.Outcomes[i] = models.Skipped(items[i], "batch cancelled")
		}
	}
	report.Duration = time.Since(start)

	logger.LogMetrics(d.logger, "download", map[string]interface{}{
		"total":     len(items),
		"succeeded": report.Count(models.StatusSucceeded),
		"failed":    report.Count(models.StatusFailed),
		"skipped":   report.Count(models.StatusSkipped),
		"duration":  report.Duration,
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// processJob handles a single download job
func (d *Downloader) processJob(ctx context.Context, job downloadJob, workerID int, mgr *storage.Manager, opts Options, retryCfg *retry.Config) downloadResult {
	start := time.Now()
	item := job.item

	d.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"item_id":   item.ID,
	})

	var (
		path string
		err  error
	)
	if item.IsStream && opts.IncludeStreams && item.StreamURL != "" {
		path, err = d.fetchStream(ctx, item, mgr, retryCfg)
	} else {
		path, err = d.fetchStill(ctx, item, mgr, retryCfg)
	}

	result := downloadResult{index: job.index, duration: time.Since(start)}
	if err != nil {
		if ctx.Err() != nil {
			result.outcome = models.Skipped(item, "batch cancelled")
			return result
		}
		logger.LogDownload(d.logger, item.ID, item.Src, false, err)
		result.outcome = models.Failed(item, err)
		return result
	}

	item.LocalPath = path
	if !item.Resolution.Known() && !media.IsVideo(path) {
		if res, err := media.MeasureResolution(path); err == nil {
			item.Resolution = res
		} else {
			d.logger.WarnWithFields("Could not measure resolution", map[string]interface{}{
				"item_id": item.ID,
				"path":    path,
				"error":   err.Error(),
			})
		}
	}

	logger.LogDownload(d.logger, item.ID, item.Src, true, nil)
	result.outcome = models.Succeeded(item)
	return result
}

func (d *Downloader) fetchStill(ctx context.Context, item *models.MediaItem, mgr *storage.Manager, retryCfg *retry.Config) (string, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context, attempt int) (string, error) {
		if err := d.limiter.Wait(ctx, ratelimit.HostOf(item.Src)); err != nil {
			return "", err
		}

		body, contentType, err := d.fetcher.Download(ctx, item.Src)
		if err != nil {
			return "", err
		}
		defer body.Close()

		path, _, err := mgr.Save(body, item.ID, storage.ExtensionFor(item.Src, contentType))
		if err != nil {
			return "", errs.New(errs.ErrorTypeNetwork, 0, "failed to save %s: %v", item.ID, err)
		}
		return path, nil
	}, retryCfg)
}

func (d *Downloader) fetchStream(ctx context.Context, item *models.MediaItem, mgr *storage.Manager, retryCfg *retry.Config) (string, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context, attempt int) (string, error) {
		if err := d.limiter.Wait(ctx, ratelimit.HostOf(item.StreamURL)); err != nil {
			return "", err
		}

		temp := mgr.TempPath(item.ID, transcode.OutputExtension)
		if err := d.remuxer.Remux(ctx, item.StreamURL, temp, d.headers); err != nil {
			return "", fmt.Errorf("stream %s: %w", item.ID, err)
		}
		return mgr.Commit(temp, item.ID, transcode.OutputExtension)
	}, retryCfg)
}
