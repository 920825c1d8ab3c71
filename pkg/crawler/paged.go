package crawler

import (
	"context"
	"time"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/retry"
)

// PageFetcher returns one page of results for query and the cursor of the
// next page. An empty next cursor means there are no more pages.
type PageFetcher interface {
	FetchPage(ctx context.Context, query, cursor string) ([]*models.MediaItem, string, error)
}

// PagedOptions tunes the API crawler
type PagedOptions struct {
	// StallThreshold ends the crawl after this many pages in a row add
	// nothing new
	StallThreshold int
	// PageDelay is the pause between pages
	PageDelay time.Duration
	EnsureAlt bool
}

// PagedCrawler collects items by following API cursors
type PagedCrawler struct {
	fetcher PageFetcher
	opts    PagedOptions
	retry   *retry.Config
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPagedCrawler creates a crawler over fetcher. Each page is retried
// according to retryCfg.
func NewPagedCrawler(fetcher PageFetcher, opts PagedOptions, retryCfg *retry.Config, log logger.Logger) *PagedCrawler {
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = DefaultStallThreshold
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &PagedCrawler{
		fetcher: fetcher,
		opts:    opts,
		retry:   retryCfg,
		logger:  logger.Or(log),
		sleep:   retry.Wait,
	}
}

type page struct {
	items []*models.MediaItem
	next  string
}

// Collect pages through s.Query. Transient failures end the crawl with the
// items collected so far. Other failures on the first page are returned.
func (c *PagedCrawler) Collect(ctx context.Context, s Session) ([]*models.MediaItem, error) {
	log := c.logger.WithField("query", s.Query)
	logger.LogComponentStart(log, "paged crawler", map[string]interface{}{
		"target": s.Target,
	})

	col := newCollector(s.Target, c.opts.EnsureAlt)
	cursor := ""
	stalled := 0
	reason := "no more pages"

	for n := 1; ; n++ {
		p, err := retry.DoWithResult(ctx, func(ctx context.Context, _ int) (page, error) {
			items, next, err := c.fetcher.FetchPage(ctx, s.Query, cursor)
			return page{items: items, next: next}, err
		}, c.retry)
		if err != nil {
			if ctx.Err() != nil {
				return col.items, ctx.Err()
			}
			if n == 1 && !errs.IsTransient(err) {
				return nil, err
			}
			log.WithError(err).Warn("Page fetch failed, keeping partial results")
			reason = "page fetch failed"
			break
		}

		added := col.add(p.items)
		logger.LogCrawlProgress(log, s.Query, len(col.items), s.Target, n)

		if col.full() {
			reason = "target reached"
			break
		}
		if p.next == "" {
			break
		}
		if added == 0 {
			stalled++
			if stalled >= c.opts.StallThreshold {
				reason = "no new items"
				break
			}
		} else {
			stalled = 0
		}

		cursor = p.next
		if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
			return col.items, err
		}
	}

	logger.LogComponentStop(log, "paged crawler", reason)
	return col.items, nil
}
