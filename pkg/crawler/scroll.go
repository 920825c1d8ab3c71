package crawler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/retry"
)

// Options tunes the scroll crawler
type Options struct {
	StallThreshold int
	MaxPasses      int
	// ScrollJitter bounds the random pause after each scroll
	ScrollJitterMin time.Duration
	ScrollJitterMax time.Duration
	// PassDelay is the pause after the load-more step
	PassDelay time.Duration
	EnsureAlt bool
	// BaseURL resolves relative pin links; empty means the page URL
	BaseURL string
}

// DefaultOptions returns the pacing used against the live site
func DefaultOptions() Options {
	return Options{
		StallThreshold:  DefaultStallThreshold,
		MaxPasses:       DefaultMaxPasses,
		ScrollJitterMin: time.Second,
		ScrollJitterMax: 2 * time.Second,
		PassDelay:       2 * time.Second,
	}
}

// ScrollCrawler collects pins from an infinite-scroll page. Each pass takes
// a snapshot of the page, records unseen pins, then scrolls and presses a
// load-more control if one is shown.
type ScrollCrawler struct {
	browser Browser
	opts    Options
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewScrollCrawler creates a crawler over browser. Zero thresholds fall
// back to the defaults.
func NewScrollCrawler(browser Browser, opts Options, log logger.Logger) *ScrollCrawler {
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = DefaultStallThreshold
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	return &ScrollCrawler{
		browser: browser,
		opts:    opts,
		logger:  logger.Or(log),
		sleep:   retry.Wait,
	}
}

// Collect runs the scroll loop for s.Query, a page URL. It returns early
// with the items found so far when the page stops yielding new pins, when
// the target is reached, or when the browser connection drops, including a
// drop during the initial navigation. Only a non-transient navigation
// failure or ctx cancellation produce an error.
func (c *ScrollCrawler) Collect(ctx context.Context, s Session) ([]*models.MediaItem, error) {
	log := c.logger.WithField("query", s.Query)
	logger.LogComponentStart(log, "scroll crawler", map[string]interface{}{
		"target":          s.Target,
		"stall_threshold": c.opts.StallThreshold,
		"max_passes":      c.opts.MaxPasses,
	})

	if err := c.browser.Navigate(ctx, s.Query); err != nil {
		if ctx.Err() == nil && errs.IsTransient(err) {
			log.WithError(err).Warn("Navigation failed on a dropped connection, nothing collected")
			logger.LogComponentStop(log, "scroll crawler", "connection lost")
			return []*models.MediaItem{}, nil
		}
		return nil, err
	}

	base := c.opts.BaseURL
	if base == "" {
		if current, err := c.browser.CurrentURL(ctx); err == nil {
			base = current
		}
	}

	col := newCollector(s.Target, c.opts.EnsureAlt)
	stalled := 0
	reason := "max passes reached"

loop:
	for pass := 1; pass <= c.opts.MaxPasses; pass++ {
		added, err := c.scan(ctx, col, base)
		if err != nil {
			if stop, cause := c.classify(ctx, err); stop {
				if ctx.Err() != nil {
					return col.items, ctx.Err()
				}
				reason = cause
				break loop
			}
		}

		logger.LogCrawlProgress(log, s.Query, len(col.items), s.Target, pass)

		if col.full() {
			reason = "target reached"
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

		if err := c.advance(ctx); err != nil {
			if stop, cause := c.classify(ctx, err); stop {
				if ctx.Err() != nil {
					return col.items, ctx.Err()
				}
				reason = cause
				break loop
			}
		}
	}

	logger.LogComponentStop(log, "scroll crawler", reason)
	return col.items, nil
}

// scan records the pins in the current snapshot
func (c *ScrollCrawler) scan(ctx context.Context, col *collector, base string) (int, error) {
	html, err := c.browser.HTML(ctx)
	if err != nil {
		return 0, err
	}
	candidates, err := ExtractCandidates(html, base)
	if err != nil {
		return 0, errs.New(errs.ErrorTypeParsing, 0, "failed to parse page: %v", err)
	}
	return col.add(candidates), nil
}

// advance scrolls, pauses, and presses load-more when present
func (c *ScrollCrawler) advance(ctx context.Context) error {
	if err := c.browser.ScrollDown(ctx); err != nil && !errors.Is(err, ErrStaleElement) {
		return err
	}
	if err := c.sleep(ctx, c.jitter()); err != nil {
		return err
	}

	clicked, err := c.browser.ClickLoadMore(ctx)
	if err != nil && !errors.Is(err, ErrStaleElement) {
		return err
	}
	if clicked {
		c.logger.Debug("Clicked load more")
	}
	return c.sleep(ctx, c.opts.PassDelay)
}

func (c *ScrollCrawler) jitter() time.Duration {
	lo, hi := c.opts.ScrollJitterMin, c.opts.ScrollJitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// classify decides whether err ends the loop
func (c *ScrollCrawler) classify(ctx context.Context, err error) (stop bool, reason string) {
	switch {
	case ctx.Err() != nil:
		return true, "cancelled"
	case errors.Is(err, ErrStaleElement):
		c.logger.Debug("Ignoring stale element")
		return false, ""
	case errs.IsTransient(err):
		c.logger.WithError(err).Warn("Browser connection lost, keeping partial results")
		return true, "connection lost"
	default:
		c.logger.WithError(err).Warn("Crawl pass failed")
		return false, ""
	}
}
