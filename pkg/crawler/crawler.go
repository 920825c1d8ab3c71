// Package crawler discovers media items, either by driving a live browser
// page through an infinite-scroll feed or by paging a JSON API.
//
// Both sources deduplicate by item id within a session and stop at the
// session target. The scroll crawler also stops once a number of
// consecutive passes turn up nothing new.
package crawler

import (
	"context"
	"errors"

	"pinscraper/pkg/models"
)

const (
	// DefaultStallThreshold is the number of consecutive empty passes that
	// end a crawl
	DefaultStallThreshold = 10

	// DefaultMaxPasses bounds a crawl even when it never stalls
	DefaultMaxPasses = 800
)

// ErrStaleElement is returned by a Browser when the element it was working
// with left the document. Crawlers treat it as harmless.
var ErrStaleElement = errors.New("stale element reference")

// Session describes one crawl
type Session struct {
	// Query is the page URL for browser sources, or a board URL or search
	// term for API sources
	Query string
	// Target caps the number of items; 0 means no cap
	Target int
}

// Source discovers items for a session. Items come back in discovery order
// with unique ids; thumbnail URLs are already upgraded.
type Source interface {
	Collect(ctx context.Context, s Session) ([]*models.MediaItem, error)
}

// Browser is a live page the scroll crawler drives
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// HTML returns a snapshot of the current document
	HTML(ctx context.Context) (string, error)
	// ScrollDown asks the page for more content, e.g. with a Page Down key
	ScrollDown(ctx context.Context) error
	// ClickLoadMore presses a "load more" control when the page shows one
	ClickLoadMore(ctx context.Context) (bool, error)
}

// collector deduplicates items by id in discovery order
type collector struct {
	seen      map[string]bool
	items     []*models.MediaItem
	target    int
	ensureAlt bool
}

func newCollector(target int, ensureAlt bool) *collector {
	return &collector{seen: make(map[string]bool), target: target, ensureAlt: ensureAlt}
}

// add appends unseen candidates until the target is reached and reports
// how many were new
func (c *collector) add(candidates []*models.MediaItem) int {
	added := 0
	for _, item := range candidates {
		if c.full() {
			break
		}
		if item.ID == "" || item.Src == "" || c.seen[item.ID] {
			continue
		}
		if c.ensureAlt && item.Alt == "" {
			continue
		}
		c.seen[item.ID] = true
		c.items = append(c.items, item)
		added++
	}
	return added
}

func (c *collector) full() bool {
	return c.target > 0 && len(c.items) >= c.target
}
