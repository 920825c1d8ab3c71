package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pinscraper/pkg/models"
)

// pinDiv renders one pin container the way the live grid does
func pinDiv(id, alt string) string {
	return fmt.Sprintf(
		`<div data-test-id="pin" data-test-pin-id="%s"><a href="/pin/%s/"><img src="https://i.pinimg.com/236x/ab/cd/%s.jpg" alt="%s"></a></div>`,
		id, id, id, alt)
}

func pinPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		b.WriteString(pinDiv(id, "alt "+id))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func idRange(from, to int) []string {
	var ids []string
	for i := from; i < to; i++ {
		ids = append(ids, fmt.Sprintf("%d", 1000+i))
	}
	return ids
}

// fakeBrowser serves one snapshot per scroll position. Once the script runs
// out the last snapshot repeats.
type fakeBrowser struct {
	mu        sync.Mutex
	snapshots []string
	pos       int
	navigated []string

	navErr    error
	htmlErrs  map[int]error
	scrollErr map[int]error
	clicks    int
	htmlCalls int
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeBrowser) CurrentURL(context.Context) (string, error) {
	return "https://www.pinterest.com/someone/board/", nil
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.htmlCalls++
	if err, ok := f.htmlErrs[f.pos]; ok {
		return "", err
	}
	if len(f.snapshots) == 0 {
		return "<html></html>", nil
	}
	i := f.pos
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	return f.snapshots[i], nil
}

func (f *fakeBrowser) ScrollDown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.scrollErr[f.pos]; ok {
		return err
	}
	f.pos++
	return nil
}

func (f *fakeBrowser) ClickLoadMore(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks++
	return false, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func itemIDs(items []*models.MediaItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
