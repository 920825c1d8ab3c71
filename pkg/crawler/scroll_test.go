package crawler

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
)

func newTestScroll(b *fakeBrowser, opts Options) *ScrollCrawler {
	c := NewScrollCrawler(b, opts, logger.NewNopLogger())
	c.sleep = noSleep
	return c
}

func TestScrollCrawler_CollectsInDiscoveryOrder(t *testing.T) {
	b := &fakeBrowser{snapshots: []string{
		pinPage("1", "2"),
		pinPage("1", "2", "3"),
		pinPage("2", "3", "4", "5"),
	}}
	c := newTestScroll(b, Options{StallThreshold: 3, MaxPasses: 50})

	items, err := c.Collect(context.Background(), Session{Query: "https://www.pinterest.com/someone/board/"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, itemIDs(items))
	assert.Equal(t, []string{"https://www.pinterest.com/someone/board/"}, b.navigated)
	assert.Equal(t, "https://www.pinterest.com/pin/1/", items[0].Origin)
	assert.Equal(t, "https://i.pinimg.com/originals/ab/cd/1.jpg", items[0].Src)
}

func TestScrollCrawler_StallTermination(t *testing.T) {
	b := &fakeBrowser{snapshots: []string{pinPage(idRange(0, 4)...)}}
	c := newTestScroll(b, Options{StallThreshold: 10, MaxPasses: 800})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)

	assert.Len(t, items, 4)
	// one productive pass, then ten empty ones
	assert.Equal(t, 11, b.htmlCalls)
}

func TestScrollCrawler_StallCounterResets(t *testing.T) {
	b := &fakeBrowser{snapshots: []string{
		pinPage("1"),
		pinPage("1"),
		pinPage("1", "2"),
		pinPage("1", "2"),
		pinPage("1", "2"),
	}}
	c := newTestScroll(b, Options{StallThreshold: 2, MaxPasses: 100})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, itemIDs(items))
	assert.Equal(t, 5, b.htmlCalls)
}

func TestScrollCrawler_TargetReached(t *testing.T) {
	b := &fakeBrowser{snapshots: []string{
		pinPage(idRange(0, 3)...),
		pinPage(idRange(0, 10)...),
	}}
	c := newTestScroll(b, Options{StallThreshold: 5, MaxPasses: 100})

	items, err := c.Collect(context.Background(), Session{Query: "q", Target: 5})
	require.NoError(t, err)

	assert.Equal(t, idRange(0, 5), itemIDs(items))
	assert.Equal(t, 2, b.htmlCalls)
}

func TestScrollCrawler_MaxPasses(t *testing.T) {
	var snapshots []string
	for i := 1; i <= 20; i++ {
		snapshots = append(snapshots, pinPage(idRange(0, i)...))
	}
	b := &fakeBrowser{snapshots: snapshots}
	c := newTestScroll(b, Options{StallThreshold: 3, MaxPasses: 7})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)

	assert.Len(t, items, 7)
	assert.Equal(t, 7, b.htmlCalls)
}

func TestScrollCrawler_DedupsThumbnailAndOriginal(t *testing.T) {
	original := `<div data-test-id="pin" data-test-pin-id="1"><a href="/pin/1/"><img src="https://i.pinimg.com/474x/ab/cd/1.jpg" alt="x"></a></div>`
	b := &fakeBrowser{snapshots: []string{
		pinPage("1"),
		"<html><body>" + original + "</body></html>",
	}}
	c := newTestScroll(b, Options{StallThreshold: 2, MaxPasses: 10})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://i.pinimg.com/originals/ab/cd/1.jpg", items[0].Src)
}

func TestScrollCrawler_NavigationError(t *testing.T) {
	b := &fakeBrowser{navErr: fmt.Errorf("no route")}
	c := newTestScroll(b, Options{})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	assert.Error(t, err)
	assert.Nil(t, items)
}

func TestScrollCrawler_TransientNavigationError(t *testing.T) {
	b := &fakeBrowser{
		navErr:    &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNRESET},
		snapshots: []string{pinPage("1")},
	}
	tl := logger.NewTestLogger()
	c := NewScrollCrawler(b, Options{}, tl)
	c.sleep = noSleep

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, b.htmlCalls)
	assert.True(t, tl.HasMessage("Navigation failed on a dropped connection, nothing collected"))
}

func TestScrollCrawler_StaleElementIgnored(t *testing.T) {
	b := &fakeBrowser{
		snapshots: []string{pinPage("1"), pinPage("1", "2"), pinPage("1", "2", "3")},
		htmlErrs:  map[int]error{1: ErrStaleElement},
	}
	c := newTestScroll(b, Options{StallThreshold: 3, MaxPasses: 20})

	items, err := c.Collect(context.Background(), Session{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, itemIDs(items))
	// the stale pass counts as a stall pass
	assert.Equal(t, 6, b.htmlCalls)
}

func TestScrollCrawler_TransientErrorKeepsPartialResults(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed network error", errs.New(errs.ErrorTypeNetwork, 0, "socket closed")},
		{"unexpected eof", io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBrowser{
				snapshots: []string{pinPage("1", "2"), pinPage("1", "2", "3")},
				htmlErrs:  map[int]error{2: tt.err},
			}
			tl := logger.NewTestLogger()
			c := NewScrollCrawler(b, Options{StallThreshold: 5, MaxPasses: 50}, tl)
			c.sleep = noSleep

			items, err := c.Collect(context.Background(), Session{Query: "q"})
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "2", "3"}, itemIDs(items))
			assert.True(t, tl.HasMessage("Browser connection lost, keeping partial results"))
		})
	}
}

func TestScrollCrawler_Cancelled(t *testing.T) {
	b := &fakeBrowser{snapshots: []string{pinPage("1"), pinPage("1", "2")}}
	c := NewScrollCrawler(b, Options{StallThreshold: 5, MaxPasses: 50}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	items, err := c.Collect(ctx, Session{Query: "q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, itemIDs(items))
}
