package scraper

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscraper/internal/downloader"
	"pinscraper/pkg/crawler"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/pinterest"
	"pinscraper/pkg/project"
	"pinscraper/pkg/ratelimit"
	"pinscraper/pkg/registry"
	"pinscraper/pkg/retry"
)

const testBase = "https://www.pinterest.com"

// pngFetcher serves a 32x16 PNG for every URL
type pngFetcher struct {
	body  []byte
	calls int32
}

func newPNGFetcher(t *testing.T) *pngFetcher {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 16))))
	return &pngFetcher{body: buf.Bytes()}
}

func (f *pngFetcher) Download(_ context.Context, _ string) (io.ReadCloser, string, error) {
	atomic.AddInt32(&f.calls, 1)
	return io.NopCloser(bytes.NewReader(f.body)), "image/png", nil
}

func (f *pngFetcher) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

// fakeSource returns fresh copies of scripted items per query
type fakeSource struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	gen     func(query string) []string
	queries []string
	cookies []*http.Cookie
}

func newFakeSource() *fakeSource {
	return &fakeSource{results: map[string][]string{}, errs: map[string]error{}}
}

func (f *fakeSource) Collect(_ context.Context, s crawler.Session) ([]*models.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, s.Query)

	if err, ok := f.errs[s.Query]; ok {
		return nil, err
	}
	ids, ok := f.results[s.Query]
	if !ok && f.gen != nil {
		ids = f.gen(s.Query)
	}
	if s.Target > 0 && len(ids) > s.Target {
		ids = ids[:s.Target]
	}

	items := make([]*models.MediaItem, len(ids))
	for i, id := range ids {
		items[i] = &models.MediaItem{
			ID:     id,
			Src:    "https://i.pinimg.com/originals/" + id + ".png",
			Alt:    "alt " + id,
			Origin: pinterest.GetPinURL(testBase, id),
		}
	}
	return items, nil
}

func (f *fakeSource) SetCookies(cookies []*http.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = cookies
}

func (f *fakeSource) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type harness struct {
	scraper *Scraper
	fetcher *pngFetcher
	source  *fakeSource
	root    string
	log     *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	root := t.TempDir()
	tl := logger.NewTestLogger()
	fetcher := newPNGFetcher(t)
	dl := downloader.New(fetcher, ratelimit.Unlimited{}, &retry.Config{
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
	}, tl)

	s := New(root, testBase, dl, nil, tl)
	s.SetStreamCheck(func() error { return nil })
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	src := newFakeSource()
	s.SetSource(SourceBrowser, src)
	return &harness{scraper: s, fetcher: fetcher, source: src, root: root, log: tl}
}

func boardRequest(query string) Request {
	return Request{
		Project: "p",
		Query:   query,
		Mode:    ModeBoard,
		Source:  SourceBrowser,
		Target:  5,
	}
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func cacheFiles(t *testing.T, root string) []os.DirEntry {
	entries, err := os.ReadDir(filepath.Join(root, project.CacheDirName))
	require.NoError(t, err)
	return entries
}

func countLines(t *testing.T, path string) int {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func TestRun_SingleLevel(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 7)

	report, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Pipelines())
	assert.Equal(t, 5, report.Root.Discovered)
	assert.Equal(t, 5, report.Root.Downloaded)
	assert.Equal(t, 5, report.Root.Kept)
	assert.Empty(t, report.Root.Children)
	assert.Equal(t, 5, h.fetcher.Calls())

	assert.Len(t, cacheFiles(t, h.root), 1)
	cached, err := project.ReadCache(report.Root.CachePath)
	require.NoError(t, err)
	assert.Len(t, cached, 5)

	reg := registry.NewStore(h.root, nil).Load()
	assert.Len(t, reg, 5)
	for _, id := range ids("", 5) {
		assert.FileExists(t, reg[id].Path)
	}

	assert.Equal(t, 5, countLines(t, filepath.Join(h.root, "p", project.URLLogName)))
	assert.True(t, h.log.HasMessage("Pipeline finished"))
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 5)

	_, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)
	require.Equal(t, 5, h.fetcher.Calls())

	report, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)

	assert.Equal(t, 5, h.fetcher.Calls(), "second run must not download")
	assert.Equal(t, 0, report.Root.Downloaded)
	assert.Equal(t, 5, report.Root.Satisfied)
	assert.True(t, h.log.HasMessage("Project directory already exists, merging results"))

	assert.Len(t, cacheFiles(t, h.root), 2)
	cached, err := project.ReadCache(report.Root.CachePath)
	require.NoError(t, err)
	require.Len(t, cached, 5)
	for _, item := range cached {
		assert.NotEmpty(t, item.LocalPath)
	}
}

func TestRun_RepairsStaleRegistryEntry(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 5)

	_, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)

	reg := registry.NewStore(h.root, nil).Load()
	removed := reg["3"].Path
	require.NoError(t, os.Remove(removed))

	report, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)

	assert.Equal(t, 6, h.fetcher.Calls())
	assert.Equal(t, 1, report.Root.Downloaded)
	assert.Equal(t, 4, report.Root.Satisfied)
	assert.FileExists(t, removed)

	reg = registry.NewStore(h.root, nil).Load()
	assert.Len(t, reg, 5)
	assert.FileExists(t, reg["3"].Path)
}

func TestRun_RecursesIntoRelatedItems(t *testing.T) {
	h := newHarness(t)
	seed := pinterest.GetPinURL(testBase, "100")
	h.source.results[seed] = []string{"100", "1", "2"}
	h.source.results[pinterest.GetRelatedURL(testBase, "1")] = []string{"1", "11", "12"}
	h.source.results[pinterest.GetRelatedURL(testBase, "2")] = []string{"21"}

	req := boardRequest(seed)
	req.Depth = 1
	report, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{
		seed,
		pinterest.GetRelatedURL(testBase, "1"),
		pinterest.GetRelatedURL(testBase, "2"),
	}, h.source.Queries())

	assert.Equal(t, 3, report.Pipelines())
	require.Len(t, report.Root.Children, 2)
	assert.Equal(t, "p_1", report.Root.Children[0].Project)
	assert.Equal(t, "p_2", report.Root.Children[1].Project)
	assert.DirExists(t, filepath.Join(h.root, "p_1"))
	assert.DirExists(t, filepath.Join(h.root, "p_2"))

	// item 1 is already registered, so only 11 and 12 are new in p_1
	assert.Equal(t, 1, report.Root.Children[0].Satisfied)
	assert.Equal(t, 2, report.Root.Children[0].Downloaded)

	downloaded, failed := report.Totals()
	assert.Equal(t, 6, downloaded)
	assert.Zero(t, failed)
	assert.Len(t, cacheFiles(t, h.root), 3)
}

func TestRun_RecursionBound(t *testing.T) {
	tests := []struct {
		depth     int
		pipelines int
	}{
		{0, 1},
		{1, 3},
		{2, 7},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth %d", tt.depth), func(t *testing.T) {
			h := newHarness(t)
			h.source.gen = func(query string) []string {
				id, ok := models.PinIDFromURL(query)
				if !ok {
					id = "9"
				}
				return []string{id + "1", id + "2"}
			}

			req := boardRequest(testBase + "/someone/chairs/")
			req.Depth = tt.depth
			report, err := h.scraper.Run(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.pipelines, report.Pipelines())
			assert.Len(t, h.source.Queries(), tt.pipelines)
		})
	}
}

func TestRun_ChildFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	seed := testBase + "/someone/chairs/"
	h.source.results[seed] = []string{"1", "2"}
	h.source.errs[pinterest.GetRelatedURL(testBase, "1")] = errors.New("page crashed")
	h.source.results[pinterest.GetRelatedURL(testBase, "2")] = []string{"21"}

	req := boardRequest(seed)
	req.Depth = 1
	report, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, report.Root.Children, 2)
	assert.Equal(t, 1, report.Root.Children[1].Downloaded)
	assert.True(t, h.log.HasMessage("Related expansion failed"))
}

func TestRun_TopLevelCrawlFailure(t *testing.T) {
	h := newHarness(t)
	seed := testBase + "/someone/chairs/"
	h.source.errs[seed] = errors.New("navigation failed")

	report, err := h.scraper.Run(context.Background(), boardRequest(seed))
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Zero(t, h.fetcher.Calls())
}

func TestRun_ConfigErrorsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"missing project", func(r *Request) { r.Project = "" }},
		{"missing query", func(r *Request) { r.Query = " " }},
		{"negative depth", func(r *Request) { r.Depth = -1 }},
		{"recursion with api", func(r *Request) { r.Source = SourceAPI; r.Depth = 1 }},
		{"search with browser", func(r *Request) { r.Mode = ModeSearch }},
		{"unknown caption", func(r *Request) { r.Caption = "xml" }},
		{"cookies missing", func(r *Request) { r.UseCookies = true }},
		{"api source not configured", func(r *Request) { r.Source = SourceAPI }},
		{"reserved project name", func(r *Request) { r.Project = project.CacheDirName }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := boardRequest(testBase + "/someone/chairs/")
			tt.mutate(&req)

			report, err := h.scraper.Run(context.Background(), req)
			assert.ErrorIs(t, err, errs.ErrConfig)
			assert.Nil(t, report)
			assert.Empty(t, h.source.Queries())

			entries, err := os.ReadDir(h.root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRun_StreamsDowngradeWithoutTranscoder(t *testing.T) {
	h := newHarness(t)
	h.scraper.SetStreamCheck(func() error { return errors.New("ffmpeg not found") })
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 2)

	req := boardRequest(query)
	req.IncludeStreams = true
	report, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Root.Downloaded)
	assert.True(t, h.log.HasMessage("Stream transcoder unavailable, downloading images only"))
}

func TestRun_PrunesByResolution(t *testing.T) {
	tests := []struct {
		name string
		min  models.Resolution
		kept int
	}{
		{"no minimum", models.Resolution{}, 3},
		{"exact boundary", models.Resolution{Width: 32, Height: 16}, 3},
		{"one pixel over", models.Resolution{Width: 33, Height: 16}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			query := testBase + "/someone/chairs/"
			h.source.results[query] = ids("", 3)

			req := boardRequest(query)
			req.MinResolution = tt.min
			report, err := h.scraper.Run(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, 3, report.Root.Downloaded)
			assert.Equal(t, tt.kept, report.Root.Kept)
			cached, err := project.ReadCache(report.Root.CachePath)
			require.NoError(t, err)
			assert.Len(t, cached, tt.kept)
		})
	}
}

func TestRun_CookiesReachSource(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 1)

	req := boardRequest(query)
	req.UseCookies = true
	req.Cookies = []*http.Cookie{{Name: "_pinterest_sess", Value: "abc"}}
	_, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.source.cookies, 1)
	assert.Equal(t, "_pinterest_sess", h.source.cookies[0].Name)
}

func TestRun_WritesTxtSidecars(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 2)

	req := boardRequest(query)
	req.Caption = "txt"
	_, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(h.root, "p", "1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alt 1", string(data))
}

func TestRun_FailFastOnlyAtTopLevel(t *testing.T) {
	h := newHarness(t)
	seed := testBase + "/someone/chairs/"
	h.source.results[seed] = []string{"1"}
	h.source.results[pinterest.GetRelatedURL(testBase, "1")] = []string{"11", "12"}

	rec := &recordingDownloader{next: h.scraper.downloader}
	h.scraper.downloader = rec

	req := boardRequest(seed)
	req.Depth = 1
	req.FailFast = true
	_, err := h.scraper.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, rec.opts, 2)
	assert.True(t, rec.opts[0].FailFast)
	assert.False(t, rec.opts[1].FailFast)
}

// partialFetcher fails the URLs in missing and serves a PNG otherwise
type partialFetcher struct {
	*pngFetcher
	missing map[string]bool
}

func (f *partialFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	if f.missing[rawURL] {
		return nil, "", errs.New(errs.ErrorTypeNotFound, 404, "gone: %s", rawURL)
	}
	return f.pngFetcher.Download(ctx, rawURL)
}

func TestRun_LogsJoinedDownloadFailures(t *testing.T) {
	h := newHarness(t)
	query := testBase + "/someone/chairs/"
	h.source.results[query] = ids("", 3)

	fetcher := &partialFetcher{pngFetcher: h.fetcher, missing: map[string]bool{
		"https://i.pinimg.com/originals/2.png": true,
	}}
	h.scraper.downloader = downloader.New(fetcher, ratelimit.Unlimited{}, &retry.Config{
		MaxAttempts: 1,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
	}, h.log)

	report, err := h.scraper.Run(context.Background(), boardRequest(query))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Root.Downloaded)
	assert.Equal(t, 1, report.Root.Failed)

	var found bool
	for _, m := range h.log.GetMessagesByLevel("WARN") {
		if m.Message == "Some downloads failed" {
			found = true
			require.Error(t, m.Error)
			assert.Contains(t, m.Error.Error(), "gone: https://i.pinimg.com/originals/2.png")
			assert.Equal(t, 1, m.Fields["failed"])
		}
	}
	assert.True(t, found)
}

type recordingDownloader struct {
	next Downloader
	opts []downloader.Options
}

func (r *recordingDownloader) Download(ctx context.Context, items []*models.MediaItem, dir string, opts downloader.Options) (*downloader.Report, error) {
	r.opts = append(r.opts, opts)
	return r.next.Download(ctx, items, dir, opts)
}

func TestRequestValidate_AcceptsDefaults(t *testing.T) {
	req := Request{Project: "p", Query: "chairs", Mode: ModeSearch, Source: SourceAPI}
	assert.NoError(t, req.Validate())
}

func TestRunReport_Totals(t *testing.T) {
	r := &RunReport{Root: &PipelineReport{
		Downloaded: 2,
		Failed:     1,
		Children: []*PipelineReport{
			{Downloaded: 3},
			{Downloaded: 1, Failed: 2, Children: []*PipelineReport{{Downloaded: 4}}},
		},
	}}

	downloaded, failed := r.Totals()
	assert.Equal(t, 10, downloaded)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 4, r.Pipelines())
}
