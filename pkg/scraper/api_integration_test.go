package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscraper/internal/downloader"
	"pinscraper/pkg/config"
	"pinscraper/pkg/crawler"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/pinterest"
	"pinscraper/pkg/project"
	"pinscraper/pkg/ratelimit"
	"pinscraper/pkg/registry"
	"pinscraper/pkg/retry"
)

// mockPinterest serves two pages of search results and their images.
// Image "3" answers 429 once; image "5" is always missing.
type mockPinterest struct {
	server        *httptest.Server
	png           []byte
	pageRequests  int32
	imageRequests int32
	rateLimitHits int32

	mu      sync.Mutex
	limited map[string]bool
}

func newMockPinterest(t *testing.T) *mockPinterest {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 16))))

	m := &mockPinterest{png: buf.Bytes(), limited: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/resource"+pinterest.SearchResource, m.handleSearch)
	mux.HandleFunc("/originals/", m.handleImage)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockPinterest) pin(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":            id,
		"type":          "pin",
		"auto_alt_text": "chair " + id,
		"images": map[string]interface{}{
			"orig": map[string]interface{}{"url": m.server.URL + "/originals/" + id + ".png", "width": 32, "height": 16},
		},
	}
}

func (m *mockPinterest) handleSearch(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.pageRequests, 1)

	var data struct {
		Options struct {
			Bookmarks []string `json:"bookmarks"`
		} `json:"options"`
	}
	if err := json.Unmarshal([]byte(r.URL.Query().Get("data")), &data); err != nil {
		http.Error(w, "bad data", http.StatusBadRequest)
		return
	}

	ids, bookmark := []string{"1", "2", "3"}, "page2"
	if len(data.Options.Bookmarks) > 0 {
		// "3" repeats across pages
		ids, bookmark = []string{"3", "4", "5"}, pinterest.EndBookmark
	}
	results := make([]interface{}, len(ids))
	for i, id := range ids {
		results[i] = m.pin(id)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"resource_response": map[string]interface{}{
			"status":   "success",
			"data":     map[string]interface{}{"results": results},
			"bookmark": bookmark,
		},
	})
}

func (m *mockPinterest) handleImage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.imageRequests, 1)
	id := strings.TrimSuffix(filepath.Base(r.URL.Path), ".png")

	switch id {
	case "3":
		m.mu.Lock()
		first := !m.limited[id]
		m.limited[id] = true
		m.mu.Unlock()
		if first {
			atomic.AddInt32(&m.rateLimitHits, 1)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	case "5":
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(m.png)
}

// newAPIScraper wires the real client, paged crawler and downloader
// against the mock
func newAPIScraper(t *testing.T, m *mockPinterest, root string, log logger.Logger) *Scraper {
	limiter := ratelimit.NewHostLimiter(200, 20)
	client := pinterest.NewClient(config.PinterestConfig{
		BaseURL:  m.server.URL,
		PageSize: 3,
		Timeout:  5 * time.Second,
	}, limiter, log)
	retryCfg := &retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
	}

	s := New(root, m.server.URL, downloader.New(client, limiter, retryCfg, log), nil, log)
	s.SetSource(SourceAPI, crawler.NewPagedCrawler(client, crawler.PagedOptions{}, retryCfg, log))
	return s
}

func TestRun_SearchThroughResourceAPI(t *testing.T) {
	m := newMockPinterest(t)
	root := t.TempDir()
	tl := logger.NewTestLogger()
	s := newAPIScraper(t, m, root, tl)

	req := Request{
		Project: "chairs",
		Query:   "mid century chairs",
		Mode:    ModeSearch,
		Source:  SourceAPI,
		Caption: config.CaptionJSON,
		Workers: 2,
	}
	report, err := s.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Root.Discovered)
	assert.Equal(t, 4, report.Root.Downloaded)
	assert.Equal(t, 1, report.Root.Failed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&m.pageRequests))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.rateLimitHits))

	reg := registry.NewStore(root, nil).Load()
	assert.Len(t, reg, 4)
	assert.NotContains(t, reg, "5")
	for _, entry := range reg {
		assert.FileExists(t, entry.Path)
	}

	cache, err := project.ReadCache(report.Root.CachePath)
	require.NoError(t, err)
	assert.Len(t, cache, 5)

	sidecars, err := filepath.Glob(filepath.Join(root, "chairs", "*.json"))
	require.NoError(t, err)
	assert.Len(t, sidecars, 4)

	// second run only retries the missing image
	before := atomic.LoadInt32(&m.imageRequests)
	report, err = s.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Root.Satisfied)
	assert.Equal(t, 0, report.Root.Downloaded)
	assert.Equal(t, before+1, atomic.LoadInt32(&m.imageRequests))
	assert.True(t, tl.HasMessage("Project directory already exists, merging results"))
}
