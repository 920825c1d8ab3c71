package main

import (
	"context"
	"net/http"
	"sync"

	"pinscraper/pkg/browser"
	"pinscraper/pkg/config"
	"pinscraper/pkg/crawler"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/pinterest"
	"pinscraper/pkg/retry"
)

// apiSource pages the resource API through the shared client
type apiSource struct {
	client  *pinterest.Client
	crawler *crawler.PagedCrawler
}

func newAPISource(client *pinterest.Client, cfg *config.Config, retryCfg *retry.Config, log logger.Logger) *apiSource {
	opts := crawler.PagedOptions{
		StallThreshold: cfg.Browser.StallThreshold,
		PageDelay:      cfg.Pinterest.RequestDelay,
		EnsureAlt:      cfg.Browser.EnsureAlt,
	}
	return &apiSource{
		client:  client,
		crawler: crawler.NewPagedCrawler(client, opts, retryCfg, log.WithField("source", "api")),
	}
}

func (s *apiSource) Collect(ctx context.Context, session crawler.Session) ([]*models.MediaItem, error) {
	return s.crawler.Collect(ctx, session)
}

func (s *apiSource) SetCookies(cookies []*http.Cookie) {
	s.client.SetCookies(cookies)
}

// browserSource launches the browser on first use and reuses the page for
// every later crawl of the run
type browserSource struct {
	cfg     config.BrowserConfig
	baseURL string
	logger  logger.Logger

	mu      sync.Mutex
	cookies []*http.Cookie
	rod     *browser.Rod
}

func newBrowserSource(cfg *config.Config, log logger.Logger) *browserSource {
	return &browserSource{
		cfg:     cfg.Browser,
		baseURL: cfg.Pinterest.BaseURL,
		logger:  log.WithField("source", "browser"),
	}
}

func (s *browserSource) SetCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = cookies
}

func (s *browserSource) Collect(ctx context.Context, session crawler.Session) ([]*models.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rod == nil {
		r, err := browser.Launch(ctx, s.cfg, s.cookies, s.logger)
		if err != nil {
			return nil, err
		}
		s.rod = r
	}

	opts := crawler.DefaultOptions()
	opts.StallThreshold = s.cfg.StallThreshold
	opts.MaxPasses = s.cfg.MaxPasses
	opts.EnsureAlt = s.cfg.EnsureAlt
	opts.BaseURL = s.baseURL
	if s.cfg.PassDelay > 0 {
		opts.PassDelay = s.cfg.PassDelay
	}
	return crawler.NewScrollCrawler(s.rod, opts, s.logger).Collect(ctx, session)
}

// Close shuts the browser down if it was started
func (s *browserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rod == nil {
		return nil
	}
	err := s.rod.Close()
	s.rod = nil
	return err
}
