// Package scraper orchestrates a scrape from seed query to enriched files.
//
// A run is a tree of pipelines. Each pipeline works on one project
// directory:
//
//   - crawl the query with the configured source
//   - drop items the registry already has on disk
//   - download the rest with the concurrent downloader
//   - record successes in the registry
//   - prune by minimum resolution
//   - write captions, the download log and a timestamped crawl cache
//
// When depth is above zero, every item the pipeline downloaded becomes the
// seed of a child pipeline over its related items, in a project named
// <parent>_<id>. Children always use the browser source and run one at a
// time.
//
// Usage:
//
//	s := scraper.New("downloads", pinterest.BaseURL, dl, enricher, log)
//	s.SetSource(scraper.SourceBrowser, scrollCrawler)
//
//	report, err := s.Run(ctx, scraper.Request{
//	    Project: "chairs",
//	    Query:   "https://www.pinterest.com/someone/chairs/",
//	    Mode:    scraper.ModeBoard,
//	    Source:  scraper.SourceBrowser,
//	    Target:  50,
//	    Depth:   1,
//	})
//
// Requests are validated before any network activity; invalid ones fail
// with an error wrapping errors.ErrConfig.
package scraper
