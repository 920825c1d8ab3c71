package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pinscraper/internal/downloader"
	"pinscraper/pkg/caption"
	"pinscraper/pkg/config"
	"pinscraper/pkg/crawler"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/media"
	"pinscraper/pkg/models"
	"pinscraper/pkg/pinterest"
	"pinscraper/pkg/project"
	"pinscraper/pkg/registry"
	"pinscraper/pkg/transcode"
)

// Downloader materializes items into a directory
type Downloader interface {
	Download(ctx context.Context, items []*models.MediaItem, outputDir string, opts downloader.Options) (*downloader.Report, error)
}

// CookieReceiver is implemented by sources that accept a session
type CookieReceiver interface {
	SetCookies(cookies []*http.Cookie)
}

// Scraper runs the crawl, download and enrich pipeline for a seed query
// and expands it recursively through related items.
type Scraper struct {
	root        string
	baseURL     string
	sources     map[SourceKind]crawler.Source
	downloader  Downloader
	enricher    *caption.Enricher
	streamCheck func() error
	now         func() time.Time
	logger      logger.Logger
}

// New creates a scraper that writes projects under root. baseURL is the
// site used to build related-item URLs.
func New(root, baseURL string, d Downloader, enricher *caption.Enricher, log logger.Logger) *Scraper {
	log = logger.Or(log)
	if enricher == nil {
		enricher = caption.NewEnricher(nil, log)
	}
	if baseURL == "" {
		baseURL = pinterest.BaseURL
	}
	return &Scraper{
		root:       root,
		baseURL:    baseURL,
		sources:    make(map[SourceKind]crawler.Source),
		downloader: d,
		enricher:   enricher,
		streamCheck: func() error {
			_, err := transcode.EnsureExecutable(transcode.FFmpegCommand)
			return err
		},
		now:    time.Now,
		logger: log,
	}
}

// SetSource registers the discovery backend for kind
func (s *Scraper) SetSource(kind SourceKind, src crawler.Source) {
	s.sources[kind] = src
}

// SetStreamCheck replaces the probe that decides whether stream downloads
// are possible
func (s *Scraper) SetStreamCheck(fn func() error) {
	s.streamCheck = fn
}

// Run validates req and runs the pipeline for it, then for the related
// items of everything it downloaded, down to req.Depth levels. Children
// run one after another. A failing child is logged and its siblings still
// run; the returned error is reserved for the top-level pipeline and for
// cancellation.
func (s *Scraper) Run(ctx context.Context, req Request) (*RunReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.withDefaults()

	src, ok := s.sources[req.Source]
	if !ok {
		return nil, errs.NewConfigError("no %s source configured", req.Source)
	}
	if req.Depth > 0 {
		if _, ok := s.sources[SourceBrowser]; !ok {
			return nil, errs.NewConfigError("recursion requires the browser source")
		}
	}
	proj, err := project.New(s.root, req.Project)
	if err != nil {
		return nil, errs.NewConfigError("%v", err)
	}

	report := &RunReport{RunID: uuid.NewString()}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id":  report.RunID,
		"project": req.Project,
	})

	if req.UseCookies {
		s.applyCookies(req.Cookies)
	}
	if req.IncludeStreams && s.streamCheck != nil {
		if err := s.streamCheck(); err != nil {
			log.WithError(err).Warn("Stream transcoder unavailable, downloading images only")
			req.IncludeStreams = false
		}
	}

	log.InfoWithFields("Starting run", map[string]interface{}{
		"query":  req.Query,
		"mode":   string(req.Mode),
		"source": string(req.Source),
		"target": req.Target,
		"depth":  req.Depth,
	})

	start := time.Now()
	report.Root, err = s.runPipeline(ctx, log, proj, req.Query, req, src, req.Depth, true)
	report.Duration = time.Since(start)

	downloaded, failed := report.Totals()
	logger.LogMetrics(log, "run", map[string]interface{}{
		"pipelines":   report.Pipelines(),
		"downloaded":  downloaded,
		"failed":      failed,
		"duration_ms": report.Duration.Milliseconds(),
	})
	return report, err
}

func (s *Scraper) applyCookies(cookies []*http.Cookie) {
	for _, src := range s.sources {
		if r, ok := src.(CookieReceiver); ok {
			r.SetCookies(cookies)
		}
	}
}

// runPipeline handles one project: crawl, filter against the registry,
// download, prune, enrich, record, then recurse.
func (s *Scraper) runPipeline(ctx context.Context, log logger.Logger, proj *project.Project, query string, req Request, src crawler.Source, depth int, top bool) (*PipelineReport, error) {
	log = log.WithFields(map[string]interface{}{"pipeline": proj.Name, "depth": depth})
	rep := &PipelineReport{Project: proj.Name, Query: query, Depth: depth}

	if proj.Exists() {
		log.Warn("Project directory already exists, merging results")
	}
	if err := proj.Ensure(); err != nil {
		return rep, err
	}

	items, err := src.Collect(ctx, crawler.Session{Query: query, Target: req.Target})
	rep.Discovered = len(items)
	if err != nil {
		return rep, fmt.Errorf("crawl failed: %w", err)
	}
	log.WithField("items", len(items)).Info("Crawl finished")

	store := registry.NewStore(s.root, log)
	reg := store.Load()
	toDownload, satisfied := registry.FilterPending(items, reg)
	rep.Satisfied = len(satisfied)
	measure(satisfied, log)

	var downloaded []*models.MediaItem
	if len(toDownload) > 0 {
		opts := downloader.Options{
			IncludeStreams: req.IncludeStreams,
			Workers:        req.Workers,
			FailFast:       req.FailFast && top,
		}
		result, derr := s.downloader.Download(ctx, toDownload, proj.Dir, opts)
		if result != nil {
			now := s.now()
			downloaded = result.Items(models.StatusSucceeded)
			for _, item := range downloaded {
				reg.Record(item, now)
			}
			rep.Downloaded = len(downloaded)
			rep.Failed = result.Count(models.StatusFailed)
			rep.Skipped = result.Count(models.StatusSkipped)
			rep.Aborted = result.Aborted
			if rep.Failed > 0 {
				log.WithError(result.Err()).WithField("failed", rep.Failed).Warn("Some downloads failed")
			}
		}
		// failures are logged by the store
		_ = store.Save(reg)
		if derr != nil {
			return rep, derr
		}
	} else {
		log.Debug("Every item already downloaded")
	}

	kept := media.Prune(items, req.MinResolution, log)
	rep.Kept = len(kept)

	if req.Caption != config.CaptionNone {
		if cr, err := s.enricher.Apply(ctx, kept, proj.Dir, req.Caption); err != nil {
			log.WithError(err).Warn("Caption enrichment failed")
		} else if n := cr.Count(models.StatusFailed); n > 0 {
			log.WithError(cr.Err()).WithField("failed", n).Warn("Some captions could not be written")
		}
	}

	if err := proj.AppendURLLog(kept); err != nil {
		log.WithError(err).Warn("Failed to append download log")
	}
	if path, err := proj.WriteCache(kept, s.now()); err != nil {
		log.WithError(err).Warn("Failed to write crawl cache")
	} else {
		rep.CachePath = path
	}

	log.InfoWithFields("Pipeline finished", map[string]interface{}{
		"discovered": rep.Discovered,
		"satisfied":  rep.Satisfied,
		"downloaded": rep.Downloaded,
		"failed":     rep.Failed,
		"kept":       rep.Kept,
	})

	if depth <= 0 || len(downloaded) == 0 {
		return rep, nil
	}
	return rep, s.expand(ctx, log, proj, query, req, depth, downloaded, kept, rep)
}

// expand runs a child pipeline for the related items of every item that
// was downloaded and kept, skipping the item the query itself points at.
func (s *Scraper) expand(ctx context.Context, log logger.Logger, proj *project.Project, query string, req Request, depth int, downloaded, kept []*models.MediaItem, rep *PipelineReport) error {
	seedID, _ := models.PinIDFromURL(query)
	keep := make(map[string]bool, len(kept))
	for _, item := range kept {
		keep[item.ID] = true
	}
	browser := s.sources[SourceBrowser]

	for _, item := range downloaded {
		if item.ID == seedID || !keep[item.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		child, err := proj.Child(item.ID)
		if err != nil {
			log.WithError(err).Warn("Skipping related expansion")
			continue
		}
		related := pinterest.GetRelatedURL(s.baseURL, item.ID)
		log.WithField("item_id", item.ID).Info("Expanding related items")

		childRep, err := s.runPipeline(ctx, log, child, related, req, browser, depth-1, false)
		rep.Children = append(rep.Children, childRep)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.WithError(err).WithField("item_id", item.ID).Warn("Related expansion failed")
		}
	}
	return nil
}

// measure fills in unknown resolutions of items already on disk
func measure(items []*models.MediaItem, log logger.Logger) {
	for _, item := range items {
		if item.Resolution.Known() || media.IsVideo(item.LocalPath) {
			continue
		}
		res, err := media.MeasureResolution(item.LocalPath)
		if err != nil {
			log.WithError(err).WithField("item_id", item.ID).Debug("Could not measure resolution")
			continue
		}
		item.Resolution = res
	}
}
