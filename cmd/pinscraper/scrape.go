package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"pinscraper/internal/downloader"
	"pinscraper/pkg/caption"
	"pinscraper/pkg/config"
	"pinscraper/pkg/cookies"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/pinterest"
	"pinscraper/pkg/ratelimit"
	"pinscraper/pkg/retry"
	"pinscraper/pkg/scraper"
	"pinscraper/pkg/transcode"
	"pinscraper/pkg/ui"
)

// pipelineFlags are shared by scrape and search
var (
	projectName string
	limit       int
	depth       int
	sourceName  string
	minRes      string
	captionMode string
	outputRoot  string
	video       bool
	workers     int
	failFast    bool
	useCookies  bool
	cookieFile  string
	headless    bool
	incognito   bool
	ensureAlt   bool
	delay       time.Duration
)

// scrapeCmd crawls a board or pin page
var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Download the pins of a board or pin page",
	Long: `Crawl a board or pin page, download every image not already on disk and
write the project's registry, download log and crawl cache.

With --depth the related pins of every newly downloaded pin are crawled as
child projects named <project>_<pin id>, down to the given number of levels.
Recursion needs the browser source.`,
	Example: `  # Mirror a board
  pinscraper scrape https://www.pinterest.com/someone/recipes/

  # Two levels of related pins, large images only
  pinscraper scrape https://www.pinterest.com/pin/123456/ --depth 2 --min-res 800x600

  # Page the API instead of driving a browser
  pinscraper scrape https://www.pinterest.com/someone/recipes/ --source api`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline(cmd, args[0], scraper.ModeBoard, scraper.SourceBrowser)
	},
}

// searchCmd crawls search results through the API
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Download the pins found by a search",
	Long: `Run a Pinterest search through the resource API and download the results.

Search always uses the api source and cannot recurse.`,
	Example: `  pinscraper search "mid century chairs" --limit 250 --caption txt`,
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline(cmd, strings.Join(args, " "), scraper.ModeSearch, scraper.SourceAPI)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(searchCmd)
	addPipelineFlags(scrapeCmd)
	addPipelineFlags(searchCmd)
}

func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&projectName, "project", "", "project directory name (default derived from the query)")
	f.IntVarP(&limit, "limit", "n", scraper.DefaultTarget, "maximum number of pins to discover per crawl (0 for no limit)")
	f.IntVar(&depth, "depth", 0, "levels of related pins to follow")
	f.StringVar(&sourceName, "source", "", "discovery backend: browser or api")
	f.StringVar(&minRes, "min-res", "", "drop images smaller than WxH, e.g. 800x600")
	f.StringVar(&captionMode, "caption", "", "caption mode: none, txt, json or metadata")
	f.StringVarP(&outputRoot, "output", "o", "", "output root directory")
	f.BoolVar(&video, "video", false, "download video streams with ffmpeg")
	f.IntVarP(&workers, "workers", "w", 0, "number of concurrent downloads")
	f.BoolVar(&failFast, "fail-fast", false, "abort the batch on the first failed download")
	f.BoolVar(&useCookies, "cookies", false, "send the stored session cookies")
	f.StringVar(&cookieFile, "cookie-file", "", "cookie export to use instead of the vault")
	f.BoolVar(&headless, "headless", true, "run the browser without a window")
	f.BoolVar(&incognito, "incognito", false, "use an incognito browser context")
	f.BoolVar(&ensureAlt, "ensure-alt", false, "skip pins without alt text")
	f.DurationVar(&delay, "delay", 0, "pause between API pages, e.g. 500ms")
}

// changedFlags collects the flags the user set, keyed the way
// config.MergeCommandLineFlags expects
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags()
	f := cmd.Flags()
	set := func(name string, value interface{}) {
		if f.Changed(name) {
			flags[name] = value
		}
	}
	set("output", outputRoot)
	set("caption", captionMode)
	set("workers", workers)
	set("fail-fast", failFast)
	set("video", video)
	set("cookies", useCookies)
	set("cookie-file", cookieFile)
	set("headless", headless)
	set("incognito", incognito)
	set("ensure-alt", ensureAlt)
	set("delay", delay)
	return flags
}

func runPipeline(cmd *cobra.Command, query string, mode scraper.Mode, defaultSource scraper.SourceKind) {
	flags := changedFlags(cmd)
	if minRes != "" {
		res, err := models.ParseResolution(minRes)
		if err != nil {
			ui.PrintError("Invalid --min-res", err.Error())
			os.Exit(1)
		}
		flags["min-width"] = res.Width
		flags["min-height"] = res.Height
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()

	source := defaultSource
	if sourceName != "" {
		source = scraper.SourceKind(sourceName)
	}
	name := projectName
	if name == "" {
		name = deriveProjectName(query)
	}

	req := scraper.Request{
		Project:        name,
		Query:          query,
		Mode:           mode,
		Source:         source,
		Target:         limit,
		Depth:          depth,
		MinResolution:  models.Resolution{Width: cfg.Output.MinWidth, Height: cfg.Output.MinHeight},
		Caption:        cfg.Output.Caption,
		IncludeStreams: cfg.Download.IncludeStreams,
		Workers:        cfg.Download.Workers,
		FailFast:       cfg.Download.FailFast,
		UseCookies:     cfg.Session.UseCookies,
	}
	if req.UseCookies {
		req.Cookies, err = loadSessionCookies(cfg)
		if err != nil {
			ui.PrintError("Failed to load cookies", err.Error())
			cookies.ShowExportGuide(os.Stdout)
			os.Exit(1)
		}
	}
	if err := req.Validate(); err != nil {
		ui.PrintError("Invalid request", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintInfo("Project", req.Project)
	ui.PrintInfo("Query", req.Query)
	ui.PrintInfo("Source", string(req.Source))
	if req.Depth > 0 {
		ui.PrintInfo("Depth", fmt.Sprintf("%d", req.Depth))
	}

	report, err := execute(ctx, cfg, req, log)
	if err != nil {
		log.WithError(err).Error("Scrape failed")
		ui.PrintError("SCRAPE FAILED", err.Error())
		os.Exit(1)
	}
	printSummary(report)
}

// execute wires the pipeline from cfg and runs req
func execute(ctx context.Context, cfg *config.Config, req scraper.Request, log logger.Logger) (*scraper.RunReport, error) {
	limiter := ratelimit.NewHostLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	client := pinterest.NewClient(cfg.Pinterest, limiter, log)
	retryCfg := retry.FromSettings(cfg.Retry, log)

	dl := downloader.New(client, limiter, retryCfg, log)
	if req.IncludeStreams {
		if ff, err := transcode.New(cfg.Download.FFmpegPath, log); err == nil {
			dl.SetRemuxer(ff, client.Headers())
		}
	}
	progress := ui.NewProgressDisplay("Downloading", 0, verbose)
	dl.SetProgress(progress.Update)
	defer progress.Complete()

	var writer caption.MetadataWriter
	if req.Caption == config.CaptionMetadata {
		et, err := caption.NewExifToolWriter("")
		if err != nil {
			return nil, errs.NewConfigError("metadata captions need exiftool: %v", err)
		}
		defer et.Close()
		writer = et
	}

	s := scraper.New(cfg.Output.Root, cfg.Pinterest.BaseURL, dl, caption.NewEnricher(writer, log), log)
	s.SetStreamCheck(func() error {
		_, err := transcode.EnsureExecutable(cfg.Download.FFmpegPath)
		return err
	})
	s.SetSource(scraper.SourceAPI, newAPISource(client, cfg, retryCfg, log))

	browserSrc := newBrowserSource(cfg, log)
	defer func() {
		if err := browserSrc.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}()
	s.SetSource(scraper.SourceBrowser, browserSrc)

	return s.Run(ctx, req)
}

// loadSessionCookies resolves the cookie export or the vault profile
func loadSessionCookies(cfg *config.Config) ([]*http.Cookie, error) {
	mgr, err := cookies.NewManager()
	if err != nil {
		return nil, err
	}
	list, from, err := mgr.Resolve(cfg.Session.CookieFile, cfg.Session.Profile)
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"source":  from,
		"cookies": len(list),
	}).Info("Session cookies loaded")
	return cookies.ToHTTP(list, time.Now()), nil
}

func printSummary(r *scraper.RunReport) {
	downloaded, failed := r.Totals()
	ui.PrintHighlight("[SCRAPE COMPLETE]")
	ui.PrintInfo("Run", r.RunID)
	ui.PrintInfo("Discovered", fmt.Sprintf("%d", r.Root.Discovered))
	ui.PrintInfo("Already on disk", fmt.Sprintf("%d", r.Root.Satisfied))
	ui.PrintInfo("Downloaded", fmt.Sprintf("%d", downloaded))
	if failed > 0 {
		ui.PrintWarning(fmt.Sprintf("%d downloads failed", failed))
	}
	if n := r.Pipelines(); n > 1 {
		ui.PrintInfo("Projects", fmt.Sprintf("%d", n))
	}
	if r.Root.CachePath != "" {
		ui.PrintInfo("Cache", r.Root.CachePath)
	}
	ui.PrintSuccess(fmt.Sprintf("Finished in %s", r.Duration.Round(time.Second)))
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// deriveProjectName turns a board URL into "user_board", a pin URL into
// "pin_<id>" and search terms into an underscore-joined name
func deriveProjectName(query string) string {
	name := query
	if u, err := url.Parse(query); err == nil && u.Host != "" {
		name = strings.Trim(u.Path, "/")
	}
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "pinterest"
	}
	return name
}
