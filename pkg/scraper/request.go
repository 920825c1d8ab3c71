package scraper

import (
	"net/http"
	"strings"

	"pinscraper/pkg/config"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/models"
)

// Mode says how Query is interpreted
type Mode string

const (
	// ModeBoard treats Query as a board, pin or other page URL
	ModeBoard Mode = "board"
	// ModeSearch treats Query as search terms
	ModeSearch Mode = "search"
)

// SourceKind selects the discovery backend
type SourceKind string

const (
	SourceBrowser SourceKind = "browser"
	SourceAPI     SourceKind = "api"
)

// DefaultTarget is the item limit the CLI uses
const DefaultTarget = 100

// Request describes one top-level run. Recursive children inherit every
// field except Project, Query and Depth.
type Request struct {
	Project string
	Query   string
	Mode    Mode
	Source  SourceKind

	// Target caps discovered items per pipeline run; 0 means no cap
	Target int
	// Depth is the number of related-item levels below the seed
	Depth int

	MinResolution  models.Resolution
	Caption        string
	IncludeStreams bool
	Workers        int
	FailFast       bool

	// UseCookies requires Cookies to be non-empty; they are handed to the
	// discovery backend before the crawl.
	UseCookies bool
	Cookies    []*http.Cookie
}

// Validate checks the request without touching the network or disk. Every
// failure wraps errors.ErrConfig.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Project) == "" {
		return errs.NewConfigError("project name is required")
	}
	if strings.TrimSpace(r.Query) == "" {
		return errs.NewConfigError("query is required")
	}

	switch r.Mode {
	case ModeBoard, ModeSearch:
	default:
		return errs.NewConfigError("unknown mode %q", r.Mode)
	}
	switch r.Source {
	case SourceBrowser, SourceAPI:
	default:
		return errs.NewConfigError("unknown source %q", r.Source)
	}

	if r.Mode == ModeSearch && r.Source == SourceBrowser {
		return errs.NewConfigError("search is only supported with the api source")
	}
	if r.Depth < 0 {
		return errs.NewConfigError("depth must not be negative (got %d)", r.Depth)
	}
	if r.Depth > 0 && r.Source != SourceBrowser {
		return errs.NewConfigError("recursion requires the browser source")
	}
	if r.Target < 0 {
		return errs.NewConfigError("target must not be negative (got %d)", r.Target)
	}
	if r.MinResolution.Width < 0 || r.MinResolution.Height < 0 {
		return errs.NewConfigError("minimum resolution must not be negative")
	}
	if r.Caption != "" && !config.IsCaptionMode(r.Caption) {
		return errs.NewConfigError("unknown caption mode %q", r.Caption)
	}
	if r.UseCookies && len(r.Cookies) == 0 {
		return errs.NewConfigError("cookies requested but none were loaded")
	}
	return nil
}

func (r Request) withDefaults() Request {
	if r.Caption == "" {
		r.Caption = config.CaptionNone
	}
	return r
}
