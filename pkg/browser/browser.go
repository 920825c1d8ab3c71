// Package browser drives a Chromium page with go-rod for the scroll crawler.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"pinscraper/pkg/config"
	"pinscraper/pkg/crawler"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
)

// LoadMorePattern matches the labels of the grid's load-more control
const LoadMorePattern = `/see more|load more/i`

// DefaultTimeout bounds a single page operation
const DefaultTimeout = 30 * time.Second

// Rod is a crawler.Browser backed by a single go-rod page
type Rod struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
	logger   logger.Logger
}

// Launch starts or attaches to a browser and opens a blank page. When
// cfg.ControlURL is set the running browser behind it is used; otherwise a
// local Chromium is launched. cookies are installed before any navigation.
func Launch(ctx context.Context, cfg config.BrowserConfig, cookies []*http.Cookie, log logger.Logger) (*Rod, error) {
	log = logger.Or(log)
	r := &Rod{timeout: cfg.Timeout, logger: log}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless).Leakless(false)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errs.NewConfigError("failed to launch browser: %v", err)
		}
		r.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		r.Close()
		return nil, classify(fmt.Errorf("failed to connect to browser: %w", err))
	}
	r.browser = b

	if cfg.Incognito {
		incognito, err := b.Incognito()
		if err != nil {
			r.Close()
			return nil, classify(fmt.Errorf("failed to open incognito context: %w", err))
		}
		r.browser = incognito
	}

	if len(cookies) > 0 {
		if err := r.browser.SetCookies(CookieParams(cookies)); err != nil {
			r.Close()
			return nil, classify(fmt.Errorf("failed to install cookies: %w", err))
		}
		log.WithField("count", len(cookies)).Debug("Installed browser cookies")
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		r.Close()
		return nil, classify(fmt.Errorf("failed to open page: %w", err))
	}
	r.page = page

	log.WithFields(map[string]interface{}{
		"headless":  cfg.Headless,
		"incognito": cfg.Incognito,
		"attached":  cfg.ControlURL != "",
	}).Info("Browser ready")
	return r, nil
}

// Navigate loads url and waits for the load event
func (r *Rod) Navigate(ctx context.Context, url string) error {
	p, done := r.scoped(ctx)
	defer done()
	if err := p.Navigate(url); err != nil {
		return classify(err)
	}
	return classify(p.WaitLoad())
}

// CurrentURL returns the URL the page is showing
func (r *Rod) CurrentURL(ctx context.Context) (string, error) {
	p, done := r.scoped(ctx)
	defer done()
	info, err := p.Info()
	if err != nil {
		return "", classify(err)
	}
	return info.URL, nil
}

// HTML returns the serialized document
func (r *Rod) HTML(ctx context.Context) (string, error) {
	p, done := r.scoped(ctx)
	defer done()
	html, err := p.HTML()
	return html, classify(err)
}

// ScrollDown presses Page Down
func (r *Rod) ScrollDown(ctx context.Context) error {
	p, done := r.scoped(ctx)
	defer done()
	return classify(p.Keyboard.Type(input.PageDown))
}

// ClickLoadMore clicks the first button labelled like a load-more control.
// A page without one is not an error.
func (r *Rod) ClickLoadMore(ctx context.Context) (bool, error) {
	p, done := r.scoped(ctx)
	defer done()
	has, el, err := p.HasR("button", LoadMorePattern)
	if err != nil {
		return false, classify(err)
	}
	if !has {
		return false, nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// Close shuts the page and any browser this process launched
func (r *Rod) Close() error {
	var err error
	if r.page != nil {
		err = r.page.Close()
	}
	if r.launcher != nil {
		if r.browser != nil {
			if cerr := r.browser.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		r.launcher.Kill()
		r.launcher.Cleanup()
	}
	return err
}

// scoped bounds one page operation by ctx and the operation timeout. The
// returned func releases the timer and must be called when the operation
// ends.
func (r *Rod) scoped(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.page.Context(ctx), cancel
}

// CookieParams converts HTTP cookies to DevTools cookie parameters
func CookieParams(cookies []*http.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if !c.Expires.IsZero() {
			p.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params = append(params, p)
	}
	return params
}

// classify maps go-rod failures onto the errors the crawler understands:
// vanished nodes become crawler.ErrStaleElement and broken connections
// become network errors. Context errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		objErr     *rod.ObjectNotFoundError
		coveredErr *rod.CoveredError
		invisErr   *rod.InvisibleShapeError
		notFound   *rod.ElementNotFoundError
		notInter   *rod.NotInteractableError
	)
	switch {
	case errors.As(err, &objErr), errors.As(err, &coveredErr), errors.As(err, &invisErr),
		errors.As(err, &notFound), errors.As(err, &notInter),
		errors.Is(err, cdp.ErrObjNotFound), errors.Is(err, cdp.ErrCtxNotFound),
		errors.Is(err, cdp.ErrCtxDestroyed), errors.Is(err, cdp.ErrNodeNotFoundAtPos):
		return fmt.Errorf("%w: %v", crawler.ErrStaleElement, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, cdp.ErrSessionNotFound) {
		return errs.New(errs.ErrorTypeNetwork, 0, "browser connection: %v", err)
	}
	return err
}
