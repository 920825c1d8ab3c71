package pinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pinscraper/pkg/config"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
	"pinscraper/pkg/ratelimit"
)

// DefaultUserAgent is sent when the configuration leaves it empty
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Client talks to the Pinterest web origin and its resource endpoints
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	cookies    []*http.Cookie
	baseURL    string
	apiBaseURL string
	pageSize   int
	limiter    ratelimit.Limiter
	logger     logger.Logger

	mu       sync.Mutex
	boardIDs map[string]string
}

// NewClient creates a client from the pinterest config section. limiter
// throttles resource requests and may be nil.
func NewClient(cfg config.PinterestConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURL
	}
	apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = baseURL + "/resource"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		},
		baseURL:    baseURL,
		apiBaseURL: apiBaseURL,
		pageSize:   cfg.PageSize,
		limiter:    limiter,
		logger:     logger.Or(log),
		boardIDs:   make(map[string]string),
	}
}

// BaseURL returns the web origin pin and search URLs are built against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Headers returns a copy of the headers sent with every request
func (c *Client) Headers() map[string]string {
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out
}

// SetCookies attaches session cookies to requests sent to the web origin
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.cookies = cookies
	for _, ck := range cookies {
		if ck.Name == "csrftoken" {
			c.headers["X-CSRFToken"] = ck.Value
		}
	}
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if strings.HasSuffix(req.URL.Hostname(), "pinterest.com") || strings.HasPrefix(req.URL.String(), c.baseURL) {
		for _, ck := range c.cookies {
			req.AddCookie(ck)
		}
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// Get performs a GET request to the specified URL
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	return c.doRequest(req)
}

// GetJSON performs a throttled GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	if err := c.limiter.Wait(ctx, ratelimit.HostOf(url)); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Pinterest-AppState", "active")

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
	}
	if resp.Request != nil {
		fields["url"] = resp.Request.URL.String()
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuth, resp.StatusCode, "authentication required")
	case http.StatusNotFound, http.StatusGone:
		c.logger.WarnWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.New(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limit exceeded")
	}

	if resp.StatusCode >= 500 {
		c.logger.WarnWithFields("server error", fields)
		return errs.New(errs.ErrorTypeServerError, resp.StatusCode, "server error")
	}

	c.logger.ErrorWithFields("unexpected API error", fields)
	return errs.New(errs.ErrorTypeUnknown, resp.StatusCode, "unexpected status code: %d", resp.StatusCode)
}

// Download opens the body of a media URL. The caller must close it.
func (c *Client) Download(ctx context.Context, mediaURL string) (io.ReadCloser, string, error) {
	resp, err := c.Get(ctx, mediaURL)
	if err != nil {
		return nil, "", err
	}

	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, "", err
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// FetchPage returns one page of pins for query, which is either a board URL
// or a search term, and the cursor of the next page ("" when exhausted).
func (c *Client) FetchPage(ctx context.Context, query, cursor string) ([]*models.MediaItem, string, error) {
	if IsURL(query) {
		username, slug, ok := ParseBoardURL(query)
		if !ok {
			return nil, "", errs.NewConfigError("not a board URL: %s", query)
		}
		return c.FetchBoardPage(ctx, username, slug, cursor)
	}
	return c.FetchSearchPage(ctx, query, cursor)
}

// FetchSearchPage returns one page of pin search results
func (c *Client) FetchSearchPage(ctx context.Context, query, cursor string) ([]*models.MediaItem, string, error) {
	var resp ResourceResponse
	if err := c.GetJSON(ctx, GetSearchURL(c.apiBaseURL, query, cursor, c.pageSize), &resp); err != nil {
		return nil, "", err
	}

	var data searchData
	if err := json.Unmarshal(resp.ResourceResponse.Data, &data); err != nil {
		return nil, "", errs.New(errs.ErrorTypeParsing, 0, "unexpected search payload: %v", err)
	}
	return c.convert(data.Results), nextCursor(resp), nil
}

// FetchBoardPage returns one page of a board's pins
func (c *Client) FetchBoardPage(ctx context.Context, username, slug, cursor string) ([]*models.MediaItem, string, error) {
	boardID, err := c.ResolveBoard(ctx, username, slug)
	if err != nil {
		return nil, "", err
	}

	sourceURL := fmt.Sprintf("/%s/%s/", username, slug)
	var resp ResourceResponse
	if err := c.GetJSON(ctx, GetBoardFeedURL(c.apiBaseURL, boardID, sourceURL, cursor, c.pageSize), &resp); err != nil {
		return nil, "", err
	}

	var pins []Pin
	if err := json.Unmarshal(resp.ResourceResponse.Data, &pins); err != nil {
		return nil, "", errs.New(errs.ErrorTypeParsing, 0, "unexpected board feed payload: %v", err)
	}
	return c.convert(pins), nextCursor(resp), nil
}

// ResolveBoard looks up the numeric id of a board, caching the answer
func (c *Client) ResolveBoard(ctx context.Context, username, slug string) (string, error) {
	key := username + "/" + slug

	c.mu.Lock()
	id, ok := c.boardIDs[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp ResourceResponse
	if err := c.GetJSON(ctx, GetBoardURL(c.apiBaseURL, username, slug), &resp); err != nil {
		return "", err
	}

	var board Board
	if err := json.Unmarshal(resp.ResourceResponse.Data, &board); err != nil || board.ID == "" {
		return "", errs.New(errs.ErrorTypeNotFound, 0, "board %s not found", key)
	}

	c.logger.DebugWithFields("resolved board", map[string]interface{}{
		"board":     key,
		"board_id":  string(board.ID),
		"pin_count": board.PinCount,
	})

	c.mu.Lock()
	c.boardIDs[key] = string(board.ID)
	c.mu.Unlock()
	return string(board.ID), nil
}

func (c *Client) convert(pins []Pin) []*models.MediaItem {
	items := make([]*models.MediaItem, 0, len(pins))
	for i := range pins {
		if item := pins[i].ToMediaItem(c.baseURL); item != nil {
			items = append(items, item)
		}
	}
	return items
}

func nextCursor(resp ResourceResponse) string {
	b := resp.ResourceResponse.Bookmark
	if b == EndBookmark {
		return ""
	}
	return b
}
