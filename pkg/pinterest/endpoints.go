package pinterest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the public web origin
	BaseURL = "https://www.pinterest.com"

	// APIBaseURL is the root of the resource endpoints the web app uses
	APIBaseURL = BaseURL + "/resource"

	SearchResource    = "/BaseSearchResource/get/"
	BoardResource     = "/BoardResource/get/"
	BoardFeedResource = "/BoardFeedResource/get/"

	// DefaultPageSize is the number of pins requested per page
	DefaultPageSize = 25

	// MaxPageSize is the largest page the resource endpoints accept
	MaxPageSize = 250

	// EndBookmark marks the last page of a feed
	EndBookmark = "-end-"
)

// resourceData is the "data" query parameter of a resource request
type resourceData struct {
	Options map[string]interface{} `json:"options"`
	Context map[string]interface{} `json:"context"`
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func resourceURL(apiBase, resource, sourceURL string, options map[string]interface{}) string {
	data, _ := json.Marshal(resourceData{Options: options, Context: map[string]interface{}{}})

	params := url.Values{}
	params.Set("source_url", sourceURL)
	params.Set("data", string(data))
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(apiBase, "/"), resource, params.Encode())
}

func withBookmark(options map[string]interface{}, cursor string) map[string]interface{} {
	if cursor != "" {
		options["bookmarks"] = []string{cursor}
	}
	return options
}

// GetSearchURL builds the resource URL for one page of pin search results
func GetSearchURL(apiBase, query, cursor string, pageSize int) string {
	options := withBookmark(map[string]interface{}{
		"query":     query,
		"scope":     "pins",
		"page_size": clampPageSize(pageSize),
	}, cursor)
	return resourceURL(apiBase, SearchResource, "/search/pins/?q="+url.QueryEscape(query), options)
}

// GetBoardURL builds the resource URL that resolves a board to its id
func GetBoardURL(apiBase, username, slug string) string {
	options := map[string]interface{}{
		"username":      username,
		"slug":          slug,
		"field_set_key": "detailed",
	}
	return resourceURL(apiBase, BoardResource, fmt.Sprintf("/%s/%s/", username, slug), options)
}

// GetBoardFeedURL builds the resource URL for one page of a board's pins
func GetBoardFeedURL(apiBase, boardID, sourceURL, cursor string, pageSize int) string {
	options := withBookmark(map[string]interface{}{
		"board_id":  boardID,
		"page_size": clampPageSize(pageSize),
	}, cursor)
	return resourceURL(apiBase, BoardFeedResource, sourceURL, options)
}

// GetPinURL returns the public page of a pin
func GetPinURL(base, id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s/pin/%s/", strings.TrimRight(base, "/"), id)
}

// GetRelatedURL returns the visual-search page listing pins related to id
func GetRelatedURL(base, id string) string {
	return GetPinURL(base, id) + "visual-search/?cropSource=5&entrypoint=closeup_cta&rs=flashlight"
}

// GetSearchPageURL returns the browser search page for query
func GetSearchPageURL(base, query string) string {
	return fmt.Sprintf("%s/search/pins/?q=%s&rs=typed", strings.TrimRight(base, "/"), url.QueryEscape(query))
}

// ParseBoardURL extracts the owner and slug from a board URL such as
// https://www.pinterest.com/user/board/
func ParseBoardURL(raw string) (username, slug string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	switch parts[0] {
	case "pin", "search", "ideas", "resource":
		return "", "", false
	}
	return parts[0], parts[1], true
}

// IsURL reports whether query looks like an absolute http(s) URL
func IsURL(query string) bool {
	u, err := url.Parse(query)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
