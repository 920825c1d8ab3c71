// Package pinterest provides a client for the Pinterest web origin.
//
// The client covers two jobs: streaming media files for the downloader,
// and paging board feeds or search results through the JSON resource
// endpoints the web app itself calls. Responses are mapped onto
// pinscraper's typed errors so callers can decide what to retry:
//
//	client := pinterest.NewClient(cfg.Pinterest, limiter, log)
//
//	items, next, err := client.FetchPage(ctx, "https://www.pinterest.com/user/board/", "")
//	if err != nil {
//	    switch errors.TypeOf(err) {
//	    case errors.ErrorTypeAuth:
//	        // Board is private; import session cookies
//	    case errors.ErrorTypeRateLimit:
//	        // Back off
//	    }
//	}
//
// URL helpers in endpoints.go build pin, related-pin and search page URLs
// for the browser crawler as well.
package pinterest
