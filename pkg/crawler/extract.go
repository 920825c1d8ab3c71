package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pinscraper/pkg/models"
)

// Selectors for the pin grid
const (
	PinSelector  = "div[data-test-id='pin']"
	PinIDAttr    = "data-test-pin-id"
	StreamSuffix = ".m3u8"
)

// ExtractCandidates parses a page snapshot and returns one item per pin
// container that carries a thumbnail or full-resolution image. Relative links resolve against
// base.
func ExtractCandidates(html, base string) ([]*models.MediaItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	var items []*models.MediaItem
	doc.Find(PinSelector).Each(func(_ int, s *goquery.Selection) {
		if item := extractPin(s, baseURL); item != nil {
			items = append(items, item)
		}
	})
	return items, nil
}

func extractPin(s *goquery.Selection, base *url.URL) *models.MediaItem {
	href := s.Find("a[href]").First().AttrOr("href", "")
	origin := resolve(base, href)

	id := strings.TrimSpace(s.AttrOr(PinIDAttr, ""))
	if id == "" {
		id, _ = models.PinIDFromURL(href)
	}
	if id == "" {
		return nil
	}

	var src, alt string
	s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		candidate := img.AttrOr("src", "")
		if !models.IsThumbnail(candidate) && !models.IsOriginal(candidate) {
			return true
		}
		src = models.UpgradeSrc(candidate)
		alt = strings.TrimSpace(img.AttrOr("alt", ""))
		return false
	})
	if src == "" {
		return nil
	}

	item := &models.MediaItem{ID: id, Src: src, Alt: alt, Origin: origin}

	s.Find("video").EachWithBreak(func(_ int, v *goquery.Selection) bool {
		stream := v.AttrOr("src", "")
		if stream == "" {
			stream = v.Find("source").AttrOr("src", "")
		}
		if strings.HasSuffix(strings.SplitN(stream, "?", 2)[0], StreamSuffix) {
			item.IsStream = true
			item.StreamURL = resolve(base, stream)
			return false
		}
		return true
	})
	return item
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil || u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
