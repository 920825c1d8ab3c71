package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// MediaItem is one discoverable media object. ID and Src are required;
// LocalPath is set only after the item has been materialized on disk.
type MediaItem struct {
	ID         string     `json:"id"`
	Src        string     `json:"src"`
	Alt        string     `json:"alt,omitempty"`
	Origin     string     `json:"origin,omitempty"`
	Resolution Resolution `json:"resolution"`
	IsStream   bool       `json:"is_stream"`
	StreamURL  string     `json:"stream_url,omitempty"`
	LocalPath  string     `json:"local_path,omitempty"`
}

// Materialized reports whether the item has been written to disk
func (m *MediaItem) Materialized() bool {
	return m.LocalPath != ""
}

// Validate checks the required fields
func (m *MediaItem) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("media item has no id")
	}
	if m.Src == "" {
		return fmt.Errorf("media item %s has no src", m.ID)
	}
	return nil
}

// UnmarshalJSON accepts both string and numeric ids
func (m *MediaItem) UnmarshalJSON(data []byte) error {
	type plain MediaItem
	aux := struct {
		ID FlexibleID `json:"id"`
		*plain
	}{plain: (*plain)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.ID = string(aux.ID)
	return nil
}

// FlexibleID decodes a JSON string or integer into its decimal string form
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or integer: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be a string or integer: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// Resolution is a width/height pair; the zero value means unknown
type Resolution struct {
	Width  int
	Height int
}

// Known reports whether the resolution has been measured
func (r Resolution) Known() bool {
	return r.Width > 0 && r.Height > 0
}

// AtLeast reports whether both dimensions meet min. A zero axis in min
// places no constraint on that axis.
func (r Resolution) AtLeast(min Resolution) bool {
	return r.Width >= min.Width && r.Height >= min.Height
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MarshalJSON encodes the resolution as a [width, height] pair
func (r Resolution) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Width, r.Height})
}

// UnmarshalJSON decodes a [width, height] pair; null leaves it unknown
func (r *Resolution) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Resolution{}
		return nil
	}
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("resolution must be a [width, height] pair: %w", err)
	}
	r.Width, r.Height = pair[0], pair[1]
	return nil
}

// ParseResolution parses "WIDTHxHEIGHT", e.g. "800x600"
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width < 0 {
		return Resolution{}, fmt.Errorf("invalid resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height < 0 {
		return Resolution{}, fmt.Errorf("invalid resolution height %q", h)
	}
	return Resolution{Width: width, Height: height}, nil
}

// thumbnailSegment matches the size tier that prefixes CDN image paths,
// e.g. /236x/, /474x/ or /60x60/.
var thumbnailSegment = regexp.MustCompile(`^/\d+x\d*/`)

// OriginalsSegment is the path prefix of the full-resolution tier
const OriginalsSegment = "/originals/"

// IsThumbnail reports whether src points at a reduced size tier
func IsThumbnail(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return thumbnailSegment.MatchString(u.Path)
}

// IsOriginal reports whether src already points at the full-resolution tier
func IsOriginal(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Hostname(), "pinimg.com") && strings.HasPrefix(u.Path, OriginalsSegment)
}

// UpgradeSrc rewrites a thumbnail URL to the full-resolution tier.
// URLs that are not thumbnails are returned unchanged.
func UpgradeSrc(src string) string {
	u, err := url.Parse(src)
	if err != nil || !thumbnailSegment.MatchString(u.Path) {
		return src
	}
	u.Path = thumbnailSegment.ReplaceAllString(u.Path, OriginalsSegment)
	u.RawPath = ""
	return u.String()
}

// pinPath matches the numeric id in /pin/<id>/ URLs
var pinPath = regexp.MustCompile(`/pin/(\d+)`)

// PinIDFromURL extracts the pin id from a pin URL
func PinIDFromURL(rawURL string) (string, bool) {
	m := pinPath.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
