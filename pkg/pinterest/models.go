package pinterest

import (
	"encoding/json"
	"strings"

	"pinscraper/pkg/models"
)

// ResourceResponse is the envelope of every resource endpoint
type ResourceResponse struct {
	ResourceResponse struct {
		Status   string          `json:"status"`
		Message  string          `json:"message"`
		Data     json.RawMessage `json:"data"`
		Bookmark string          `json:"bookmark"`
	} `json:"resource_response"`
}

// searchData is the payload of BaseSearchResource
type searchData struct {
	Results []Pin `json:"results"`
}

// Board is the subset of BoardResource used to page a board
type Board struct {
	ID       models.FlexibleID `json:"id"`
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	PinCount int               `json:"pin_count"`
}

// Pin is a single pin in a feed
type Pin struct {
	ID          models.FlexibleID `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	GridTitle   string            `json:"grid_title"`
	Description string            `json:"description"`
	AutoAltText string            `json:"auto_alt_text"`
	Link        string            `json:"link"`
	Images      map[string]Image  `json:"images"`
	Videos      *Videos           `json:"videos"`
}

// Image is one rendition of a pin image
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Videos lists the encodings of a video pin
type Videos struct {
	VideoList map[string]Video `json:"video_list"`
}

// Video is one encoding of a video pin
type Video struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Alt returns the best available caption
func (p *Pin) Alt() string {
	for _, s := range []string{p.AutoAltText, p.Description, p.GridTitle, p.Title} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// StreamURL returns the HLS playlist of a video pin, if any
func (p *Pin) StreamURL() string {
	if p.Videos == nil {
		return ""
	}
	for _, key := range []string{"V_HLSV4", "V_HLSV3_WEB", "V_HLSV3_MOBILE"} {
		if v, ok := p.Videos.VideoList[key]; ok && v.URL != "" {
			return v.URL
		}
	}
	for _, v := range p.Videos.VideoList {
		if strings.HasSuffix(v.URL, ".m3u8") {
			return v.URL
		}
	}
	return ""
}

// ToMediaItem converts a pin into a MediaItem. Pins without a usable image
// yield nil.
func (p *Pin) ToMediaItem(base string) *models.MediaItem {
	if p.ID == "" || (p.Type != "" && p.Type != "pin") {
		return nil
	}

	item := &models.MediaItem{
		ID:     string(p.ID),
		Alt:    p.Alt(),
		Origin: GetPinURL(base, string(p.ID)),
	}

	if orig, ok := p.Images["orig"]; ok && orig.URL != "" {
		item.Src = orig.URL
		item.Resolution = models.Resolution{Width: orig.Width, Height: orig.Height}
	} else {
		for _, img := range p.Images {
			if models.IsThumbnail(img.URL) {
				item.Src = models.UpgradeSrc(img.URL)
				break
			}
		}
	}
	if item.Src == "" {
		return nil
	}

	if stream := p.StreamURL(); stream != "" {
		item.IsStream = true
		item.StreamURL = stream
	}
	return item
}
