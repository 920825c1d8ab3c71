// Package media inspects downloaded files and filters them by resolution.
package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
)

// MeasureResolution reads the pixel dimensions of an image file without
// decoding the whole image.
func MeasureResolution(path string) (models.Resolution, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to read image header: %w", err)
	}
	return models.Resolution{Width: cfg.Width, Height: cfg.Height}, nil
}

// IsVideo reports whether path names a video container
func IsVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m3u8", ".mov", ".webm":
		return true
	}
	return false
}

// Prune keeps the items whose measured resolution is at least min in both
// dimensions. The boundary is inclusive and a zero axis places no
// constraint. Items without a local file cannot be measured and are dropped,
// unless min is zero on both axes, in which case everything is kept.
//
// Prune does no I/O: resolutions are expected to have been measured when
// the files were materialized.
func Prune(items []*models.MediaItem, min models.Resolution, log logger.Logger) []*models.MediaItem {
	log = logger.Or(log)
	kept := make([]*models.MediaItem, 0, len(items))

	if min.Width <= 0 && min.Height <= 0 {
		return append(kept, items...)
	}

	for _, item := range items {
		if !item.Materialized() {
			log.DebugWithFields("Dropping unmaterialized item", map[string]interface{}{
				"item_id": item.ID,
			})
			continue
		}
		if item.Resolution.Known() && item.Resolution.AtLeast(min) {
			kept = append(kept, item)
			continue
		}

		log.DebugWithFields("Pruned item below minimum resolution", map[string]interface{}{
			"item_id":    item.ID,
			"resolution": item.Resolution.String(),
			"minimum":    min.String(),
		})
	}

	return kept
}
