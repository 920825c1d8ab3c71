// Package caption writes item captions next to downloaded files or into
// the files' own metadata.
package caption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pinscraper/pkg/config"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
)

// Sidecar formats
const (
	FormatTxt  = config.CaptionTxt
	FormatJSON = config.CaptionJSON
)

// MetadataWriter sets string fields in a media file's embedded metadata
type MetadataWriter interface {
	WriteFields(ctx context.Context, path string, fields map[string]string) error
}

// Enricher writes captions for downloaded items
type Enricher struct {
	writer MetadataWriter
	logger logger.Logger
}

// NewEnricher creates an enricher. writer is only needed for WriteEmbedded.
func NewEnricher(writer MetadataWriter, log logger.Logger) *Enricher {
	return &Enricher{writer: writer, logger: logger.Or(log)}
}

// Apply runs the enrichment selected by mode over items. dir receives
// sidecar files.
func (e *Enricher) Apply(ctx context.Context, items []*models.MediaItem, dir, mode string) (*models.BatchReport, error) {
	switch mode {
	case config.CaptionNone, "":
		return &models.BatchReport{}, nil
	case config.CaptionTxt, config.CaptionJSON:
		return e.WriteSidecars(items, dir, mode)
	case config.CaptionMetadata:
		return e.WriteEmbedded(ctx, items)
	default:
		return nil, fmt.Errorf("unknown caption mode %q", mode)
	}
}

// WriteSidecars writes one caption file per materialized item into dir,
// named after the media file's stem. txt holds the alt text and is skipped
// for items without one; json holds the whole item record. Existing
// sidecars are never overwritten.
func (e *Enricher) WriteSidecars(items []*models.MediaItem, dir, format string) (*models.BatchReport, error) {
	if format != FormatTxt && format != FormatJSON {
		return nil, fmt.Errorf("invalid sidecar format %q: use %s or %s", format, FormatTxt, FormatJSON)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create caption directory: %w", err)
	}

	report := &models.BatchReport{}
	for _, item := range items {
		report.Add(e.writeSidecar(item, dir, format))
	}

	e.logger.InfoWithFields("Captions written", map[string]interface{}{
		"format":  format,
		"written": report.Count(models.StatusSucceeded),
		"skipped": report.Count(models.StatusSkipped),
		"failed":  report.Count(models.StatusFailed),
	})
	return report, nil
}

func (e *Enricher) writeSidecar(item *models.MediaItem, dir, format string) models.Outcome {
	if !item.Materialized() {
		return models.Skipped(item, "not downloaded")
	}

	var content []byte
	switch format {
	case FormatTxt:
		if strings.TrimSpace(item.Alt) == "" {
			return models.Skipped(item, "no alt text")
		}
		content = []byte(item.Alt)
	case FormatJSON:
		data, err := json.MarshalIndent(item, "", "    ")
		if err != nil {
			return models.Failed(item, err)
		}
		content = data
	}

	stem := strings.TrimSuffix(filepath.Base(item.LocalPath), filepath.Ext(item.LocalPath))
	path := filepath.Join(dir, stem+"."+format)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return models.Skipped(item, "sidecar exists")
		}
		e.logger.WarnWithFields("Failed to create caption file", map[string]interface{}{
			"item_id": item.ID,
			"path":    path,
			"error":   err.Error(),
		})
		return models.Failed(item, err)
	}

	_, werr := f.Write(content)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(path)
		return models.Failed(item, err)
	}
	return models.Succeeded(item)
}

// WriteEmbedded stores the origin URL in each file's comment field and the
// alt text in its subject and description. Streams and GIFs are skipped.
// A failure on one file is logged and does not stop the rest.
func (e *Enricher) WriteEmbedded(ctx context.Context, items []*models.MediaItem) (*models.BatchReport, error) {
	if e.writer == nil {
		return nil, errors.New("no metadata writer configured")
	}

	report := &models.BatchReport{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Add(e.writeEmbedded(ctx, item))
	}

	e.logger.InfoWithFields("Metadata captions written", map[string]interface{}{
		"written": report.Count(models.StatusSucceeded),
		"skipped": report.Count(models.StatusSkipped),
		"failed":  report.Count(models.StatusFailed),
	})
	return report, nil
}

func (e *Enricher) writeEmbedded(ctx context.Context, item *models.MediaItem) models.Outcome {
	switch {
	case item.IsStream:
		return models.Skipped(item, "video stream")
	case !item.Materialized():
		return models.Skipped(item, "not downloaded")
	case strings.EqualFold(filepath.Ext(item.LocalPath), ".gif"):
		return models.Skipped(item, "gif has no caption metadata")
	}

	fields := FieldsFor(item)
	if len(fields) == 0 {
		return models.Skipped(item, "nothing to write")
	}

	if err := e.writer.WriteFields(ctx, item.LocalPath, fields); err != nil {
		e.logger.WarnWithFields("Failed to add metadata", map[string]interface{}{
			"item_id": item.ID,
			"path":    item.LocalPath,
			"error":   err.Error(),
		})
		return models.Failed(item, err)
	}
	return models.Succeeded(item)
}

// Metadata tags written for each caption part
var (
	CommentTags = []string{"XPComment", "UserComment"}
	SubjectTags = []string{"XPSubject", "ImageDescription"}
)

// FieldsFor maps an item's origin and alt text onto metadata tags
func FieldsFor(item *models.MediaItem) map[string]string {
	fields := make(map[string]string)
	if origin := singleLine(item.Origin); origin != "" {
		for _, tag := range CommentTags {
			fields[tag] = origin
		}
	}
	if alt := singleLine(item.Alt); alt != "" {
		for _, tag := range SubjectTags {
			fields[tag] = alt
		}
	}
	return fields
}

// singleLine collapses whitespace; exiftool reads arguments line by line
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
