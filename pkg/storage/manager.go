package storage

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultExtension is used when neither URL nor content type names a format
const DefaultExtension = ".jpg"

var knownExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".mp4": true, ".m3u8": true,
}

// Manager handles file storage for one output directory
type Manager struct {
	outputDir string
}

// NewManager creates the output directory if needed. A failure here is a
// batch-level failure: nothing can be written.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	probe, err := os.CreateTemp(outputDir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Manager{outputDir: outputDir}, nil
}

// PathFor returns the final path of the file for id with extension ext
func (m *Manager) PathFor(id, ext string) string {
	return filepath.Join(m.outputDir, sanitize(id)+ext)
}

// Save writes r to the file for id and returns its path and size
func (m *Manager) Save(r io.Reader, id, ext string) (string, int64, error) {
	filename := m.PathFor(id, ext)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	size, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return filename, size, nil
}

// TempPath returns a scratch path in the output directory for id, used by
// external tools that write the file themselves.
func (m *Manager) TempPath(id, ext string) string {
	return m.PathFor(id, ext) + ".part" + ext
}

// Commit moves a file produced at tempPath into its final place for id
func (m *Manager) Commit(tempPath, id, ext string) (string, error) {
	filename := m.PathFor(id, ext)
	if err := os.Rename(tempPath, filename); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return filename, nil
}

// ExtensionFor picks a file extension for a media URL. The URL path wins;
// the content type is the fallback.
func ExtensionFor(src, contentType string) string {
	if u, err := url.Parse(src); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if knownExtensions[ext] {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mediaType {
			case "image/jpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			case "image/gif":
				return ".gif"
			case "image/webp":
				return ".webp"
			case "video/mp4":
				return ".mp4"
			}
		}
	}

	return DefaultExtension
}

// sanitize keeps ids usable as file names
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
