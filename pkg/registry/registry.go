package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"pinscraper/pkg/logger"
	"pinscraper/pkg/models"
)

// FileName is the registry file name inside a download root
const FileName = "downloaded.json"

// Entry records where an item was materialized and when
type Entry struct {
	Path         string `json:"path"`
	DownloadedAt string `json:"downloaded_at"`
}

// Registry maps item id to its entry
type Registry map[string]Entry

// Record stores item's local path. DownloadedAt never moves backwards for
// an id that is already present.
func (r Registry) Record(item *models.MediaItem, now time.Time) {
	stamp := now.UTC()
	if prev, ok := r[item.ID]; ok {
		if prevTime, err := time.Parse(time.RFC3339Nano, prev.DownloadedAt); err == nil && prevTime.After(stamp) {
			stamp = prevTime
		}
	}
	r[item.ID] = Entry{
		Path:         item.LocalPath,
		DownloadedAt: stamp.Format(time.RFC3339Nano),
	}
}

// FilterPending splits items into those that still need downloading and
// those already satisfied by an entry whose file exists. Satisfied items
// get their LocalPath from the entry. Entries whose file is missing are
// removed from r.
func FilterPending(items []*models.MediaItem, r Registry) (toDownload, satisfied []*models.MediaItem) {
	for _, item := range items {
		entry, ok := r[item.ID]
		if !ok {
			toDownload = append(toDownload, item)
			continue
		}

		if entry.Path != "" && fileExists(entry.Path) {
			item.LocalPath = entry.Path
			satisfied = append(satisfied, item)
			continue
		}

		delete(r, item.ID)
		toDownload = append(toDownload, item)
	}
	return toDownload, satisfied
}

// Store loads and saves the registry file of one download root
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a store for the registry inside rootDir
func NewStore(rootDir string, log logger.Logger) *Store {
	return &Store{
		path:   filepath.Join(rootDir, FileName),
		logger: logger.Or(log).WithField("registry", filepath.Join(rootDir, FileName)),
	}
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. It never fails: problems are logged and an
// empty registry is returned.
func (s *Store) Load() Registry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to read registry, starting empty")
		}
		return Registry{}
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil || reg == nil {
		s.logger.WithError(err).Warn("Registry is corrupt, starting empty")
		if err := s.backupCorrupt(); err != nil {
			s.logger.WithError(err).Warn("Failed to keep a copy of the corrupt registry")
		}
		return Registry{}
	}

	s.logger.DebugWithFields("Registry loaded", map[string]interface{}{
		"entries": len(reg),
	})
	return reg
}

// Save writes the registry atomically. Callers treat a failure as
// non-fatal; it is logged here as well as returned.
func (s *Store) Save(reg Registry) error {
	if err := s.write(reg); err != nil {
		s.logger.WithError(err).Error("Failed to save registry")
		return err
	}

	s.logger.DebugWithFields("Registry saved", map[string]interface{}{
		"entries": len(reg),
	})
	return nil
}

func (s *Store) write(reg Registry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary registry file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reg); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync registry file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}

// backupCorrupt copies the unreadable registry next to itself
func (s *Store) backupCorrupt() error {
	src, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(s.path + ".corrupt")
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
