// Package project manages the on-disk layout of a scrape: one directory per
// project under an output root, a download log inside it, and timestamped
// crawl caches under <root>/_cache.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pinscraper/pkg/models"
)

const (
	// CacheDirName holds crawl caches for every project under a root
	CacheDirName = "_cache"

	// URLLogName lists the source URL of every materialized item
	URLLogName = "downloaded_urls.log"

	cacheTimestamp = "20060102150405"
)

// Project is a named output directory
type Project struct {
	Name string
	Root string
	Dir  string
}

// New validates name and returns the project rooted at root. The directory
// is not created.
func New(root, name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid project name %q", name)
	}
	if name == CacheDirName {
		return nil, fmt.Errorf("project name %q is reserved", name)
	}
	return &Project{Name: name, Root: root, Dir: filepath.Join(root, name)}, nil
}

// Exists reports whether the project directory already has content
func (p *Project) Exists() bool {
	entries, err := os.ReadDir(p.Dir)
	return err == nil && len(entries) > 0
}

// Ensure creates the project directory
func (p *Project) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	return nil
}

// ChildName returns the project name for recursion from item id
func (p *Project) ChildName(id string) string {
	return p.Name + "_" + id
}

// Child returns the project that holds items related to id
func (p *Project) Child(id string) (*Project, error) {
	return New(p.Root, p.ChildName(id))
}

// CacheDir returns <root>/_cache
func (p *Project) CacheDir() string {
	return filepath.Join(p.Root, CacheDirName)
}

// CachePath returns the cache file path for a crawl finished at t
func (p *Project) CachePath(t time.Time) string {
	return p.cachePath(t, 0)
}

func (p *Project) cachePath(t time.Time, n int) string {
	name := p.Name + "_" + t.Format(cacheTimestamp)
	if n > 0 {
		name += "_" + strconv.Itoa(n)
	}
	return filepath.Join(p.CacheDir(), name+".json")
}

// WriteCache stores the crawled items as an indented JSON array and returns
// the file path. Existing caches are never replaced: a second crawl within
// the same second gets a _N suffix.
func (p *Project) WriteCache(items []*models.MediaItem, t time.Time) (string, error) {
	if err := os.MkdirAll(p.CacheDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if items == nil {
		items = []*models.MediaItem{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(p.CacheDir(), p.Name+"_*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create cache: %w", err)
	}
	tempFile := tmp.Name()
	defer os.Remove(tempFile)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close cache: %w", err)
	}

	// os.Link fails with ErrExist instead of replacing the target
	for n := 0; ; n++ {
		path := p.cachePath(t, n)
		err := os.Link(tempFile, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to publish cache: %w", err)
		}
	}
}

// ReadCache loads items previously written by WriteCache
func ReadCache(path string) ([]*models.MediaItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []*models.MediaItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse cache %s: %w", path, err)
	}
	return items, nil
}

// AppendURLLog appends the src of every materialized item to the project's
// download log, one per line
func (p *Project) AppendURLLog(items []*models.MediaItem) error {
	if err := p.Ensure(); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(p.Dir, URLLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open url log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, item := range items {
		if item.Materialized() {
			b.WriteString(item.Src)
			b.WriteByte('\n')
		}
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write url log: %w", err)
	}
	return nil
}
