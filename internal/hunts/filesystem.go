package hunts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FilesystemStore is the canonical-source store: it scans the category
// directories and parses each hunt markdown file. The full scan runs once
// and is cached for the store's lifetime; Invalidate drops the cache.
type FilesystemStore struct {
	dirs   []string
	logger *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache []Hunt
}

var _ Repository = (*FilesystemStore)(nil)

// NewFilesystemStore creates a canonical store over the given category
// directories. Each directory's base name is the category of the hunts
// inside it.
func NewFilesystemStore(dirs []string, logger *slog.Logger) *FilesystemStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemStore{dirs: dirs, logger: logger}
}

// GetAll returns every parseable hunt across all category directories,
// scanning on first use. Identifiers are duplicate-free: the first file
// claiming an ID wins.
func (s *FilesystemStore) GetAll(ctx context.Context) ([]Hunt, error) {
	s.mu.Lock()
	cached := s.cache
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do("scan", func() (interface{}, error) {
		hunts := s.scan(ctx)
		s.mu.Lock()
		s.cache = hunts
		s.mu.Unlock()
		return hunts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Hunt), nil
}

// scan walks each directory once. Missing directories and unparseable
// files are logged and skipped, never fatal to the listing.
func (s *FilesystemStore) scan(ctx context.Context) []Hunt {
	hunts := make([]Hunt, 0)
	seen := make(map[string]bool)
	for _, dir := range s.dirs {
		if ctx.Err() != nil {
			break
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Warn("hunt directory not readable, skipping", "dir", dir, "error", err)
			continue
		}
		category := filepath.Base(dir)
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			h, err := ParseFile(path, category)
			if err != nil {
				s.logger.Warn("skipping unparseable hunt file", "path", path, "error", err)
				continue
			}
			if seen[h.ID] {
				s.logger.Warn("duplicate hunt id, keeping first", "id", h.ID, "path", path)
				continue
			}
			seen[h.ID] = true
			hunts = append(hunts, *h)
		}
	}
	s.logger.Debug("scanned hunt directories", "dirs", len(s.dirs), "hunts", len(hunts))
	return hunts
}

// GetByID returns the hunt with the given identifier, or nil if absent.
func (s *FilesystemStore) GetByID(ctx context.Context, id string) (*Hunt, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			h := all[i]
			return &h, nil
		}
	}
	return nil, nil
}

// GetByCategory returns hunts whose category matches exactly.
func (s *FilesystemStore) GetByCategory(ctx context.Context, category string) ([]Hunt, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Hunt
	for _, h := range all {
		if h.Category == category {
			out = append(out, h)
		}
	}
	return out, nil
}

// GetByTactic returns hunts whose tactic contains the query,
// case-insensitively, matching the index store's semantics.
func (s *FilesystemStore) GetByTactic(ctx context.Context, tactic string) ([]Hunt, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(tactic)
	var out []Hunt
	for _, h := range all {
		if strings.Contains(strings.ToLower(h.Tactic), q) {
			out = append(out, h)
		}
	}
	return out, nil
}

// Invalidate drops the cached scan so the next query re-reads the files.
func (s *FilesystemStore) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}
