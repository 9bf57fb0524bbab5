// Package index builds the SQLite projection of the hunt files. The
// markdown files stay the source of truth; this is the batch process that
// keeps the fast read path current.
package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/huntforge/huntforge/internal/hunts"
)

const schema = `
CREATE TABLE IF NOT EXISTS hunts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT UNIQUE NOT NULL,
	hunt_id TEXT NOT NULL,
	category TEXT NOT NULL,
	hypothesis TEXT NOT NULL,
	tactic TEXT,
	technique TEXT,
	tags TEXT,
	submitter TEXT,
	file_path TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	last_modified TEXT
);
CREATE INDEX IF NOT EXISTS idx_hunt_id ON hunts(hunt_id);
CREATE INDEX IF NOT EXISTS idx_category ON hunts(category);
CREATE INDEX IF NOT EXISTS idx_tactic ON hunts(tactic);
CREATE INDEX IF NOT EXISTS idx_technique ON hunts(technique);
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT
);`

// Stats summarizes one rebuild pass.
type Stats struct {
	Added   int
	Updated int
	Skipped int
	Removed int
	Errors  int
}

// Builder scans the category directories and projects hunt records into
// the index database.
type Builder struct {
	DBPath string
	Dirs   []string
	Logger *slog.Logger
}

// NewBuilder creates a builder over the given database path and category
// directories.
func NewBuilder(dbPath string, dirs []string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{DBPath: dbPath, Dirs: dirs, Logger: logger}
}

// Rebuild updates the index. Unchanged files (by content hash) are
// skipped; rows for deleted files are removed. With full set, the table
// is dropped and repopulated from scratch.
func (b *Builder) Rebuild(ctx context.Context, full bool) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(filepath.Dir(b.DBPath), 0o750); err != nil {
		return stats, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", b.DBPath)
	if err != nil {
		return stats, fmt.Errorf("open index database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if full {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS hunts`); err != nil {
			return stats, fmt.Errorf("drop hunts table: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return stats, fmt.Errorf("create schema: %w", err)
	}

	present := make(map[string]bool)
	for _, dir := range b.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			b.Logger.Warn("hunt directory not readable, skipping", "dir", dir, "error", err)
			continue
		}
		category := filepath.Base(dir)
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			path := filepath.Join(dir, entry.Name())
			present[entry.Name()] = true
			if err := b.indexFile(ctx, db, path, entry.Name(), category, &stats); err != nil {
				b.Logger.Warn("failed to index hunt file", "path", path, "error", err)
				stats.Errors++
			}
		}
	}

	removed, err := b.removeStale(ctx, db, present)
	if err != nil {
		return stats, err
	}
	stats.Removed = removed

	if _, err := db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES ('last_updated', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return stats, fmt.Errorf("update metadata: %w", err)
	}

	b.Logger.Info("index rebuilt",
		"added", stats.Added, "updated", stats.Updated,
		"skipped", stats.Skipped, "removed", stats.Removed, "errors", stats.Errors)
	return stats, nil
}

func (b *Builder) indexFile(ctx context.Context, db *sql.DB, path, filename, category string, stats *Stats) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from directory scan
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var existingHash string
	err = db.QueryRowContext(ctx, `SELECT file_hash FROM hunts WHERE filename = ?`, filename).Scan(&existingHash)
	switch {
	case err == nil && existingHash == hash:
		stats.Skipped++
		return nil
	case err != nil && err != sql.ErrNoRows:
		return fmt.Errorf("lookup: %w", err)
	}
	exists := err == nil

	h, parseErr := hunts.ParseHunt(string(data), category)
	if parseErr != nil {
		return parseErr
	}
	if h.ID == "" {
		h.ID = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	tags, err := json.Marshal(h.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	modified := info.ModTime().UTC().Format(time.RFC3339)

	if exists {
		_, err = db.ExecContext(ctx, `
			UPDATE hunts
			SET hunt_id = ?, category = ?, hypothesis = ?, tactic = ?, technique = ?,
			    tags = ?, submitter = ?, file_path = ?, file_hash = ?, last_modified = ?
			WHERE filename = ?`,
			h.ID, category, h.Hypothesis, h.Tactic, h.Technique,
			string(tags), h.Submitter, path, hash, modified, filename)
		if err != nil {
			return fmt.Errorf("update row: %w", err)
		}
		stats.Updated++
		return nil
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO hunts (filename, hunt_id, category, hypothesis, tactic, technique,
		                   tags, submitter, file_path, file_hash, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		filename, h.ID, category, h.Hypothesis, h.Tactic, h.Technique,
		string(tags), h.Submitter, path, hash, modified)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	stats.Added++
	return nil
}

// removeStale deletes rows whose files no longer exist on disk.
func (b *Builder) removeStale(ctx context.Context, db *sql.DB, present map[string]bool) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT filename FROM hunts`)
	if err != nil {
		return 0, fmt.Errorf("list indexed files: %w", err)
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan filename: %w", err)
		}
		if !present[name] {
			stale = append(stale, name)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate filenames: %w", err)
	}
	_ = rows.Close()

	for _, name := range stale {
		if _, err := db.ExecContext(ctx, `DELETE FROM hunts WHERE filename = ?`, name); err != nil {
			return 0, fmt.Errorf("remove stale row %s: %w", name, err)
		}
	}
	return len(stale), nil
}
