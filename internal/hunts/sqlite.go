package hunts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// IndexStore is the fast read path: a SQLite projection of the hunt files,
// rebuilt out-of-band by `hf index rebuild`. It is read-only here.
type IndexStore struct {
	db *sql.DB
}

var _ Repository = (*IndexStore)(nil)

// OpenIndexStore opens an existing index database. It fails when the file
// is missing or unreadable; callers treat that as permanent degradation
// for their lifetime.
func OpenIndexStore(path string) (*IndexStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index database not found: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}
	return &IndexStore{db: db}, nil
}

// Close releases the database handle.
func (s *IndexStore) Close() error {
	return s.db.Close()
}

const selectColumns = `hunt_id, category, hypothesis, tactic, technique, tags, submitter, file_path`

func scanHunt(rows interface{ Scan(...any) error }) (Hunt, error) {
	var h Hunt
	var tactic, technique, tags, submitter, filePath sql.NullString
	if err := rows.Scan(&h.ID, &h.Category, &h.Hypothesis, &tactic, &technique, &tags, &submitter, &filePath); err != nil {
		return Hunt{}, fmt.Errorf("scan: %w", err)
	}
	h.Tactic = tactic.String
	h.Technique = technique.String
	h.Submitter = submitter.String
	h.FilePath = filePath.String
	if tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &h.Tags); err != nil {
			return Hunt{}, fmt.Errorf("decode tags for %s: %w", h.ID, err)
		}
	}
	return h, nil
}

func (s *IndexStore) query(ctx context.Context, where string, args ...any) ([]Hunt, error) {
	q := `SELECT ` + selectColumns + ` FROM hunts`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY hunt_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query hunts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hunts := make([]Hunt, 0)
	for rows.Next() {
		h, err := scanHunt(rows)
		if err != nil {
			return nil, err
		}
		hunts = append(hunts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hunts: %w", err)
	}
	return hunts, nil
}

// GetAll returns every indexed hunt.
func (s *IndexStore) GetAll(ctx context.Context) ([]Hunt, error) {
	return s.query(ctx, "")
}

// GetByID returns the indexed hunt with the given identifier, or nil.
func (s *IndexStore) GetByID(ctx context.Context, id string) (*Hunt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM hunts WHERE hunt_id = ?`, id)
	h, err := scanHunt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetByCategory returns indexed hunts in a category.
func (s *IndexStore) GetByCategory(ctx context.Context, category string) ([]Hunt, error) {
	return s.query(ctx, `category = ?`, category)
}

// GetByTactic returns indexed hunts whose tactic contains the query,
// case-insensitively.
func (s *IndexStore) GetByTactic(ctx context.Context, tactic string) ([]Hunt, error) {
	return s.query(ctx, `tactic LIKE ?`, "%"+tactic+"%")
}
