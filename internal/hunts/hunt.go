// Package hunts serves the corpus of published hunt records. The markdown
// files under the category directories are the source of truth; a SQLite
// index built by `hf index rebuild` is the fast read path, with automatic
// fallback to scanning the files when the index is stale, missing, or
// errors.
package hunts

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Hunt categories, matching the repository's directory layout.
const (
	CategoryFlames  = "Flames"
	CategoryEmbers  = "Embers"
	CategoryAlchemy = "Alchemy"
)

// Categories returns the known hunt categories in display order.
func Categories() []string {
	return []string{CategoryFlames, CategoryEmbers, CategoryAlchemy}
}

// Hunt is one published hunt record.
type Hunt struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Hypothesis string   `json:"hypothesis"`
	Tactic     string   `json:"tactic,omitempty"`
	Technique  string   `json:"technique,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Submitter  string   `json:"submitter,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
}

// Repository is the read surface over the hunt corpus.
type Repository interface {
	GetAll(ctx context.Context) ([]Hunt, error)
	GetByID(ctx context.Context, id string) (*Hunt, error)
	GetByCategory(ctx context.Context, category string) ([]Hunt, error)
	GetByTactic(ctx context.Context, tactic string) ([]Hunt, error)
}

// categoryPrefix maps a category to its hunt ID prefix.
func categoryPrefix(category string) string {
	switch category {
	case CategoryFlames:
		return "H"
	case CategoryEmbers:
		return "B"
	case CategoryAlchemy:
		return "M"
	}
	return "H"
}

var idPattern = regexp.MustCompile(`^([A-Z])-(\d{4})-(\d{3})$`)

// NextID computes the next sequential hunt ID ("H-2025-014") for a
// category and year, given the existing corpus.
func NextID(existing []Hunt, category string, year int) string {
	prefix := categoryPrefix(category)
	maxSeq := 0
	for _, h := range existing {
		m := idPattern.FindStringSubmatch(h.ID)
		if m == nil || m[1] != prefix {
			continue
		}
		if y, _ := strconv.Atoi(m[2]); y != year {
			continue
		}
		if seq, _ := strconv.Atoi(m[3]); seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, year, maxSeq+1)
}
