// Package runstate persists which external content items have already
// been through the pipeline. The autonomous driver checks it before
// triggering a run; it complements, but does not replace, the pipeline's
// own stage-guard idempotency.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultPath is the run-state file location relative to the working
// directory.
const DefaultPath = ".huntforge/runstate.json"

const fileVersion = "1.0"

// Item records one processed piece of content.
type Item struct {
	Hash        string    `json:"hash"`
	Ticket      int       `json:"ticket,omitempty"`
	Title       string    `json:"title,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// State is the persisted run state.
type State struct {
	path string

	Version        string `json:"version"`
	ProcessedItems []Item `json:"processed_items"`
}

// Load reads the run-state file. A missing file yields an empty state;
// a corrupt file is an error, since silently dropping the dedup record
// would reprocess everything.
func Load(path string) (*State, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &State{path: path, Version: fileVersion}

	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing run state %s: %w", path, err)
	}
	if s.Version == "" {
		s.Version = fileVersion
	}
	return s, nil
}

// IsProcessed reports whether a content hash has been processed before.
func (s *State) IsProcessed(hash string) bool {
	if hash == "" {
		return false
	}
	for _, item := range s.ProcessedItems {
		if item.Hash == hash {
			return true
		}
	}
	return false
}

// MarkProcessed appends a processed item. Call Save to persist.
func (s *State) MarkProcessed(hash string, ticket int, title string) {
	s.ProcessedItems = append(s.ProcessedItems, Item{
		Hash:        hash,
		Ticket:      ticket,
		Title:       title,
		ProcessedAt: time.Now().UTC(),
	})
}

// Save writes the state file, creating parent directories as needed.
func (s *State) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating run state directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run state: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing run state: %w", err)
	}
	return nil
}
