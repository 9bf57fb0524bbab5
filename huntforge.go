// Package huntforge provides a minimal public API for driving the hunt
// pipeline programmatically.
//
// Most integrations should use the hf CLI. This package exports only the
// types and constructors needed by Go programs that want to read the hunt
// corpus or run the pipeline in-process.
package huntforge

import (
	"log/slog"

	"github.com/huntforge/huntforge/internal/hunts"
	"github.com/huntforge/huntforge/internal/pipeline/state"
)

// Core types for working with the hunt corpus.
type (
	Hunt       = hunts.Hunt
	Repository = hunts.Repository
)

// Hunt categories.
const (
	CategoryFlames  = hunts.CategoryFlames
	CategoryEmbers  = hunts.CategoryEmbers
	CategoryAlchemy = hunts.CategoryAlchemy
)

// Pipeline state types, for inspecting the state block embedded in a
// ticket body.
type (
	State  = state.State
	Stage  = state.Stage
	Status = state.Status
)

// Pipeline stages.
const (
	StageExtract  = state.StageExtract
	StageValidate = state.StageValidate
	StageGenerate = state.StageGenerate
	StageReview   = state.StageReview
	StageCommit   = state.StageCommit
)

// Stage statuses.
const (
	StatusPending    = state.StatusPending
	StatusInProgress = state.StatusInProgress
	StatusCompleted  = state.StatusCompleted
	StatusFailed     = state.StatusFailed
)

// DecodeState reads the pipeline state embedded in a ticket body. A body
// with no state block, or a malformed one, yields the initial state.
func DecodeState(body string) State {
	return state.Decode(body)
}

// OpenRepository opens the hunt corpus: the index database when usable,
// with the markdown files as fallback.
func OpenRepository(dbPath string, dirs []string, logger *slog.Logger) *hunts.FallbackRepository {
	return hunts.NewRepository(dbPath, dirs, logger)
}
