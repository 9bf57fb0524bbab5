// Package llm defines the hypothesis generator consumed by the generate
// stage. The pipeline depends only on the Generator interface; the
// Anthropic-backed implementation lives alongside it.
package llm

import "context"

// Request carries the extracted and validated CTI content into generation.
type Request struct {
	Content      string
	TechniqueIDs []string
	Tactics      []string
}

// Result is a generated hunt hypothesis.
type Result struct {
	Hypothesis string   `json:"hypothesis"`
	Tactic     string   `json:"tactic"`
	Notes      string   `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Generator produces a hunt hypothesis from CTI content. Implementations
// perform a single call; retry belongs to the pipeline's backoff
// discipline.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
