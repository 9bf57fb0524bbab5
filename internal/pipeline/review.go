package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/huntforge/huntforge/internal/hunts"
	"github.com/huntforge/huntforge/internal/llm"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// defaultDuplicateThreshold is the token-overlap score above which a
// generated hypothesis is flagged as a duplicate of an existing hunt.
const defaultDuplicateThreshold = 0.6

// ReviewStage checks a generated hypothesis against the existing hunt
// corpus and flags likely duplicates.
type ReviewStage struct {
	Repository hunts.Repository
	Threshold  float64
}

var _ Executor = (*ReviewStage)(nil)

type reviewPayload struct {
	Approved   bool    `json:"approved"`
	Duplicate  bool    `json:"duplicate"`
	SimilarTo  string  `json:"similar_to,omitempty"`
	Similarity float64 `json:"similarity"`
}

func (s *ReviewStage) Stage() state.Stage { return state.StageReview }

func (s *ReviewStage) threshold() float64 {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return defaultDuplicateThreshold
}

func (s *ReviewStage) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	generated, ok := result[llm.Result](st, state.StageGenerate)
	if !ok {
		return nil, "", retry.Permanent(
			fmt.Errorf("no generated hypothesis recorded for ticket %d", ticket))
	}

	var corpus []hunts.Hunt
	if s.Repository != nil {
		var err error
		corpus, err = s.Repository.GetAll(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading hunt corpus: %w", err)
		}
	}

	best, bestID := 0.0, ""
	candidate := tokenize(generated.Hypothesis)
	for _, h := range corpus {
		score := jaccard(candidate, tokenize(h.Hypothesis))
		if score > best {
			best, bestID = score, h.ID
		}
	}

	dup := best >= s.threshold()
	p := reviewPayload{
		Approved:   !dup,
		Duplicate:  dup,
		SimilarTo:  bestID,
		Similarity: best,
	}
	return p, state.StageCommit, nil
}

// tokenize lowercases and splits text into a word set.
func tokenize(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// jaccard is intersection over union of two word sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
