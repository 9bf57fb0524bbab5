package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/huntforge/huntforge/internal/attack"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// defaultMinContentChars is the floor below which extracted content is
// too thin to hunt on.
const defaultMinContentChars = 10

// ValidateStage checks extracted content for substance and maps any
// ATT&CK technique references to their tactics.
type ValidateStage struct {
	Resolver        attack.Resolver
	MinContentChars int
}

var _ Executor = (*ValidateStage)(nil)

type validatePayload struct {
	ContentChars int      `json:"content_chars"`
	TechniqueIDs []string `json:"technique_ids,omitempty"`
	Tactics      []string `json:"tactics,omitempty"`
	Valid        bool     `json:"valid"`
}

func (s *ValidateStage) Stage() state.Stage { return state.StageValidate }

func (s *ValidateStage) minChars() int {
	if s.MinContentChars > 0 {
		return s.MinContentChars
	}
	return defaultMinContentChars
}

func (s *ValidateStage) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	extract, ok := result[extractPayload](st, state.StageExtract)
	if !ok {
		return nil, "", retry.Permanent(
			fmt.Errorf("no extracted content recorded for ticket %d", ticket))
	}
	if len(extract.Content) < s.minChars() {
		return nil, "", retry.Permanent(
			fmt.Errorf("content too short to hunt on: %d chars, need %d",
				len(extract.Content), s.minChars()))
	}

	ids := attack.FindTechniqueIDs(extract.Content)

	tactics := make(map[string]bool)
	if s.Resolver != nil {
		for _, id := range ids {
			if t, ok := s.Resolver.Resolve(id); ok && t.Tactic != "" {
				tactics[t.Tactic] = true
			}
		}
	}
	tacticList := make([]string, 0, len(tactics))
	for t := range tactics {
		tacticList = append(tacticList, t)
	}
	sort.Strings(tacticList)

	p := validatePayload{
		ContentChars: len(extract.Content),
		TechniqueIDs: ids,
		Tactics:      tacticList,
		Valid:        true,
	}
	return p, state.StageGenerate, nil
}
