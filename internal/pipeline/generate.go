package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/huntforge/huntforge/internal/llm"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// GenerateStage turns validated CTI content into a hunt hypothesis.
type GenerateStage struct {
	Generator llm.Generator
}

var _ Executor = (*GenerateStage)(nil)

func (s *GenerateStage) Stage() state.Stage { return state.StageGenerate }

func (s *GenerateStage) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	extract, ok := result[extractPayload](st, state.StageExtract)
	if !ok {
		return nil, "", retry.Permanent(
			fmt.Errorf("no extracted content recorded for ticket %d", ticket))
	}
	validated, ok := result[validatePayload](st, state.StageValidate)
	if !ok {
		return nil, "", retry.Permanent(
			fmt.Errorf("ticket %d has not passed validation", ticket))
	}
	if s.Generator == nil {
		return nil, "", retry.Permanent(fmt.Errorf("no generator configured"))
	}

	res, err := s.Generator.Generate(ctx, llm.Request{
		Content:      extract.Content,
		TechniqueIDs: validated.TechniqueIDs,
		Tactics:      validated.Tactics,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generating hypothesis: %w", err)
	}
	if strings.TrimSpace(res.Hypothesis) == "" {
		return nil, "", fmt.Errorf("generator returned an empty hypothesis")
	}

	return res, state.StageReview, nil
}
