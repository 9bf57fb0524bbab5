package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huntforge/huntforge/internal/gateway"
	"github.com/huntforge/huntforge/internal/hunts"
	"github.com/huntforge/huntforge/internal/llm"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// CommitStage publishes the finished hunt back to the ticket: it assigns
// the next hunt ID, renders the hunt file, posts it as a comment, and
// swaps the trigger label for the ready label.
type CommitStage struct {
	Gateway    gateway.Gateway
	Repository hunts.Repository

	Category     string
	TriggerLabel string
	ReadyLabel   string

	// Now is injectable for tests; the zero value means time.Now.
	Now func() time.Time
}

var _ Executor = (*CommitStage)(nil)

type commitPayload struct {
	HuntID    string `json:"hunt_id"`
	FileName  string `json:"file_name"`
	Committed bool   `json:"committed"`
}

func (s *CommitStage) Stage() state.Stage { return state.StageCommit }

func (s *CommitStage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CommitStage) category() string {
	if s.Category != "" {
		return s.Category
	}
	return hunts.CategoryFlames
}

func (s *CommitStage) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	generated, ok := result[llm.Result](st, state.StageGenerate)
	if !ok {
		return nil, "", retry.Permanent(
			fmt.Errorf("no generated hypothesis recorded for ticket %d", ticket))
	}
	review, _ := result[reviewPayload](st, state.StageReview)
	validated, _ := result[validatePayload](st, state.StageValidate)

	var corpus []hunts.Hunt
	if s.Repository != nil {
		var err error
		corpus, err = s.Repository.GetAll(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading hunt corpus: %w", err)
		}
	}
	id := hunts.NextID(corpus, s.category(), s.now().Year())
	fileName := id + ".md"

	rendered := renderHunt(id, generated, validated.TechniqueIDs)
	comment := fmt.Sprintf("🔥 Hunt `%s` is ready. Proposed `%s/%s`:\n\n```markdown\n%s```",
		id, s.category(), fileName, rendered)
	if review.Duplicate {
		comment = fmt.Sprintf("⚠️ This submission looks like a duplicate of `%s` "+
			"(similarity %.2f). Review before merging.\n\n%s",
			review.SimilarTo, review.Similarity, comment)
	}
	if err := s.Gateway.PostComment(ctx, ticket, comment); err != nil {
		return nil, "", fmt.Errorf("posting hunt comment: %w", err)
	}

	if s.ReadyLabel != "" && !review.Duplicate {
		if err := s.Gateway.AddLabel(ctx, ticket, s.ReadyLabel); err != nil {
			return nil, "", fmt.Errorf("labeling ticket ready: %w", err)
		}
	}
	if s.TriggerLabel != "" {
		// The trigger label may already be gone on a resumed run.
		if err := s.Gateway.RemoveLabel(ctx, ticket, s.TriggerLabel); err != nil && !errors.Is(err, gateway.ErrNotFound) {
			return nil, "", fmt.Errorf("removing trigger label: %w", err)
		}
	}

	p := commitPayload{HuntID: id, FileName: fileName, Committed: true}
	return p, "", nil
}

// renderHunt produces a hunt file in the corpus layout the markdown
// parser reads back.
func renderHunt(id string, gen llm.Result, techniqueIDs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", id)
	fmt.Fprintf(&b, "## Hypothesis\n\n%s\n\n", strings.TrimSpace(gen.Hypothesis))

	technique := strings.Join(techniqueIDs, ", ")
	tags := gen.Tags
	fmt.Fprintf(&b, "| Hunt # | Idea / Hypothesis | Tactic | Notes | Tags | Submitter |\n")
	fmt.Fprintf(&b, "|--------|-------------------|--------|-------|------|-----------|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | [huntforge](https://github.com/huntforge) |\n",
		id,
		tableCell(gen.Hypothesis),
		tableCell(gen.Tactic),
		tableCell(strings.TrimSpace(gen.Notes+" "+technique)),
		tableCell(strings.Join(tags, " ")))

	if gen.Notes != "" {
		fmt.Fprintf(&b, "\n## Notes\n\n%s\n", strings.TrimSpace(gen.Notes))
	}
	return b.String()
}

// tableCell flattens text into a single markdown table cell.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "/")
	return strings.TrimSpace(s)
}
