package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// Submission form section headings recognized by the extract stage.
const (
	headingContent = "### CTI Content"
	headingLink    = "### Link to Original Source"
)

// ContentFetcher retrieves CTI content from a URL when the submission
// only links to its source.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ExtractStage pulls the raw CTI content out of a submission ticket,
// either pasted directly or fetched from the linked source.
type ExtractStage struct {
	Fetcher ContentFetcher
}

var _ Executor = (*ExtractStage)(nil)

type extractPayload struct {
	Content    string `json:"content"`
	CharCount  int    `json:"char_count"`
	Method     string `json:"method"`
	SourceType string `json:"source_type,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
}

func (s *ExtractStage) Stage() state.Stage { return state.StageExtract }

func (s *ExtractStage) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	if content := sectionValue(body, headingContent); content != "" {
		p := extractPayload{
			Content:    content,
			CharCount:  len(content),
			Method:     "direct",
			SourceType: "pasted",
		}
		return p, state.StageValidate, nil
	}

	url := sectionValue(body, headingLink)
	if url == "" {
		return nil, "", retry.Permanent(
			fmt.Errorf("submission has neither pasted content nor a source link"))
	}
	if s.Fetcher == nil {
		return nil, "", retry.Permanent(
			fmt.Errorf("submission only links %s but no content fetcher is configured", url))
	}

	content, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", url, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, "", retry.Permanent(fmt.Errorf("source %s returned no content", url))
	}

	p := extractPayload{
		Content:    content,
		CharCount:  len(content),
		Method:     "url",
		SourceType: "link",
		SourceURL:  url,
	}
	return p, state.StageValidate, nil
}

// sectionValue returns the trimmed text under a "### Heading" section,
// up to the next heading. The issue-form placeholder "_No response_"
// counts as empty.
func sectionValue(body, heading string) string {
	var (
		out     []string
		in      bool
		trimmed string
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed = strings.TrimSpace(line)
		if in {
			if strings.HasPrefix(trimmed, "#") {
				break
			}
			out = append(out, line)
			continue
		}
		if strings.EqualFold(trimmed, heading) {
			in = true
		}
	}
	value := strings.TrimSpace(strings.Join(out, "\n"))
	if strings.EqualFold(value, "_No response_") {
		return ""
	}
	return value
}
