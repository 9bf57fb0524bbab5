package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

const maxContentChars = 15000

// errAPIKeyRequired is returned when an API key is needed but not provided.
var errAPIKeyRequired = errors.New("API key required")

var promptTemplate = template.Must(template.New("hypothesis").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(
	`You are helping a threat hunting community turn CTI reporting into a hunt.

Write one falsifiable hunt hypothesis grounded in the report below.
{{if .TechniqueIDs}}Techniques referenced: {{join .TechniqueIDs ", "}}.
{{end}}{{if .Tactics}}Relevant tactics: {{join .Tactics ", "}}.
{{end}}
Respond with a JSON object only, no prose, with keys:
"hypothesis" (one sentence), "tactic" (single ATT&CK tactic name),
"notes" (data sources and pivots, two sentences max),
"tags" (array of lowercase hashtag-style strings, no leading #).

CTI report:
---
{{.Content}}
---`))

// AnthropicGenerator generates hunt hypotheses through the Anthropic API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates a generator. Env var ANTHROPIC_API_KEY
// takes precedence over the explicit apiKey.
func NewAnthropicGenerator(apiKey, model string) (*AnthropicGenerator, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", errAPIKeyRequired)
	}
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}, nil
}

// Generate performs one completion call and parses the response.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to render prompt: %w", err)
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, errors.New("empty response from model")
	}
	return parseResult(text)
}

func renderPrompt(req Request) (string, error) {
	content := req.Content
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	data := struct {
		Content      string
		TechniqueIDs []string
		Tactics      []string
	}{content, req.TechniqueIDs, req.Tactics}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseResult extracts the JSON object from a model response, tolerating
// surrounding prose and markdown code fences.
func parseResult(text string) (Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		// No JSON at all: treat the whole response as the hypothesis.
		return Result{Hypothesis: strings.TrimSpace(text)}, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return Result{}, fmt.Errorf("failed to parse model response: %w", err)
	}
	if strings.TrimSpace(res.Hypothesis) == "" {
		return Result{}, errors.New("model response missing hypothesis")
	}
	return res, nil
}
