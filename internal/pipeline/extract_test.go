package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/huntforge/huntforge/internal/pipeline/state"
)

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

func TestExtractDirectContent(t *testing.T) {
	body := "### CTI Content\nAPT29 uses WMI."
	ex := &ExtractStage{}

	payload, next, err := ex.Execute(context.Background(), 1, state.Default(), body)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if next != state.StageValidate {
		t.Errorf("next = %q, want validate", next)
	}
	p := payload.(extractPayload)
	if p.Content != "APT29 uses WMI." {
		t.Errorf("content = %q", p.Content)
	}
	if p.Method != "direct" {
		t.Errorf("method = %q, want direct", p.Method)
	}
	if p.CharCount != len("APT29 uses WMI.") {
		t.Errorf("char_count = %d", p.CharCount)
	}
}

func TestExtractFromLink(t *testing.T) {
	body := "### CTI Content\n_No response_\n\n### Link to Original Source\nhttps://example.com/report\n"
	var fetched string
	ex := &ExtractStage{Fetcher: fetcherFunc(func(ctx context.Context, url string) (string, error) {
		fetched = url
		return "Report text from the source.\n", nil
	})}

	payload, next, err := ex.Execute(context.Background(), 1, state.Default(), body)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if fetched != "https://example.com/report" {
		t.Errorf("fetched url = %q", fetched)
	}
	p := payload.(extractPayload)
	if p.Method != "url" {
		t.Errorf("method = %q, want url", p.Method)
	}
	if p.Content != "Report text from the source." {
		t.Errorf("content = %q", p.Content)
	}
	if next != state.StageValidate {
		t.Errorf("next = %q", next)
	}
}

func TestExtractNoSourceIsPermanent(t *testing.T) {
	ex := &ExtractStage{}
	_, _, err := ex.Execute(context.Background(), 1, state.Default(), "just prose, no form sections")
	if err == nil {
		t.Fatal("Execute() should fail without content or link")
	}
}

func TestExtractEmptyFetchFails(t *testing.T) {
	body := "### Link to Original Source\nhttps://example.com/gone"
	ex := &ExtractStage{Fetcher: fetcherFunc(func(ctx context.Context, url string) (string, error) {
		return "   \n", nil
	})}
	if _, _, err := ex.Execute(context.Background(), 1, state.Default(), body); err == nil {
		t.Fatal("Execute() should fail on empty fetched content")
	}
}

func TestExtractFetchErrorIsRetryable(t *testing.T) {
	body := "### Link to Original Source\nhttps://example.com/report"
	ex := &ExtractStage{Fetcher: fetcherFunc(func(ctx context.Context, url string) (string, error) {
		return "", fmt.Errorf("connection reset")
	})}
	_, _, err := ex.Execute(context.Background(), 1, state.Default(), body)
	if err == nil {
		t.Fatal("Execute() should surface the fetch error")
	}
}

func TestSectionValue(t *testing.T) {
	body := "Intro line.\n\n### CTI Content\nline one\nline two\n\n### Link to Original Source\nhttps://x.test\n"

	tests := []struct {
		heading string
		want    string
	}{
		{"### CTI Content", "line one\nline two"},
		{"### Link to Original Source", "https://x.test"},
		{"### Missing Section", ""},
	}
	for _, tt := range tests {
		if got := sectionValue(body, tt.heading); got != tt.want {
			t.Errorf("sectionValue(%q) = %q, want %q", tt.heading, got, tt.want)
		}
	}

	if got := sectionValue("### CTI Content\n_No response_", "### CTI Content"); got != "" {
		t.Errorf("placeholder section = %q, want empty", got)
	}
}
