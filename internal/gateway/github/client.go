// Package github implements the ticket gateway against the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/huntforge/huntforge/internal/gateway"
)

const (
	// DefaultAPIEndpoint is the public GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"
	// DefaultTimeout bounds a single HTTP request. Retry across requests
	// is the caller's concern (the pipeline retrier), not the client's.
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client talks to a single repository's issues. It implements
// gateway.Gateway; one issue is one ticket.
type Client struct {
	Token      string
	Owner      string
	Repo       string
	BaseURL    string
	HTTPClient *http.Client
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a gateway client for owner/repo.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    baseURL,
		HTTPClient: c.HTTPClient,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// issuePath returns the API path for an issue number.
func (c *Client) issuePath(number int) string {
	return "/repos/" + c.Owner + "/" + c.Repo + "/issues/" + strconv.Itoa(number)
}

// doRequest performs a single authenticated request. No internal retry:
// transient failures surface to the caller so the pipeline's backoff
// discipline governs all retries uniformly.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", urlStr, gateway.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return nil, fmt.Errorf("rate limited (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("API error: %s (status %d)", string(respBody), resp.StatusCode)
	}
	return respBody, nil
}

// CreateIssue opens a new issue and returns its number. Not part of the
// gateway surface: only the submission flow creates tickets.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	payload := map[string]interface{}{"title": title, "body": body}
	if len(labels) > 0 {
		payload["labels"] = labels
	}
	respBody, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/repos/"+c.Owner+"/"+c.Repo+"/issues", payload)
	if err != nil {
		return 0, fmt.Errorf("failed to create issue: %w", err)
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return 0, fmt.Errorf("failed to parse issue response: %w", err)
	}
	return issue.Number, nil
}

// FetchBody returns the issue's body text.
func (c *Client) FetchBody(ctx context.Context, ticket int) (string, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, c.BaseURL+c.issuePath(ticket), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch issue #%d: %w", ticket, err)
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return "", fmt.Errorf("failed to parse issue response: %w", err)
	}
	return issue.Body, nil
}

// ReplaceBody overwrites the issue's body text. GitHub uses PATCH for
// issue updates.
func (c *Client) ReplaceBody(ctx context.Context, ticket int, body string) error {
	_, err := c.doRequest(ctx, http.MethodPatch, c.BaseURL+c.issuePath(ticket), map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("failed to update issue #%d: %w", ticket, err)
	}
	return nil
}

// PostComment adds a comment to the issue.
func (c *Client) PostComment(ctx context.Context, ticket int, comment string) error {
	_, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+c.issuePath(ticket)+"/comments", map[string]string{"body": comment})
	if err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", ticket, err)
	}
	return nil
}

// AddLabel attaches a label to the issue.
func (c *Client) AddLabel(ctx context.Context, ticket int, label string) error {
	_, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+c.issuePath(ticket)+"/labels", map[string][]string{"labels": {label}})
	if err != nil {
		return fmt.Errorf("failed to add label %q to issue #%d: %w", label, ticket, err)
	}
	return nil
}

// RemoveLabel detaches a label from the issue. A 404 here usually means
// the label was already absent; it is still surfaced so the caller can
// decide.
func (c *Client) RemoveLabel(ctx context.Context, ticket int, label string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.BaseURL+c.issuePath(ticket)+"/labels/"+url.PathEscape(label), nil)
	if err != nil {
		return fmt.Errorf("failed to remove label %q from issue #%d: %w", label, ticket, err)
	}
	return nil
}
