// Package gateway defines the capability the pipeline needs from the
// ticket host. Implementations live in subpackages; the core depends only
// on this interface so executors can be driven against fakes in tests.
package gateway

import (
	"context"
	"errors"
)

// ErrNotFound reports that the ticket does not exist. Unlike auth or
// rate-limit failures it is not retryable: callers wrap it as a permanent
// error before handing work to the retrier.
var ErrNotFound = errors.New("ticket not found")

// Gateway is the ticket host surface consumed by the pipeline.
type Gateway interface {
	// FetchBody returns the ticket's current body text.
	FetchBody(ctx context.Context, ticket int) (string, error)
	// ReplaceBody overwrites the ticket's body text.
	ReplaceBody(ctx context.Context, ticket int, body string) error
	// PostComment adds a comment to the ticket.
	PostComment(ctx context.Context, ticket int, comment string) error
	// AddLabel attaches a label to the ticket.
	AddLabel(ctx context.Context, ticket int, label string) error
	// RemoveLabel detaches a label from the ticket.
	RemoveLabel(ctx context.Context, ticket int, label string) error
}
