// Package pipeline drives ticket processing through the staged workflow.
// All durable state lives in the ticket body itself, so a run that dies
// mid-stage resumes exactly where the last persisted state left it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/huntforge/huntforge/internal/gateway"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// Executor performs the work of a single pipeline stage.
type Executor interface {
	// Stage identifies which stage this executor handles.
	Stage() state.Stage
	// Execute runs the stage against the ticket body and decoded state.
	// It returns the stage's result payload and the stage to advance to.
	// An empty next stage marks the pipeline terminal: the runner records
	// completion instead of advancing.
	Execute(ctx context.Context, ticket int, st state.State, body string) (payload any, next state.Stage, err error)
}

// Runner executes one stage of one ticket: guard, persist in_progress,
// run the work through the retrier, then persist the outcome.
type Runner struct {
	Gateway     gateway.Gateway
	Logger      *slog.Logger
	MaxAttempts int
	BaseDelay   time.Duration
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) attempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return 3
}

func (r *Runner) delay() time.Duration {
	if r.BaseDelay > 0 {
		return r.BaseDelay
	}
	return 5 * time.Second
}

// fetchBody reads the ticket body with transient failures retried. A
// missing ticket is permanent.
func (r *Runner) fetchBody(ctx context.Context, ticket int) (string, error) {
	return retry.Do(ctx, r.attempts(), r.delay(), func() (string, error) {
		body, err := r.Gateway.FetchBody(ctx, ticket)
		if errors.Is(err, gateway.ErrNotFound) {
			return "", retry.Permanent(err)
		}
		return body, err
	})
}

// replaceBody writes the ticket body with transient failures retried.
func (r *Runner) replaceBody(ctx context.Context, ticket int, body string) error {
	_, err := retry.Do(ctx, r.attempts(), r.delay(), func() (struct{}, error) {
		err := r.Gateway.ReplaceBody(ctx, ticket, body)
		if errors.Is(err, gateway.ErrNotFound) {
			return struct{}{}, retry.Permanent(err)
		}
		return struct{}{}, err
	})
	return err
}

type outcome struct {
	payload any
	next    state.Stage
}

// Run executes ex against the ticket. advanced reports whether the stage
// did work and persisted a transition; a guard no-op returns false with a
// nil error.
func (r *Runner) Run(ctx context.Context, ticket int, ex Executor) (advanced bool, err error) {
	log := r.logger().With("ticket", ticket, "stage", ex.Stage())

	body, err := r.fetchBody(ctx, ticket)
	if err != nil {
		return false, fmt.Errorf("fetching ticket %d: %w", ticket, err)
	}
	st := state.Decode(body)

	// Stage guard: only run when the ticket is at this stage and the
	// stage has not already completed. Anything else is a no-op so a
	// re-delivered event cannot re-run finished work.
	if st.Stage != ex.Stage() || st.Status == state.StatusCompleted {
		log.Debug("stage guard: no-op",
			"ticket_stage", st.Stage, "ticket_status", st.Status)
		return false, nil
	}

	// Persist in_progress before doing any work, so a crash mid-stage is
	// visible in the ticket itself.
	body = state.Merge(body, state.Updates{Status: state.StatusInProgress})
	if err := r.replaceBody(ctx, ticket, body); err != nil {
		return false, fmt.Errorf("marking ticket %d in progress: %w", ticket, err)
	}
	st = state.Decode(body)

	// Executors see the document without the state block: stage work reads
	// the submission text, not the pipeline's own bookkeeping.
	workBody := state.StripBlock(body)
	out, workErr := retry.Do(ctx, r.attempts(), r.delay(), func() (outcome, error) {
		payload, next, err := ex.Execute(ctx, ticket, st, workBody)
		return outcome{payload: payload, next: next}, err
	})
	if workErr != nil {
		log.Warn("stage failed", "error", workErr)
		return false, r.recordFailure(ctx, ticket, body, ex.Stage(), workErr)
	}

	raw, err := state.Result(out.payload)
	if err != nil {
		return false, r.recordFailure(ctx, ticket, body, ex.Stage(),
			fmt.Errorf("encoding %s result: %w", ex.Stage(), err))
	}

	u := state.Updates{
		ClearError: true,
		Results:    map[string]json.RawMessage{string(ex.Stage()): raw},
	}
	if out.next == "" || out.next == ex.Stage() {
		u.Status = state.StatusCompleted
	} else {
		u.Stage = out.next
		u.Status = state.StatusPending
	}
	if err := r.replaceBody(ctx, ticket, state.Merge(body, u)); err != nil {
		return false, fmt.Errorf("recording %s result on ticket %d: %w", ex.Stage(), ticket, err)
	}

	log.Info("stage completed", "next", out.next)
	return true, nil
}

// recordFailure persists the failed status and posts a recovery note. The
// original work error is always returned; persistence problems are
// attached alongside it.
func (r *Runner) recordFailure(ctx context.Context, ticket int, body string, stage state.Stage, workErr error) error {
	merged := state.Merge(body, state.Updates{
		Status: state.StatusFailed,
		Error:  workErr.Error(),
	})
	if err := r.replaceBody(ctx, ticket, merged); err != nil {
		return errors.Join(workErr, fmt.Errorf("recording failure on ticket %d: %w", ticket, err))
	}

	note := fmt.Sprintf("⚠️ Pipeline stage `%s` failed: %s\n\n"+
		"The run stopped at this stage. Fix the underlying problem and "+
		"re-trigger processing to resume from `%s`.", stage, workErr, stage)
	if err := r.Gateway.PostComment(ctx, ticket, note); err != nil {
		r.logger().Warn("posting failure note", "ticket", ticket, "error", err)
	}
	return workErr
}

// result decodes a prior stage's payload from the state block.
func result[T any](st state.State, stage state.Stage) (T, bool) {
	var v T
	raw, ok := st.Results[string(stage)]
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}
