package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huntforge/huntforge/internal/gateway"
	"github.com/huntforge/huntforge/internal/pipeline/state"
	"github.com/huntforge/huntforge/internal/retry"
)

// fakeGateway is an in-memory ticket host.
type fakeGateway struct {
	mu       sync.Mutex
	body     string
	comments []string
	labels   map[string]bool

	fetchErrs   int // fail this many FetchBody calls first
	replaceErrs int // fail this many ReplaceBody calls first

	fetchCalls   int
	replaceCalls int
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway(body string) *fakeGateway {
	return &fakeGateway{body: body, labels: make(map[string]bool)}
}

func (g *fakeGateway) FetchBody(ctx context.Context, ticket int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErrs > 0 {
		g.fetchErrs--
		return "", fmt.Errorf("transient fetch failure")
	}
	return g.body, nil
}

func (g *fakeGateway) ReplaceBody(ctx context.Context, ticket int, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceCalls++
	if g.replaceErrs > 0 {
		g.replaceErrs--
		return fmt.Errorf("transient replace failure")
	}
	g.body = body
	return nil
}

func (g *fakeGateway) PostComment(ctx context.Context, ticket int, comment string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.comments = append(g.comments, comment)
	return nil
}

func (g *fakeGateway) AddLabel(ctx context.Context, ticket int, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.labels[label] = true
	return nil
}

func (g *fakeGateway) RemoveLabel(ctx context.Context, ticket int, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.labels[label] {
		return fmt.Errorf("removing %q: %w", label, gateway.ErrNotFound)
	}
	delete(g.labels, label)
	return nil
}

// stubExecutor runs a canned function at a fixed stage.
type stubExecutor struct {
	stage state.Stage
	fn    func() (any, state.Stage, error)
	calls int
}

func (s *stubExecutor) Stage() state.Stage { return s.stage }

func (s *stubExecutor) Execute(ctx context.Context, ticket int, st state.State, body string) (any, state.Stage, error) {
	s.calls++
	return s.fn()
}

func testRunner(g *fakeGateway) *Runner {
	return &Runner{
		Gateway:     g,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
}

func TestRunnerAdvancesOnSuccess(t *testing.T) {
	g := newFakeGateway("Intel report body.\n")
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return map[string]string{"note": "ok"}, state.StageValidate, nil
	}}

	advanced, err := r.Run(context.Background(), 7, ex)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !advanced {
		t.Fatal("Run() should report an advance")
	}
	if ex.calls != 1 {
		t.Errorf("executor ran %d times, want 1", ex.calls)
	}

	st := state.Decode(g.body)
	if st.Stage != state.StageValidate {
		t.Errorf("stage = %q, want validate", st.Stage)
	}
	if st.Status != state.StatusPending {
		t.Errorf("status = %q, want pending", st.Status)
	}
	if _, ok := st.Results["extract"]; !ok {
		t.Error("extract result not recorded")
	}
	if !strings.Contains(g.body, "Intel report body.") {
		t.Error("original body text lost")
	}
	// in_progress persist plus final result persist
	if g.replaceCalls != 2 {
		t.Errorf("replaceCalls = %d, want 2", g.replaceCalls)
	}
}

func TestRunnerExtractSeesBodyWithoutStateBlock(t *testing.T) {
	g := newFakeGateway("### CTI Content\nAPT29 uses WMI.")
	r := testRunner(g)

	advanced, err := r.Run(context.Background(), 7, &ExtractStage{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !advanced {
		t.Fatal("Run() should advance")
	}

	st := state.Decode(g.body)
	p, ok := result[extractPayload](st, state.StageExtract)
	if !ok {
		t.Fatal("extract result not recorded")
	}
	// The in_progress block persisted before the stage ran must not leak
	// into the extracted content.
	if p.Content != "APT29 uses WMI." {
		t.Errorf("content = %q, want %q", p.Content, "APT29 uses WMI.")
	}
	if p.CharCount != len("APT29 uses WMI.") {
		t.Errorf("char_count = %d, want %d", p.CharCount, len("APT29 uses WMI."))
	}
	if p.Method != "direct" {
		t.Errorf("method = %q, want direct", p.Method)
	}
	if st.Stage != state.StageValidate || st.Status != state.StatusPending {
		t.Errorf("state = %s/%s, want validate/pending", st.Stage, st.Status)
	}
}

func TestRunnerStageGuardNoOp(t *testing.T) {
	body := state.Merge("Report.\n", state.Updates{Stage: state.StageValidate})
	g := newFakeGateway(body)
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return nil, state.StageValidate, nil
	}}

	advanced, err := r.Run(context.Background(), 7, ex)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if advanced {
		t.Error("guard should have suppressed the run")
	}
	if ex.calls != 0 {
		t.Errorf("executor ran %d times, want 0", ex.calls)
	}
	if g.replaceCalls != 0 {
		t.Errorf("replaceCalls = %d, want 0", g.replaceCalls)
	}
	if g.body != body {
		t.Error("ticket body mutated by a no-op")
	}
}

func TestRunnerCompletedStageIsNoOp(t *testing.T) {
	body := state.Merge("Report.\n", state.Updates{Status: state.StatusCompleted})
	g := newFakeGateway(body)
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return nil, state.StageValidate, nil
	}}

	advanced, err := r.Run(context.Background(), 7, ex)
	if err != nil || advanced {
		t.Fatalf("Run() = %v, %v; want false, nil", advanced, err)
	}
	if ex.calls != 0 {
		t.Errorf("executor ran %d times, want 0", ex.calls)
	}
}

func TestRunnerRetriesTransientWork(t *testing.T) {
	g := newFakeGateway("Report body text.\n")
	r := testRunner(g)
	failures := 2
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		if failures > 0 {
			failures--
			return nil, "", fmt.Errorf("flaky backend")
		}
		return map[string]int{"n": 1}, state.StageValidate, nil
	}}

	advanced, err := r.Run(context.Background(), 7, ex)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !advanced {
		t.Fatal("Run() should advance after retries")
	}
	if ex.calls != 3 {
		t.Errorf("executor ran %d times, want 3", ex.calls)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	g := newFakeGateway("Report body text.\n")
	r := testRunner(g)
	boom := errors.New("source unreachable")
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return nil, "", retry.Permanent(boom)
	}}

	advanced, err := r.Run(context.Background(), 7, ex)
	if advanced {
		t.Error("a failed run must not advance")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want the work error", err)
	}
	if ex.calls != 1 {
		t.Errorf("permanent error retried: %d calls", ex.calls)
	}

	st := state.Decode(g.body)
	if st.Status != state.StatusFailed {
		t.Errorf("status = %q, want failed", st.Status)
	}
	if st.Stage != state.StageExtract {
		t.Errorf("stage = %q, want extract", st.Stage)
	}
	if !strings.Contains(st.Error, "source unreachable") {
		t.Errorf("error = %q not recorded", st.Error)
	}
	if len(g.comments) != 1 || !strings.Contains(g.comments[0], "extract") {
		t.Errorf("recovery comment = %v", g.comments)
	}
}

func TestRunnerClearsErrorOnRecovery(t *testing.T) {
	body := state.Merge("Report body text.\n", state.Updates{
		Status: state.StatusFailed,
		Error:  "earlier failure",
	})
	// Operator reset: status back to pending, error left in place.
	body = state.Merge(body, state.Updates{Status: state.StatusPending})
	g := newFakeGateway(body)
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return map[string]int{"n": 1}, state.StageValidate, nil
	}}

	if _, err := r.Run(context.Background(), 7, ex); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if st := state.Decode(g.body); st.Error != "" {
		t.Errorf("stale error survived recovery: %q", st.Error)
	}
}

func TestRunnerTerminalStageCompletes(t *testing.T) {
	body := state.Merge("Report.\n", state.Updates{Stage: state.StageCommit})
	g := newFakeGateway(body)
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageCommit, fn: func() (any, state.Stage, error) {
		return map[string]bool{"done": true}, "", nil
	}}

	if _, err := r.Run(context.Background(), 9, ex); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	st := state.Decode(g.body)
	if st.Stage != state.StageCommit {
		t.Errorf("stage = %q, want commit", st.Stage)
	}
	if st.Status != state.StatusCompleted {
		t.Errorf("status = %q, want completed", st.Status)
	}
}

func TestRunnerRetriesGatewayFetch(t *testing.T) {
	g := newFakeGateway("Report body text.\n")
	g.fetchErrs = 2
	r := testRunner(g)
	ex := &stubExecutor{stage: state.StageExtract, fn: func() (any, state.Stage, error) {
		return map[string]int{"n": 1}, state.StageValidate, nil
	}}

	if _, err := r.Run(context.Background(), 7, ex); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if g.fetchCalls < 3 {
		t.Errorf("fetchCalls = %d, want at least 3", g.fetchCalls)
	}
}
