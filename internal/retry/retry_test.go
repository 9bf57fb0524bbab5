package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeTimer records requested delays and fires immediately so tests never
// actually sleep.
type fakeTimer struct {
	delays []time.Duration
	ch     chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.ch = make(chan time.Time, 1)
	t.ch <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) total() time.Duration {
	var sum time.Duration
	for _, d := range t.delays {
		sum += d
	}
	return sum
}

func TestDoFirstTrySuccess(t *testing.T) {
	timer := &fakeTimer{}
	calls := 0

	got, err := doWithTimer(context.Background(), 3, 5*time.Second, func() (string, error) {
		calls++
		return "ok", nil
	}, timer)

	if err != nil {
		t.Fatalf("doWithTimer() error = %v, want nil", err)
	}
	if got != "ok" {
		t.Errorf("doWithTimer() = %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if len(timer.delays) != 0 {
		t.Errorf("slept %d times, want 0 (zero cumulative wait on first-try success)", len(timer.delays))
	}
}

func TestDoEventualSuccess(t *testing.T) {
	timer := &fakeTimer{}
	failures := 2
	calls := 0

	got, err := doWithTimer(context.Background(), 5, time.Second, func() (int, error) {
		calls++
		if calls <= failures {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, timer)

	if err != nil {
		t.Fatalf("doWithTimer() error = %v, want nil", err)
	}
	if got != 42 {
		t.Errorf("doWithTimer() = %d, want 42", got)
	}
	if calls != failures+1 {
		t.Errorf("operation invoked %d times, want %d", calls, failures+1)
	}
	// baseDelay * 3^0, then baseDelay * 3^1.
	want := []time.Duration{time.Second, 3 * time.Second}
	if len(timer.delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(timer.delays), len(want))
	}
	for i, d := range want {
		if timer.delays[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, timer.delays[i], d)
		}
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	timer := &fakeTimer{}
	sentinel := errors.New("always fails")
	calls := 0

	_, err := doWithTimer(context.Background(), 4, 2*time.Second, func() (struct{}, error) {
		calls++
		return struct{}{}, sentinel
	}, timer)

	if !errors.Is(err, sentinel) {
		t.Fatalf("doWithTimer() error = %v, want sentinel propagated unchanged", err)
	}
	if err != sentinel {
		t.Errorf("error was wrapped: got %v, want identical sentinel", err)
	}
	if calls != 4 {
		t.Errorf("operation invoked %d times, want 4", calls)
	}
	// 2s * (3^0 + 3^1 + 3^2) = 2s * 13 = 26s cumulative.
	if got, want := timer.total(), 26*time.Second; got != want {
		t.Errorf("cumulative sleep = %v, want %v", got, want)
	}
}

func TestDoPermanentErrorStopsImmediately(t *testing.T) {
	timer := &fakeTimer{}
	fatal := errors.New("not found")
	calls := 0

	_, err := doWithTimer(context.Background(), 5, time.Second, func() (string, error) {
		calls++
		return "", Permanent(fatal)
	}, timer)

	if err != fatal {
		t.Fatalf("doWithTimer() error = %v, want unwrapped fatal error", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1 (permanent errors are not retried)", calls)
	}
	if len(timer.delays) != 0 {
		t.Errorf("slept %d times, want 0", len(timer.delays))
	}
}

func TestDoClampsZeroAttempts(t *testing.T) {
	calls := 0
	_, err := doWithTimer(context.Background(), 0, time.Second, func() (int, error) {
		calls++
		return 0, errors.New("fail")
	}, &fakeTimer{})

	if err == nil {
		t.Fatal("doWithTimer() error = nil, want failure")
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
}
