package pipeline

import (
	"context"
	"log/slog"

	"github.com/huntforge/huntforge/internal/pipeline/state"
)

// Orchestrator dispatches tickets to stage executors by their decoded
// state, advancing through as many stages as will run.
type Orchestrator struct {
	runner    *Runner
	executors map[state.Stage]Executor
}

// NewOrchestrator builds an orchestrator over the given executors. A
// stage with no executor registered is skipped at dispatch time.
func NewOrchestrator(r *Runner, execs ...Executor) *Orchestrator {
	m := make(map[state.Stage]Executor, len(execs))
	for _, ex := range execs {
		m[ex.Stage()] = ex
	}
	return &Orchestrator{runner: r, executors: m}
}

func (o *Orchestrator) logger() *slog.Logger {
	return o.runner.logger()
}

// Process runs the ticket forward until it completes, fails, or reaches
// a stage the orchestrator cannot handle. Re-processing a finished
// ticket is a no-op; re-processing a failed one resumes from the stage
// it failed at. The state in the ticket decides, not the caller.
func (o *Orchestrator) Process(ctx context.Context, ticket int) error {
	log := o.logger().With("ticket", ticket)

	for {
		body, err := o.runner.fetchBody(ctx, ticket)
		if err != nil {
			return err
		}
		st := state.Decode(body)

		if !st.Stage.Known() {
			// An unrecognized stage is left exactly as written: a newer
			// tool may own it.
			log.Info("skipping ticket at unknown stage", "stage", st.Stage)
			return nil
		}
		if st.Status == state.StatusCompleted {
			log.Debug("ticket already completed", "stage", st.Stage)
			return nil
		}
		if st.Status == state.StatusFailed {
			// A re-trigger resumes the failed stage; the stage guard makes
			// the re-run safe.
			log.Info("resuming failed ticket", "stage", st.Stage, "error", st.Error)
		}

		ex, ok := o.executors[st.Stage]
		if !ok {
			log.Info("no executor for stage", "stage", st.Stage)
			return nil
		}

		advanced, err := o.runner.Run(ctx, ticket, ex)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
	}
}
