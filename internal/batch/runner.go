package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner invokes the pipeline on a fixed interval. It performs one run
// immediately on Start and then one per tick until the context is cancelled.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
	log      zerolog.Logger
}

// NewRunner creates a runner that triggers pipeline every interval.
func NewRunner(pipeline *Pipeline, interval time.Duration, log zerolog.Logger) *Runner {
	return &Runner{pipeline: pipeline, interval: interval, log: log}
}

// Start blocks until ctx is cancelled, running the pipeline on schedule.
// Run errors are logged, not returned: a failed batch is retried whole on
// the next tick because every task is idempotent.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("batch runner started")

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("batch runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := r.pipeline.Run(ctx)

	if err != nil {
		r.log.Error().Err(err).
			Str("run_id", result.RunID).
			Int("tasks_completed", len(result.Tasks)).
			Dur("elapsed", time.Since(start)).
			Msg("batch run failed")
		return
	}

	r.log.Info().
		Str("run_id", result.RunID).
		Int("tasks_completed", len(result.Tasks)).
		Dur("elapsed", time.Since(start)).
		Msg("batch run finished")
}
