package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/sdrlabs/leadqual/internal/assistant"
	"github.com/sdrlabs/leadqual/internal/domain"
)

// awaitRunSettled polls the run until it either reaches a terminal status
// or blocks on tool outputs. A status outside the documented enumeration is
// a protocol violation and stops polling immediately; waiting on a status
// we cannot interpret would spin until the timeout for nothing.
func (a *Agent) awaitRunSettled(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	started := a.now()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		run, err := a.runtime.GetRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		if !run.Status.Known() {
			return nil, &domain.UnknownRunStatusError{RunID: runID, Status: run.Status}
		}
		if run.Status.Terminal() || run.Status == domain.RunStatusRequiresAction {
			return run, nil
		}

		elapsed := a.now().Sub(started)
		if elapsed >= a.pollTimeout {
			a.logger.Warn("run polling exceeded ceiling",
				slog.String("thread_id", threadID),
				slog.String("run_id", runID),
				slog.Duration("elapsed", elapsed))
			return nil, &domain.RunTimeoutError{RunID: runID, Elapsed: elapsed}
		}

		a.logger.Debug("run still in flight",
			slog.String("run_id", runID),
			slog.String("status", string(run.Status)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
