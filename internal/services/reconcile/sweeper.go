package reconcile

import (
	"context"
	"time"

	"safiripay/internal/store/repositories"

	"github.com/rs/zerolog/log"
)

// Sweeper fails attempts stuck in pending: an aborted initiate can leave a
// row behind before the provider ever saw the push.
type Sweeper struct {
	attempts  repositories.AttemptRepository
	pollEvery time.Duration
	timeout   time.Duration
}

func NewSweeper(attempts repositories.AttemptRepository, pollEvery, timeout time.Duration) *Sweeper {
	if pollEvery == 0 {
		pollEvery = time.Minute
	}
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Sweeper{attempts: attempts, pollEvery: pollEvery, timeout: timeout}
}

// Run sweeps until the context is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("poll_every", w.pollEvery).Dur("pending_timeout", w.timeout).
		Msg("pending sweeper started")

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pending sweeper stopping")
			return
		case <-ticker.C:
			n, err := w.attempts.SweepStalePending(ctx, time.Now().Add(-w.timeout))
			if err != nil {
				log.Error().Err(err).Msg("sweep stale pending attempts")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("stale pending attempts failed")
			}
		}
	}
}
