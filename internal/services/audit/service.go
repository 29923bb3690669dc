package audit

import (
	"context"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/engine"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/store/repositories"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Puller is the slice of the Daraja client the auditor needs.
type Puller interface {
	PullTransactions(ctx context.Context, start, end time.Time, offset int) ([]daraja.PullTransaction, error)
}

// Service periodically pulls the provider's view of completed transactions
// and flags any receipt this engine does not hold as a completed attempt.
// Drift is logged, never auto-repaired.
type Service struct {
	puller   Puller
	attempts repositories.AttemptRepository
	every    time.Duration
	window   time.Duration
}

func NewService(puller Puller, attempts repositories.AttemptRepository, every, window time.Duration) *Service {
	if every == 0 {
		every = time.Hour
	}
	if window == 0 {
		window = 24 * time.Hour
	}
	return &Service{puller: puller, attempts: attempts, every: every, window: window}
}

// Run audits on a fixed schedule until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("every", s.every).Dur("window", s.window).Msg("pull audit started")

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pull audit stopping")
			return
		case <-ticker.C:
			end := time.Now()
			if _, err := s.Audit(ctx, end.Add(-s.window), end); err != nil {
				log.Error().Err(err).Msg("pull audit run failed")
			}
		}
	}
}

// Audit pulls the window and returns the number of drift records found.
func (s *Service) Audit(ctx context.Context, start, end time.Time) (int, error) {
	drift := 0
	offset := 0
	for {
		batch, err := s.pullPage(ctx, start, end, offset)
		if err != nil {
			return drift, err
		}
		if len(batch) == 0 {
			return drift, nil
		}
		for _, tx := range batch {
			if s.isDrift(ctx, tx) {
				drift++
			}
		}
		offset += len(batch)
	}
}

// pullPage retries transient provider failures; a rejected pull is final.
func (s *Service) pullPage(ctx context.Context, start, end time.Time, offset int) ([]daraja.PullTransaction, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryWithData(func() ([]daraja.PullTransaction, error) {
		batch, err := s.puller.PullTransactions(ctx, start, end, offset)
		if err != nil && !engine.Is(err, engine.KindProviderUnreachable) {
			return nil, backoff.Permanent(err)
		}
		return batch, err
	}, bo)
}

// isDrift reports and logs a provider transaction with no matching
// completed attempt.
func (s *Service) isDrift(ctx context.Context, tx daraja.PullTransaction) bool {
	a, err := s.attempts.ByReceipt(ctx, tx.TransactionID)
	if err == nil && a.Status == attempt.StatusCompleted {
		return false
	}
	evt := log.Warn().Str("receipt", tx.TransactionID).
		Float64("amount", tx.Amount).Str("bill_reference", tx.BillReference).
		Str("trx_date", tx.TrxDate)
	if err == nil {
		evt = evt.Str("local_ref", a.LocalRef).Str("attempt_status", string(a.Status))
	}
	evt.Str("drift", "orphan_provider_transaction").Msg("drift detected")
	return true
}
