package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/event"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/services/settlement"
	"safiripay/internal/store/repositories"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ErrUnparseable marks a callback body that could not be decoded; the HTTP
// boundary answers 400 so the provider does not retry garbage forever.
var ErrUnparseable = errors.New("unparseable callback payload")

const (
	lookupRetries = 2 // 3 tries total
	lookupDelay   = 250 * time.Millisecond
)

// Service consumes provider callbacks and reconciles them against payment
// attempts. All state changes from one callback commit in one transaction.
type Service struct {
	uow        repositories.UnitOfWork
	attempts   repositories.AttemptRepository
	events     repositories.EventRepository
	settlement *settlement.Service
	now        func() time.Time
}

func NewService(uow repositories.UnitOfWork, attempts repositories.AttemptRepository,
	events repositories.EventRepository, settlementSvc *settlement.Service) *Service {
	return &Service{
		uow:        uow,
		attempts:   attempts,
		events:     events,
		settlement: settlementSvc,
		now:        time.Now,
	}
}

// ProcessSTKCallback ingests one STK callback delivery. Replaying the same
// payload is a no-op: the event row's unique external ID serializes
// duplicates and terminal attempt states are write-once.
func (s *Service) ProcessSTKCallback(ctx context.Context, raw []byte) error {
	cb, err := daraja.ParseSTKCallback(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	externalID := event.STKExternalID(cb.MerchantRequestID, cb.CheckoutRequestID)

	// Fast path for duplicate deliveries, before any attempt lookup.
	if existing, err := s.events.ByExternalID(ctx, externalID); err == nil && existing.Processed {
		log.Debug().Str("external_id", externalID).Msg("duplicate callback, already processed")
		return nil
	}

	a, lookupErr := s.locateAttempt(ctx, cb)
	if lookupErr != nil && !engine.Is(lookupErr, engine.KindNotFound) {
		return lookupErr
	}

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ev, err := event.New(event.KindSTK, "stk_callback", externalID, raw, s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	stored, err := tx.Events().Upsert(ctx, ev)
	if err != nil {
		return err
	}
	if stored.Processed {
		// Lost the race to a concurrent delivery of the same callback.
		return tx.Commit(ctx)
	}

	procErr := ""
	if lookupErr != nil {
		procErr = lookupErr.Error()
		log.Warn().Err(lookupErr).Str("external_id", externalID).
			Msg("callback for unknown attempt")
	} else if err := s.apply(ctx, tx, cb, a); err != nil {
		if engine.Is(err, engine.KindInvalidTransition) {
			// Terminal state already set by an earlier delivery; record and move on.
			procErr = err.Error()
		} else {
			return err
		}
	}

	if err := tx.Events().MarkProcessed(ctx, stored.ID, procErr); err != nil {
		if engine.Is(err, engine.KindInvalidTransition) {
			return tx.Commit(ctx)
		}
		return err
	}
	return tx.Commit(ctx)
}

// apply transitions the attempt per the callback outcome and settles on
// success.
func (s *Service) apply(ctx context.Context, tx repositories.Transaction,
	cb *daraja.STKCallback, a *attempt.Attempt) error {

	if !cb.Success() {
		_, err := tx.Attempts().Transition(ctx, a.ID, attempt.StatusFailed, attempt.Patch{
			Metadata: map[string]any{
				"result_code": strconv.Itoa(cb.ResultCode),
				"result_desc": cb.ResultDesc,
			},
		})
		if err == nil {
			log.Info().Str("local_ref", a.LocalRef).Int("result_code", cb.ResultCode).
				Msg("stk push failed at provider")
		}
		return err
	}

	if got := cb.Amount(); got != a.Amount {
		_, err := tx.Attempts().Transition(ctx, a.ID, attempt.StatusFailed, attempt.Patch{
			Metadata: map[string]any{
				"mismatch": fmt.Sprintf("expected=%d received=%d", a.Amount, got),
			},
		})
		if err == nil {
			log.Error().Str("local_ref", a.LocalRef).Int("expected", a.Amount).
				Int("received", got).Msg("callback amount mismatch")
		}
		return err
	}

	completedAt := s.now()
	completed, err := tx.Attempts().Transition(ctx, a.ID, attempt.StatusCompleted, attempt.Patch{
		ProviderReceipt: cb.Receipt(),
		CompletedAt:     &completedAt,
		Metadata: map[string]any{
			"receipt":          cb.Receipt(),
			"transaction_date": cb.TransactionDate(),
			"phone":            cb.PhoneNumber(),
		},
	})
	if err != nil {
		return err
	}
	log.Info().Str("local_ref", completed.LocalRef).Str("receipt", completed.ProviderReceipt).
		Int("amount", completed.Amount).Msg("payment completed")
	return s.settlement.Apply(ctx, tx, completed)
}

// locateAttempt resolves the callback to an attempt. The correlation ID may
// not be committed yet when the callback races the synchronous response, so
// the lookup retries briefly and then falls back to the AccountReference
// the orchestrator embedded in the push.
func (s *Service) locateAttempt(ctx context.Context, cb *daraja.STKCallback) (*attempt.Attempt, error) {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(lookupDelay), lookupRetries), ctx)

	a, err := backoff.RetryWithData(func() (*attempt.Attempt, error) {
		a, err := s.attempts.ByCheckoutID(ctx, cb.CheckoutRequestID)
		if err != nil && !engine.Is(err, engine.KindNotFound) {
			return nil, backoff.Permanent(err)
		}
		return a, err
	}, bo)
	if err == nil {
		return a, nil
	}
	if !engine.Is(err, engine.KindNotFound) {
		return nil, err
	}

	kind, obligationID, attemptID, perr := obligation.ParseAccountRef(cb.AccountReference())
	if perr != nil {
		return nil, engine.Wrap(engine.KindNotFound, perr,
			"attempt not found by correlation or account reference")
	}
	a, err = s.attempts.ByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.ObligationKind != kind || a.ObligationID != obligationID {
		return nil, engine.Newf(engine.KindNotFound,
			"account reference %s does not match attempt %d", cb.AccountReference(), attemptID)
	}
	return a, nil
}

// RecordProviderEvent stores a non-STK callback (balance result, pull
// queue-timeout). There is nothing to reconcile, so the row is marked
// processed immediately; it exists for operator audit.
func (s *Service) RecordProviderEvent(ctx context.Context, kind event.ProviderKind,
	eventType, externalID string, raw []byte) error {

	if externalID == "" {
		externalID = ContentID(raw)
	}
	ev, err := event.New(kind, eventType, externalID, raw, s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := tx.Events().Upsert(ctx, ev)
	if err != nil {
		return err
	}
	if !stored.Processed {
		if err := tx.Events().MarkProcessed(ctx, stored.ID, ""); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ContentID derives a stable dedupe key for envelopes that carry no
// provider-issued event ID.
func ContentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
