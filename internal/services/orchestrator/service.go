package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"safiripay/internal/config"
	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
	"safiripay/internal/phone"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/store/repositories"

	"github.com/rs/zerolog/log"
)

// Pusher is the slice of the Daraja client the orchestrator needs.
type Pusher interface {
	STKPush(ctx context.Context, req daraja.STKPushRequest) (*daraja.STKPushResponse, error)
}

// Service drives one STK push end to end: validate, persist a pending
// attempt, call the provider, record the correlation IDs.
type Service struct {
	cfg         *config.ProviderStore
	pusher      Pusher
	attempts    repositories.AttemptRepository
	obligations repositories.ObligationRepository
	now         func() time.Time
}

func NewService(cfg *config.ProviderStore, pusher Pusher,
	attempts repositories.AttemptRepository, obligations repositories.ObligationRepository) *Service {
	return &Service{
		cfg:         cfg,
		pusher:      pusher,
		attempts:    attempts,
		obligations: obligations,
		now:         time.Now,
	}
}

// Result is the caller-facing outcome of an initiate. Provider is nil when
// the push never reached the provider; Accepted() on it distinguishes a
// business rejection from acceptance.
type Result struct {
	Attempt  *attempt.Attempt
	Provider *daraja.STKPushResponse
}

// InitiateStkPush validates the intent, creates a pending attempt and posts
// the push. No silent retries: a failure is recorded on the attempt and
// returned; the caller decides whether to initiate again.
func (s *Service) InitiateStkPush(ctx context.Context, kind obligation.Kind, obligationID int64,
	phoneRaw string, amount int, description string) (*Result, error) {

	msisdn, err := phone.Normalize(phoneRaw)
	if err != nil {
		return nil, err
	}

	pc, err := s.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := pc.ValidateForSTK(); err != nil {
		return nil, err
	}
	if amount < pc.MinAmount() || amount > pc.MaxAmount() {
		return nil, engine.Newf(engine.KindBadAmount,
			"amount %d outside allowed range %d..%d KES", amount, pc.MinAmount(), pc.MaxAmount())
	}

	o, err := s.obligations.Load(ctx, kind, obligationID)
	if err != nil {
		return nil, err
	}
	if !o.AcceptsPayment() {
		return nil, engine.Newf(engine.KindExceedsRemaining,
			"%s %d in status %s does not accept further payments", kind, obligationID, o.Status)
	}
	if amount > o.Remaining() {
		return nil, engine.Newf(engine.KindExceedsRemaining,
			"amount %d exceeds remaining balance %d", amount, o.Remaining())
	}

	a, err := s.attemptFor(ctx, o, msisdn, amount, description)
	if err != nil {
		return nil, err
	}

	resp, err := s.pusher.STKPush(ctx, daraja.STKPushRequest{
		Amount:           amount,
		Phone:            msisdn,
		AccountReference: obligation.AccountRef(kind, obligationID, a.ID),
		Description:      description,
	})
	if err != nil {
		failed, terr := s.attempts.Transition(ctx, a.ID, attempt.StatusFailed, attempt.Patch{
			Metadata: map[string]any{"error": err.Error()},
		})
		if terr != nil {
			log.Error().Err(terr).Str("local_ref", a.LocalRef).Msg("mark attempt failed")
			return &Result{Attempt: a}, err
		}
		return &Result{Attempt: failed}, err
	}

	if !resp.Accepted() {
		failed, terr := s.attempts.Transition(ctx, a.ID, attempt.StatusFailed, attempt.Patch{
			Metadata: map[string]any{
				"result_code": resp.ResponseCode,
				"result_desc": resp.ResponseDescription,
			},
		})
		if terr != nil {
			return &Result{Attempt: a, Provider: resp}, terr
		}
		log.Info().Str("local_ref", a.LocalRef).Str("code", resp.ResponseCode).
			Msg("stk push rejected by provider")
		return &Result{Attempt: failed, Provider: resp}, nil
	}

	processing, err := s.attempts.Transition(ctx, a.ID, attempt.StatusProcessing, attempt.Patch{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Metadata: map[string]any{
			"merchant_request_id": resp.MerchantRequestID,
			"checkout_request_id": resp.CheckoutRequestID,
			"customer_message":    resp.CustomerMessage,
		},
	})
	if err != nil {
		return &Result{Attempt: a, Provider: resp}, err
	}
	log.Info().Str("local_ref", processing.LocalRef).
		Str("checkout_request_id", resp.CheckoutRequestID).
		Int("amount", amount).Msg("stk push accepted")
	return &Result{Attempt: processing, Provider: resp}, nil
}

// attemptFor creates the pending attempt, reusing an open verification row
// when one already exists for the same fee.
func (s *Service) attemptFor(ctx context.Context, o *obligation.Obligation,
	msisdn string, amount int, description string) (*attempt.Attempt, error) {

	if o.Kind == obligation.KindVerification {
		open, err := s.attempts.PendingAttempt(ctx, o.Kind, o.ID)
		if err == nil && open.Status == attempt.StatusPending && open.Amount == amount {
			return open, nil
		}
		if err != nil && !engine.Is(err, engine.KindNotFound) {
			return nil, err
		}
	}

	a, err := attempt.New(o.Kind, o.ID, amount, description, s.now())
	if err != nil {
		return nil, err
	}
	a.PhoneHash = hashPhone(msisdn)
	return a, s.attempts.Create(ctx, a)
}

// hashPhone keeps the raw MSISDN out of attempt rows.
func hashPhone(msisdn string) string {
	sum := sha256.Sum256([]byte(msisdn))
	return hex.EncodeToString(sum[:8])
}
