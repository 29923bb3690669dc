package settlement

import (
	"context"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/store/repositories"

	"github.com/rs/zerolog/log"
)

// Service recomputes an obligation's settled amount after a completed
// attempt and fires the per-kind side-effects. Apply always runs inside
// the caller's transaction so the obligation flip commits atomically with
// the attempt's status change.
type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Apply settles a freshly completed attempt against its obligation. The
// obligation row is locked by the transactional Load; concurrent partial
// payments serialize here.
func (s *Service) Apply(ctx context.Context, tx repositories.Transaction, a *attempt.Attempt) error {
	o, err := tx.Obligations().Load(ctx, a.ObligationKind, a.ObligationID)
	if err != nil {
		return err
	}
	paid, err := tx.Attempts().SumCompleted(ctx, a.ObligationKind, a.ObligationID)
	if err != nil {
		return err
	}
	o.SettledAmount = paid

	switch {
	case paid > o.TotalAmount:
		// Concurrent pushes can each pass the remaining-balance check at
		// initiate time; the loser of the completion race is refunded so
		// settled never exceeds the total.
		if err := s.refundOverpayment(ctx, tx, o, a); err != nil {
			return err
		}
	case paid >= o.TotalAmount && settleable(o.Status):
		if err := s.settle(ctx, tx, o, a); err != nil {
			return err
		}
	}
	return tx.Obligations().Commit(ctx, o)
}

func settleable(st obligation.Status) bool {
	return st == obligation.StatusPending || st == obligation.StatusPaymentPending
}

func (s *Service) settle(ctx context.Context, tx repositories.Transaction,
	o *obligation.Obligation, a *attempt.Attempt) error {

	switch o.Kind {
	case obligation.KindTourBooking:
		if o.CurrentParticipants+o.Participants > o.MaxParticipants {
			return s.refundOverbooked(ctx, tx, o, a)
		}
		o.CurrentParticipants += o.Participants

	case obligation.KindSubscription:
		start := s.now()
		o.Start = start
		o.End = start.AddDate(0, 0, o.PlanDuration)
		log.Info().Int64("subscription_id", o.ID).Int64("plan_id", o.PlanID).
			Strs("features", o.PlanFeatures).Time("ends_at", o.End).
			Msg("subscription activated")

	case obligation.KindVerification, obligation.KindEventBooking:
		// No extra side-effects; the status flip is the whole story.
	}

	o.Status = o.SettledStatus()
	log.Info().Str("kind", string(o.Kind)).Int64("id", o.ID).
		Int("settled_amount", o.SettledAmount).Str("status", string(o.Status)).
		Msg("obligation settled")
	return nil
}

// refundOverpayment flips the completing attempt to refunded when crediting
// it would push paid above the total. The obligation keeps whatever settled
// before this attempt; the actual refund is manual operator work.
func (s *Service) refundOverpayment(ctx context.Context, tx repositories.Transaction,
	o *obligation.Obligation, a *attempt.Attempt) error {

	refunded, err := tx.Attempts().Transition(ctx, a.ID, attempt.StatusRefunded, attempt.Patch{
		Metadata: map[string]any{"reason": "overpayment"},
	})
	if err != nil {
		return err
	}
	o.SettledAmount -= refunded.Amount
	if o.SettledAmount < 0 {
		o.SettledAmount = 0
	}
	log.Warn().Str("local_ref", refunded.LocalRef).
		Str("kind", string(o.Kind)).Int64("id", o.ID).
		Int("amount", refunded.Amount).Int("settled_amount", o.SettledAmount).
		Int("total_amount", o.TotalAmount).
		Msg("attempt exceeds remaining balance, marked refunded for manual refund")
	return nil
}

// refundOverbooked handles the seat race: the money arrived but the tour
// filled up between initiate and callback. The attempt is flipped to
// refunded and the obligation keeps waiting; the actual refund is manual
// operator work.
func (s *Service) refundOverbooked(ctx context.Context, tx repositories.Transaction,
	o *obligation.Obligation, a *attempt.Attempt) error {

	refunded, err := tx.Attempts().Transition(ctx, a.ID, attempt.StatusRefunded, attempt.Patch{
		Metadata: map[string]any{"reason": "overbooked"},
	})
	if err != nil {
		return err
	}
	o.SettledAmount -= refunded.Amount
	if o.SettledAmount < 0 {
		o.SettledAmount = 0
	}
	log.Warn().Str("local_ref", refunded.LocalRef).Int64("tour_id", o.TourID).
		Int("participants", o.Participants).
		Int("current", o.CurrentParticipants).Int("max", o.MaxParticipants).
		Msg("tour overbooked, attempt marked refunded for manual refund")
	return nil
}
