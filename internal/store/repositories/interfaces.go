package repositories

import (
	"context"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/event"
	"safiripay/internal/domain/obligation"
)

// AttemptRepository is the contract for payment-attempt persistence. The
// Payment Attempt Store owns these rows exclusively.
type AttemptRepository interface {
	// Create persists a fresh pending attempt and assigns its ID.
	Create(ctx context.Context, a *attempt.Attempt) error
	ByID(ctx context.Context, id int64) (*attempt.Attempt, error)
	ByLocalRef(ctx context.Context, localRef string) (*attempt.Attempt, error)
	ByCheckoutID(ctx context.Context, checkoutRequestID string) (*attempt.Attempt, error)
	ByReceipt(ctx context.Context, receipt string) (*attempt.Attempt, error)

	// Transition atomically applies a status change under a row lock.
	// Re-applying the same (status, receipt) pair is a no-op returning the
	// stored row.
	Transition(ctx context.Context, id int64, target attempt.Status, patch attempt.Patch) (*attempt.Attempt, error)

	// PendingAttempt finds an open (pending/processing) attempt on an
	// obligation, used to reuse verification-fee rows.
	PendingAttempt(ctx context.Context, kind obligation.Kind, obligationID int64) (*attempt.Attempt, error)

	// SumCompleted totals completed amounts for one obligation.
	SumCompleted(ctx context.Context, kind obligation.Kind, obligationID int64) (int, error)

	// SweepStalePending fails pending attempts created before the cutoff,
	// tagging them with {reason: initiate_timeout}. Returns the count.
	SweepStalePending(ctx context.Context, cutoff time.Time) (int, error)

	List(ctx context.Context, limit, offset int) ([]*attempt.Attempt, error)
}

// ObligationRepository loads and commits the four obligation kinds through
// a uniform shape. Inside a transaction, Load takes a row lock.
type ObligationRepository interface {
	Load(ctx context.Context, kind obligation.Kind, id int64) (*obligation.Obligation, error)
	Commit(ctx context.Context, o *obligation.Obligation) error
}

// EventRepository owns provider webhook records.
type EventRepository interface {
	// Upsert inserts the event or returns the existing row for the same
	// external ID. The unique index serializes duplicate deliveries.
	Upsert(ctx context.Context, e *event.Event) (*event.Event, error)
	ByExternalID(ctx context.Context, externalID string) (*event.Event, error)
	MarkProcessed(ctx context.Context, id int64, procErr string) error
	// Requeue clears the processed flag for operator-driven replay and
	// returns the reopened row.
	Requeue(ctx context.Context, id int64) (*event.Event, error)
	List(ctx context.Context, onlyUnprocessed bool, limit, offset int) ([]*event.Event, error)
}

// UnitOfWork opens transactions spanning the three stores.
type UnitOfWork interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is one database transaction; repositories obtained from it
// share its visibility and locks.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Attempts() AttemptRepository
	Obligations() ObligationRepository
	Events() EventRepository
}
