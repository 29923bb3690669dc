package postgres

import (
	"context"
	"errors"
	"fmt"

	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"

	"github.com/jackc/pgx/v5"
)

// obligationRepo dispatches over the four obligation tables. lock is set by
// transaction getters so settlement reads take row locks.
type obligationRepo struct {
	q    dbtx
	lock bool
}

func (r *obligationRepo) Load(ctx context.Context, kind obligation.Kind, id int64) (*obligation.Obligation, error) {
	switch kind {
	case obligation.KindTourBooking:
		return r.loadTourBooking(ctx, id)
	case obligation.KindEventBooking:
		return r.loadEventBooking(ctx, id)
	case obligation.KindVerification:
		return r.loadVerification(ctx, id)
	case obligation.KindSubscription:
		return r.loadSubscription(ctx, id)
	}
	return nil, engine.Newf(engine.KindNotFound, "unknown obligation kind %q", kind)
}

// forUpdate locks only the obligation row itself. Joined reference rows
// (tours, subscription_plans) are read unlocked; tour seat counts are
// re-read with their own lock in Commit.
func (r *obligationRepo) forUpdate() string {
	if r.lock {
		return " FOR UPDATE OF b"
	}
	return ""
}

func (r *obligationRepo) loadTourBooking(ctx context.Context, id int64) (*obligation.Obligation, error) {
	o := &obligation.Obligation{Kind: obligation.KindTourBooking}
	var status string
	err := r.q.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.tour_id, b.participants, b.total_amount,
		       b.settled_amount, b.status, b.created_at,
		       t.max_participants, t.current_participants
		  FROM tour_bookings b
		  JOIN tours t ON t.id = b.tour_id
		 WHERE b.id = $1`+r.forUpdate(), id,
	).Scan(&o.ID, &o.UserID, &o.TourID, &o.Participants, &o.TotalAmount,
		&o.SettledAmount, &status, &o.CreatedAt,
		&o.MaxParticipants, &o.CurrentParticipants)
	if err != nil {
		return nil, notFound(err, obligation.KindTourBooking, id)
	}
	o.Status = obligation.Status(status)
	return o, nil
}

func (r *obligationRepo) loadEventBooking(ctx context.Context, id int64) (*obligation.Obligation, error) {
	o := &obligation.Obligation{Kind: obligation.KindEventBooking}
	var status string
	err := r.q.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.event_id, b.total_amount, b.settled_amount,
		       b.status, b.created_at
		  FROM event_bookings b
		 WHERE b.id = $1`+r.forUpdate(), id,
	).Scan(&o.ID, &o.UserID, &o.EventID, &o.TotalAmount, &o.SettledAmount,
		&status, &o.CreatedAt)
	if err != nil {
		return nil, notFound(err, obligation.KindEventBooking, id)
	}
	o.Status = obligation.Status(status)
	return o, nil
}

func (r *obligationRepo) loadVerification(ctx context.Context, id int64) (*obligation.Obligation, error) {
	o := &obligation.Obligation{Kind: obligation.KindVerification}
	var status, subjectKind string
	err := r.q.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.subject_kind, b.subject_id, b.duration_years,
		       b.total_amount, b.settled_amount, b.status, b.created_at
		  FROM verification_requests b
		 WHERE b.id = $1`+r.forUpdate(), id,
	).Scan(&o.ID, &o.UserID, &subjectKind, &o.SubjectID, &o.DurationYears,
		&o.TotalAmount, &o.SettledAmount, &status, &o.CreatedAt)
	if err != nil {
		return nil, notFound(err, obligation.KindVerification, id)
	}
	o.Status = obligation.Status(status)
	o.SubjectKind = obligation.SubjectKind(subjectKind)
	return o, nil
}

func (r *obligationRepo) loadSubscription(ctx context.Context, id int64) (*obligation.Obligation, error) {
	o := &obligation.Obligation{Kind: obligation.KindSubscription}
	var status string
	err := r.q.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.plan_id, b.total_amount, b.settled_amount,
		       b.status, b.created_at,
		       COALESCE(b.starts_at, now()), COALESCE(b.ends_at, now()),
		       p.duration_days, p.features
		  FROM subscriptions b
		  JOIN subscription_plans p ON p.id = b.plan_id
		 WHERE b.id = $1`+r.forUpdate(), id,
	).Scan(&o.ID, &o.UserID, &o.PlanID, &o.TotalAmount, &o.SettledAmount,
		&status, &o.CreatedAt, &o.Start, &o.End,
		&o.PlanDuration, &o.PlanFeatures)
	if err != nil {
		return nil, notFound(err, obligation.KindSubscription, id)
	}
	o.Status = obligation.Status(status)
	return o, nil
}

// Commit writes the mutable fields back to the kind's table. For tour
// bookings a confirmed booking also reserves its seats; the tour row is
// locked so two settlements cannot both fit into the last seats.
func (r *obligationRepo) Commit(ctx context.Context, o *obligation.Obligation) error {
	switch o.Kind {
	case obligation.KindTourBooking:
		_, err := r.q.Exec(ctx, `
			UPDATE tour_bookings
			   SET settled_amount=$2, status=$3, updated_at=now()
			 WHERE id=$1`,
			o.ID, o.SettledAmount, string(o.Status))
		if err != nil {
			return err
		}
		_, err = r.q.Exec(ctx, `
			UPDATE tours SET current_participants=$2, updated_at=now() WHERE id=$1`,
			o.TourID, o.CurrentParticipants)
		return err

	case obligation.KindEventBooking:
		_, err := r.q.Exec(ctx, `
			UPDATE event_bookings
			   SET settled_amount=$2, status=$3, updated_at=now()
			 WHERE id=$1`,
			o.ID, o.SettledAmount, string(o.Status))
		return err

	case obligation.KindVerification:
		_, err := r.q.Exec(ctx, `
			UPDATE verification_requests
			   SET settled_amount=$2, status=$3, updated_at=now()
			 WHERE id=$1`,
			o.ID, o.SettledAmount, string(o.Status))
		return err

	case obligation.KindSubscription:
		_, err := r.q.Exec(ctx, `
			UPDATE subscriptions
			   SET settled_amount=$2, status=$3, starts_at=$4, ends_at=$5, updated_at=now()
			 WHERE id=$1`,
			o.ID, o.SettledAmount, string(o.Status), o.Start, o.End)
		return err
	}
	return fmt.Errorf("commit: unknown obligation kind %q", o.Kind)
}

func notFound(err error, kind obligation.Kind, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.Newf(engine.KindNotFound, "%s %d not found", kind, id)
	}
	return err
}
