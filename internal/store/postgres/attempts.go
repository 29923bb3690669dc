package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type attemptRepo struct {
	q    dbtx
	pool *pgxpool.Pool // nil inside a transaction
}

const attemptColumns = `id, local_ref, obligation_kind, obligation_id, amount, method, status,
	description, phone_hash, checkout_request_id, merchant_request_id, provider_receipt,
	metadata, created_at, completed_at`

func (r *attemptRepo) Create(ctx context.Context, a *attempt.Attempt) error {
	meta, err := marshalMeta(a.Metadata)
	if err != nil {
		return err
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO payment_attempts (local_ref, obligation_kind, obligation_id, amount, method,
			status, description, phone_hash, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`,
		a.LocalRef, string(a.ObligationKind), a.ObligationID, a.Amount, a.Method,
		string(a.Status), a.Description, a.PhoneHash, meta, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *attemptRepo) ByID(ctx context.Context, id int64) (*attempt.Attempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id=$1`, id)
}

func (r *attemptRepo) ByLocalRef(ctx context.Context, localRef string) (*attempt.Attempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE local_ref=$1`, localRef)
}

func (r *attemptRepo) ByCheckoutID(ctx context.Context, checkoutRequestID string) (*attempt.Attempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE checkout_request_id=$1`, checkoutRequestID)
}

func (r *attemptRepo) ByReceipt(ctx context.Context, receipt string) (*attempt.Attempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE provider_receipt=$1`, receipt)
}

func (r *attemptRepo) PendingAttempt(ctx context.Context, kind obligation.Kind, obligationID int64) (*attempt.Attempt, error) {
	return r.one(ctx, `
		SELECT `+attemptColumns+`
		  FROM payment_attempts
		 WHERE obligation_kind=$1 AND obligation_id=$2 AND status IN ('pending','processing')
		 ORDER BY id DESC LIMIT 1`,
		string(kind), obligationID)
}

func (r *attemptRepo) SumCompleted(ctx context.Context, kind obligation.Kind, obligationID int64) (int, error) {
	var sum int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		  FROM payment_attempts
		 WHERE obligation_kind=$1 AND obligation_id=$2 AND status='completed'`,
		string(kind), obligationID,
	).Scan(&sum)
	return sum, err
}

// Transition applies a status change under a row lock. Outside a
// transaction it opens its own short one; the lock makes the check-and-set
// atomic against concurrent callbacks.
func (r *attemptRepo) Transition(ctx context.Context, id int64, target attempt.Status, patch attempt.Patch) (*attempt.Attempt, error) {
	if r.pool != nil {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return nil, err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		a, err := transitionOn(ctx, tx, id, target, patch)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return a, nil
	}
	return transitionOn(ctx, r.q, id, target, patch)
}

func transitionOn(ctx context.Context, q dbtx, id int64, target attempt.Status, patch attempt.Patch) (*attempt.Attempt, error) {
	a, err := scanAttempt(q.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := a.Transition(target, patch); err != nil {
		return nil, err
	}
	if a.Status == prev && prev == target {
		// Idempotent terminal re-application; nothing to write.
		return a, nil
	}
	meta, err := marshalMeta(a.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = q.Exec(ctx, `
		UPDATE payment_attempts
		   SET status=$2, checkout_request_id=NULLIF($3,''), merchant_request_id=$4,
		       provider_receipt=$5, metadata=$6, completed_at=$7, updated_at=now()
		 WHERE id=$1`,
		a.ID, string(a.Status), a.CheckoutRequestID, a.MerchantRequestID,
		a.ProviderReceipt, meta, a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *attemptRepo) SweepStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE payment_attempts
		   SET status='failed',
		       metadata = COALESCE(metadata, '{}'::jsonb) || '{"reason":"initiate_timeout"}'::jsonb,
		       updated_at = now()
		 WHERE status='pending' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *attemptRepo) List(ctx context.Context, limit, offset int) ([]*attempt.Attempt, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+attemptColumns+` FROM payment_attempts ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*attempt.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *attemptRepo) one(ctx context.Context, sqlText string, args ...any) (*attempt.Attempt, error) {
	a, err := scanAttempt(r.q.QueryRow(ctx, sqlText, args...))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAttempt(row pgx.Row) (*attempt.Attempt, error) {
	var a attempt.Attempt
	var kind string
	var status string
	var checkoutID, merchantID, receipt, phoneHash, description sql.NullString
	var meta []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.LocalRef, &kind, &a.ObligationID, &a.Amount, &a.Method, &status,
		&description, &phoneHash, &checkoutID, &merchantID, &receipt,
		&meta, &a.CreatedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.Wrap(engine.KindNotFound, err, "attempt not found")
	}
	if err != nil {
		return nil, err
	}

	a.ObligationKind = obligation.Kind(kind)
	a.Status = attempt.Status(status)
	a.Description = description.String
	a.PhoneHash = phoneHash.String
	a.CheckoutRequestID = checkoutID.String
	a.MerchantRequestID = merchantID.String
	a.ProviderReceipt = receipt.String
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("attempt %d metadata: %w", a.ID, err)
		}
	}
	return &a, nil
}

func marshalMeta(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal attempt metadata: %w", err)
	}
	return b, nil
}
