package postgres

import (
	"context"
	"database/sql"
	"errors"

	"safiripay/internal/domain/event"
	"safiripay/internal/engine"

	"github.com/jackc/pgx/v5"
)

type eventRepo struct {
	q dbtx
}

const eventColumns = `id, kind, event_type, external_id, raw_json, received_at,
	processed, processed_at, replay_count, error`

// Upsert inserts the event or, on an external_id collision, returns the
// existing row untouched. The returned row tells the caller whether this
// delivery is a duplicate (Processed already true, or ID differing from a
// fresh insert's expectation).
func (r *eventRepo) Upsert(ctx context.Context, e *event.Event) (*event.Event, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO provider_events (kind, event_type, external_id, raw_json, received_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING `+eventColumns,
		string(e.Kind), e.EventType, e.ExternalID, e.RawJSON, e.ReceivedAt)
	return scanEvent(row)
}

func (r *eventRepo) ByExternalID(ctx context.Context, externalID string) (*event.Event, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM provider_events WHERE external_id=$1`, externalID)
	return scanEvent(row)
}

// MarkProcessed flips processed exactly once; a row already processed is
// left untouched and reported as an invalid transition.
func (r *eventRepo) MarkProcessed(ctx context.Context, id int64, procErr string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE provider_events
		   SET processed=true, processed_at=now(), error=NULLIF($2,'')
		 WHERE id=$1 AND processed=false`,
		id, procErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.Newf(engine.KindInvalidTransition, "event %d already processed", id)
	}
	return nil
}

// Requeue reopens a processed event so the replay endpoint can run it
// through reconciliation again. The replay counter records each reopening,
// since the row otherwise never changes after processing.
func (r *eventRepo) Requeue(ctx context.Context, id int64) (*event.Event, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE provider_events
		   SET processed=false, processed_at=NULL, error=NULL,
		       replay_count=replay_count+1
		 WHERE id=$1
		RETURNING `+eventColumns, id)
	return scanEvent(row)
}

func (r *eventRepo) List(ctx context.Context, onlyUnprocessed bool, limit, offset int) ([]*event.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM provider_events`
	if onlyUnprocessed {
		q += ` WHERE processed=false`
	}
	q += ` ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := r.q.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*event.Event, error) {
	var e event.Event
	var kind string
	var procErr sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(&e.ID, &kind, &e.EventType, &e.ExternalID, &e.RawJSON,
		&e.ReceivedAt, &e.Processed, &processedAt, &e.ReplayCount, &procErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.Wrap(engine.KindNotFound, err, "event not found")
	}
	if err != nil {
		return nil, err
	}
	e.Kind = event.ProviderKind(kind)
	e.Error = procErr.String
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}
