package postgres

import (
	"context"

	"safiripay/internal/store/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories over one pool and opens transactions
// spanning them.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Attempts() repositories.AttemptRepository {
	return &attemptRepo{q: s.db, pool: s.db}
}

func (s *Store) Obligations() repositories.ObligationRepository {
	return &obligationRepo{q: s.db}
}

func (s *Store) Events() repositories.EventRepository {
	return &eventRepo{q: s.db}
}

// Begin opens a short transaction. Callers must Commit or Rollback; every
// status transition runs in its own transaction, none span HTTP calls.
func (s *Store) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &transaction{tx: tx}, nil
}

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *transaction) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (t *transaction) Attempts() repositories.AttemptRepository {
	return &attemptRepo{q: t.tx}
}

func (t *transaction) Obligations() repositories.ObligationRepository {
	return &obligationRepo{q: t.tx, lock: true}
}

func (t *transaction) Events() repositories.EventRepository {
	return &eventRepo{q: t.tx}
}
