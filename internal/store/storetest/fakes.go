// Package storetest provides in-memory repository fakes for service tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/event"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
	"safiripay/internal/store/repositories"
)

// Attempts is an in-memory AttemptRepository.
type Attempts struct {
	mu   sync.Mutex
	seq  int64
	rows map[int64]*attempt.Attempt
}

func NewAttempts() *Attempts {
	return &Attempts{rows: make(map[int64]*attempt.Attempt)}
}

func (f *Attempts) Create(_ context.Context, a *attempt.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a.ID = f.seq
	cp := *a
	f.rows[a.ID] = &cp
	return nil
}

func (f *Attempts) ByID(_ context.Context, id int64) (*attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, engine.New(engine.KindNotFound, "attempt not found")
	}
	cp := *a
	return &cp, nil
}

func (f *Attempts) ByLocalRef(_ context.Context, ref string) (*attempt.Attempt, error) {
	return f.find(func(a *attempt.Attempt) bool { return a.LocalRef == ref })
}

func (f *Attempts) ByCheckoutID(_ context.Context, id string) (*attempt.Attempt, error) {
	return f.find(func(a *attempt.Attempt) bool { return id != "" && a.CheckoutRequestID == id })
}

func (f *Attempts) ByReceipt(_ context.Context, receipt string) (*attempt.Attempt, error) {
	return f.find(func(a *attempt.Attempt) bool { return receipt != "" && a.ProviderReceipt == receipt })
}

func (f *Attempts) find(match func(*attempt.Attempt) bool) (*attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, engine.New(engine.KindNotFound, "attempt not found")
}

func (f *Attempts) Transition(_ context.Context, id int64, target attempt.Status, patch attempt.Patch) (*attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, engine.New(engine.KindNotFound, "attempt not found")
	}
	if err := a.Transition(target, patch); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (f *Attempts) PendingAttempt(_ context.Context, kind obligation.Kind, obligationID int64) (*attempt.Attempt, error) {
	return f.find(func(a *attempt.Attempt) bool {
		return a.ObligationKind == kind && a.ObligationID == obligationID &&
			(a.Status == attempt.StatusPending || a.Status == attempt.StatusProcessing)
	})
}

func (f *Attempts) SumCompleted(_ context.Context, kind obligation.Kind, obligationID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, a := range f.rows {
		if a.ObligationKind == kind && a.ObligationID == obligationID && a.Status == attempt.StatusCompleted {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (f *Attempts) SweepStalePending(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.rows {
		if a.Status == attempt.StatusPending && a.CreatedAt.Before(cutoff) {
			_ = a.Transition(attempt.StatusFailed, attempt.Patch{
				Metadata: map[string]any{"reason": "initiate_timeout"},
			})
			n++
		}
	}
	return n, nil
}

func (f *Attempts) List(_ context.Context, limit, offset int) ([]*attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*attempt.Attempt, 0, len(f.rows))
	for _, a := range f.rows {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// Count reports the number of stored rows.
func (f *Attempts) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// Obligations is an in-memory ObligationRepository.
type Obligations struct {
	mu   sync.Mutex
	rows map[obligation.Kind]map[int64]*obligation.Obligation
}

func NewObligations(seed ...*obligation.Obligation) *Obligations {
	f := &Obligations{rows: make(map[obligation.Kind]map[int64]*obligation.Obligation)}
	for _, o := range seed {
		cp := *o
		_ = f.Commit(context.Background(), &cp)
	}
	return f
}

func (f *Obligations) Load(_ context.Context, kind obligation.Kind, id int64) (*obligation.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.rows[kind][id]
	if !ok {
		return nil, engine.Newf(engine.KindNotFound, "%s %d not found", kind, id)
	}
	cp := *o
	return &cp, nil
}

func (f *Obligations) Commit(_ context.Context, o *obligation.Obligation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[o.Kind] == nil {
		f.rows[o.Kind] = make(map[int64]*obligation.Obligation)
	}
	cp := *o
	f.rows[o.Kind][o.ID] = &cp
	return nil
}

// Events is an in-memory EventRepository.
type Events struct {
	mu    sync.Mutex
	seq   int64
	rows  map[int64]*event.Event
	byExt map[string]int64
}

func NewEvents() *Events {
	return &Events{rows: make(map[int64]*event.Event), byExt: make(map[string]int64)}
}

func (f *Events) Upsert(_ context.Context, e *event.Event) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byExt[e.ExternalID]; ok {
		cp := *f.rows[id]
		return &cp, nil
	}
	f.seq++
	cp := *e
	cp.ID = f.seq
	f.rows[cp.ID] = &cp
	f.byExt[cp.ExternalID] = cp.ID
	out := cp
	return &out, nil
}

func (f *Events) ByExternalID(_ context.Context, externalID string) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byExt[externalID]
	if !ok {
		return nil, engine.New(engine.KindNotFound, "event not found")
	}
	cp := *f.rows[id]
	return &cp, nil
}

func (f *Events) MarkProcessed(_ context.Context, id int64, procErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return engine.New(engine.KindNotFound, "event not found")
	}
	if e.Processed {
		return engine.Newf(engine.KindInvalidTransition, "event %d already processed", id)
	}
	now := time.Now()
	e.Processed = true
	e.ProcessedAt = &now
	e.Error = procErr
	return nil
}

func (f *Events) Requeue(_ context.Context, id int64) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return nil, engine.New(engine.KindNotFound, "event not found")
	}
	e.Processed = false
	e.ProcessedAt = nil
	e.Error = ""
	e.ReplayCount++
	cp := *e
	return &cp, nil
}

func (f *Events) List(_ context.Context, onlyUnprocessed bool, limit, offset int) ([]*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*event.Event, 0, len(f.rows))
	for _, e := range f.rows {
		if onlyUnprocessed && e.Processed {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Store bundles the fakes behind the UnitOfWork contract. Transactions are
// pass-through: there is no rollback, which the service tests do not need.
type Store struct {
	A *Attempts
	O *Obligations
	E *Events
}

func NewStore() *Store {
	return &Store{A: NewAttempts(), O: NewObligations(), E: NewEvents()}
}

func (s *Store) Begin(context.Context) (repositories.Transaction, error) {
	return &tx{s: s}, nil
}

type tx struct{ s *Store }

func (t *tx) Commit(context.Context) error                      { return nil }
func (t *tx) Rollback(context.Context) error                    { return nil }
func (t *tx) Attempts() repositories.AttemptRepository          { return t.s.A }
func (t *tx) Obligations() repositories.ObligationRepository    { return t.s.O }
func (t *tx) Events() repositories.EventRepository              { return t.s.E }
