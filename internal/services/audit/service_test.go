package audit

import (
	"context"
	"testing"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/store/storetest"
)

type fakePuller struct {
	pages [][]daraja.PullTransaction
	calls int
}

func (f *fakePuller) PullTransactions(_ context.Context, _, _ time.Time, offset int) ([]daraja.PullTransaction, error) {
	f.calls++
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func completedAttempt(t *testing.T, attempts *storetest.Attempts, receipt string, amount int) {
	t.Helper()
	a, err := attempt.New(obligation.KindTourBooking, 7, amount, "test", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := attempts.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if _, err := attempts.Transition(context.Background(), a.ID, attempt.StatusCompleted, attempt.Patch{
		ProviderReceipt: receipt,
		CompletedAt:     &now,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAuditNoDriftForMatchedReceipts(t *testing.T) {
	attempts := storetest.NewAttempts()
	completedAttempt(t, attempts, "R1", 1200)
	completedAttempt(t, attempts, "R2", 1800)

	puller := &fakePuller{pages: [][]daraja.PullTransaction{{
		{TransactionID: "R1", Amount: 1200, BillReference: "Tour_7_1"},
		{TransactionID: "R2", Amount: 1800, BillReference: "Tour_7_2"},
	}}}
	svc := NewService(puller, attempts, time.Hour, 24*time.Hour)

	drift, err := svc.Audit(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if drift != 0 {
		t.Fatalf("drift = %d, want 0", drift)
	}
}

func TestAuditFlagsOrphanTransactions(t *testing.T) {
	attempts := storetest.NewAttempts()
	completedAttempt(t, attempts, "R1", 1200)

	puller := &fakePuller{pages: [][]daraja.PullTransaction{{
		{TransactionID: "R1", Amount: 1200, BillReference: "Tour_7_1"},
		{TransactionID: "R-ORPHAN", Amount: 500, BillReference: "unknown"},
	}}}
	svc := NewService(puller, attempts, time.Hour, 24*time.Hour)

	drift, err := svc.Audit(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if drift != 1 {
		t.Fatalf("drift = %d, want 1", drift)
	}
}

func TestAuditPagesUntilEmpty(t *testing.T) {
	attempts := storetest.NewAttempts()
	puller := &fakePuller{pages: [][]daraja.PullTransaction{
		{{TransactionID: "A"}},
		{{TransactionID: "B"}},
	}}
	svc := NewService(puller, attempts, time.Hour, 24*time.Hour)

	drift, err := svc.Audit(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if drift != 2 {
		t.Fatalf("drift = %d, want 2", drift)
	}
	if puller.calls != 3 {
		t.Fatalf("pull calls = %d, want 3 (two pages plus the empty page)", puller.calls)
	}
}
