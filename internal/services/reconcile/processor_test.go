package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/event"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/services/settlement"
	"safiripay/internal/store/storetest"
)

func newTestService(store *storetest.Store) *Service {
	return NewService(store, store.A, store.E, settlement.NewService())
}

func seedProcessingAttempt(t *testing.T, store *storetest.Store, kind obligation.Kind,
	obligationID int64, amount int, checkoutID string) *attempt.Attempt {
	t.Helper()
	a, err := attempt.New(kind, obligationID, amount, "test", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.A.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if checkoutID == "" {
		return a
	}
	done, err := store.A.Transition(context.Background(), a.ID, attempt.StatusProcessing, attempt.Patch{
		CheckoutRequestID: checkoutID,
		MerchantRequestID: "M-" + checkoutID,
	})
	if err != nil {
		t.Fatal(err)
	}
	return done
}

func successCallback(merchantID, checkoutID string, amount int, receipt, accountRef string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":%q,"CheckoutRequestID":%q,
		"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":%d},
			{"Name":"MpesaReceiptNumber","Value":%q},
			{"Name":"TransactionDate","Value":20260830121500},
			{"Name":"PhoneNumber","Value":254711111111},
			{"Name":"AccountReference","Value":%q}
		]}}}}`, merchantID, checkoutID, amount, receipt, accountRef))
}

func failureCallback(merchantID, checkoutID string, resultCode int, desc string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":%q,"CheckoutRequestID":%q,
		"ResultCode":%d,"ResultDesc":%q}}}`, merchantID, checkoutID, resultCode, desc))
}

func TestCallbackCompletesAttemptAndSettles(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	a := seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "C-1")
	svc := newTestService(store)

	raw := successCallback("M-C-1", "C-1", 1000, "R1", "Ver_42_1")
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatalf("ProcessSTKCallback: %v", err)
	}

	got, err := store.A.ByID(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != attempt.StatusCompleted {
		t.Fatalf("attempt status = %s, want completed", got.Status)
	}
	if got.ProviderReceipt != "R1" {
		t.Fatalf("receipt = %q, want R1", got.ProviderReceipt)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	o, err := store.O.Load(context.Background(), obligation.KindVerification, 42)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != obligation.StatusPaymentCompleted {
		t.Fatalf("obligation status = %s, want payment_completed", o.Status)
	}

	ev, err := store.E.ByExternalID(context.Background(), event.STKExternalID("M-C-1", "C-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Processed {
		t.Fatal("event not marked processed")
	}
}

func TestDuplicateCallbackIsNoOp(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	a := seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "C-1")
	svc := newTestService(store)

	raw := successCallback("M-C-1", "C-1", 1000, "R1", "Ver_42_1")
	for i := 0; i < 3; i++ {
		if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	got, _ := store.A.ByID(context.Background(), a.ID)
	if got.Status != attempt.StatusCompleted || got.ProviderReceipt != "R1" {
		t.Fatalf("attempt changed on replay: %s %q", got.Status, got.ProviderReceipt)
	}
	o, _ := store.O.Load(context.Background(), obligation.KindVerification, 42)
	if o.SettledAmount != 1000 {
		t.Fatalf("settled = %d, replay must not double-credit", o.SettledAmount)
	}
}

func TestConcurrentCallbacksNeverOverpay(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindTourBooking, ID: 7, TourID: 3,
		TotalAmount: 1000, Status: obligation.StatusPending,
		Participants: 1, MaxParticipants: 10, CurrentParticipants: 0,
	})
	// Two full-amount pushes in flight at once; each was legal against the
	// remaining balance when initiated, and both succeed at the provider.
	first := seedProcessingAttempt(t, store, obligation.KindTourBooking, 7, 1000, "C-1")
	second := seedProcessingAttempt(t, store, obligation.KindTourBooking, 7, 1000, "C-2")
	svc := newTestService(store)

	if err := svc.ProcessSTKCallback(context.Background(),
		successCallback("M-C-1", "C-1", 1000, "R1", fmt.Sprintf("Tour_7_%d", first.ID))); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if err := svc.ProcessSTKCallback(context.Background(),
		successCallback("M-C-2", "C-2", 1000, "R2", fmt.Sprintf("Tour_7_%d", second.ID))); err != nil {
		t.Fatalf("second callback: %v", err)
	}

	o, err := store.O.Load(context.Background(), obligation.KindTourBooking, 7)
	if err != nil {
		t.Fatal(err)
	}
	if o.SettledAmount > o.TotalAmount {
		t.Fatalf("settled = %d exceeds total %d", o.SettledAmount, o.TotalAmount)
	}
	if o.Status != obligation.StatusConfirmed || o.CurrentParticipants != 1 {
		t.Fatalf("obligation = %s participants=%d, want confirmed with one reservation",
			o.Status, o.CurrentParticipants)
	}
	got, _ := store.A.ByID(context.Background(), second.ID)
	if got.Status != attempt.StatusRefunded || got.Metadata["reason"] != "overpayment" {
		t.Fatalf("second attempt = %s %v, want refunded with overpayment reason",
			got.Status, got.Metadata)
	}
}

func TestCallbackBeforeSyncResponseUsesAccountRefFallback(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	// Attempt exists but the orchestrator has not stored C-9 yet.
	a := seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "")
	svc := newTestService(store)

	raw := successCallback("M-9", "C-9", 1000, "R9",
		fmt.Sprintf("Ver_42_%d", a.ID))
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatalf("ProcessSTKCallback: %v", err)
	}

	got, err := store.A.ByID(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != attempt.StatusCompleted || got.ProviderReceipt != "R9" {
		t.Fatalf("fallback lookup failed: status=%s receipt=%q", got.Status, got.ProviderReceipt)
	}
}

func TestCallbackAmountMismatchFailsAttempt(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	a := seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "C-1")
	svc := newTestService(store)

	raw := successCallback("M-C-1", "C-1", 900, "R1", "Ver_42_1")
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatalf("ProcessSTKCallback: %v", err)
	}

	got, _ := store.A.ByID(context.Background(), a.ID)
	if got.Status != attempt.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Metadata["mismatch"] != "expected=1000 received=900" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
	o, _ := store.O.Load(context.Background(), obligation.KindVerification, 42)
	if o.Status != obligation.StatusPending || o.SettledAmount != 0 {
		t.Fatalf("obligation must be untouched: %s %d", o.Status, o.SettledAmount)
	}
}

func TestCallbackFailureMarksAttemptFailed(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	a := seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "C-1")
	svc := newTestService(store)

	raw := failureCallback("M-C-1", "C-1", 1032, "Request cancelled by user")
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatalf("ProcessSTKCallback: %v", err)
	}

	got, _ := store.A.ByID(context.Background(), a.ID)
	if got.Status != attempt.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Metadata["result_code"] != "1032" {
		t.Fatalf("metadata = %v, want result_code 1032", got.Metadata)
	}
}

func TestUnparseableCallback(t *testing.T) {
	svc := newTestService(storetest.NewStore())
	err := svc.ProcessSTKCallback(context.Background(), []byte(`{"Body":{}}`))
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("err = %v, want ErrUnparseable", err)
	}
	err = svc.ProcessSTKCallback(context.Background(), []byte(`not json`))
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("err = %v, want ErrUnparseable", err)
	}
}

func TestCallbackForUnknownAttemptIsRecorded(t *testing.T) {
	store := storetest.NewStore()
	svc := newTestService(store)

	raw := failureCallback("M-X", "C-X", 1037, "DS timeout")
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatalf("ProcessSTKCallback: %v", err)
	}
	ev, err := store.E.ByExternalID(context.Background(), event.STKExternalID("M-X", "C-X"))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Processed || ev.Error == "" {
		t.Fatalf("event processed=%v error=%q, want processed with error note", ev.Processed, ev.Error)
	}
}

func TestReplayReappliesWithoutSideEffects(t *testing.T) {
	store := storetest.NewStore()
	_ = store.O.Commit(context.Background(), &obligation.Obligation{
		Kind: obligation.KindVerification, ID: 42,
		TotalAmount: 1000, Status: obligation.StatusPending,
		SubjectKind: obligation.SubjectPlace, SubjectID: 9, DurationYears: 1,
	})
	seedProcessingAttempt(t, store, obligation.KindVerification, 42, 1000, "C-1")
	svc := newTestService(store)

	raw := successCallback("M-C-1", "C-1", 1000, "R1", "Ver_42_1")
	if err := svc.ProcessSTKCallback(context.Background(), raw); err != nil {
		t.Fatal(err)
	}
	ev, err := store.E.ByExternalID(context.Background(), event.STKExternalID("M-C-1", "C-1"))
	if err != nil {
		t.Fatal(err)
	}

	n, err := svc.Replay(context.Background(), []int64{ev.ID})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed = %d, want 1", n)
	}
	o, _ := store.O.Load(context.Background(), obligation.KindVerification, 42)
	if o.SettledAmount != 1000 {
		t.Fatalf("settled = %d, replay must not double-credit", o.SettledAmount)
	}
	ev, _ = store.E.ByExternalID(context.Background(), event.STKExternalID("M-C-1", "C-1"))
	if !ev.Processed {
		t.Fatal("event must be processed again after replay")
	}
	if ev.ReplayCount != 1 {
		t.Fatalf("replay count = %d, want 1", ev.ReplayCount)
	}
}
