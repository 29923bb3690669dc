package attempt

import (
	"regexp"
	"testing"
	"time"

	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
)

var localRefPattern = regexp.MustCompile(`^PFX\d{8}[0-9a-f]{8}$`)

func TestNewLocalRefFormat(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ref, err := NewLocalRef(now)
	if err != nil {
		t.Fatal(err)
	}
	if !localRefPattern.MatchString(ref) {
		t.Fatalf("local ref %q does not match PFX<yyyymmdd><8-hex>", ref)
	}
	if ref[3:11] != "20260830" {
		t.Fatalf("local ref date part = %q, want 20260830", ref[3:11])
	}
}

func TestNewLocalRefUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ref, err := NewLocalRef(now)
		if err != nil {
			t.Fatal(err)
		}
		if seen[ref] {
			t.Fatalf("duplicate local ref %q", ref)
		}
		seen[ref] = true
	}
}

func TestNewValidation(t *testing.T) {
	now := time.Now()
	if _, err := New(obligation.KindTourBooking, 7, 0, "x", now); !engine.Is(err, engine.KindBadAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := New("bogus", 7, 100, "x", now); err == nil {
		t.Fatal("bogus kind accepted")
	}
	if _, err := New(obligation.KindTourBooking, 0, 100, "x", now); err == nil {
		t.Fatal("zero obligation id accepted")
	}
	a, err := New(obligation.KindTourBooking, 7, 100, "deposit", now)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusPending || a.Method != MethodMpesa {
		t.Fatalf("fresh attempt = %+v", a)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusCompleted, StatusRefunded},
	}
	for _, p := range allowed {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("CanTransition(%s, %s) = false, want true", p[0], p[1])
		}
	}
	denied := [][2]Status{
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusCompleted},
		{StatusCancelled, StatusProcessing},
		{StatusRefunded, StatusCompleted},
		{StatusProcessing, StatusPending},
		{StatusProcessing, StatusRefunded},
	}
	for _, p := range denied {
		if CanTransition(p[0], p[1]) {
			t.Errorf("CanTransition(%s, %s) = true, want false", p[0], p[1])
		}
	}
}

func TestTransitionAppliesPatch(t *testing.T) {
	now := time.Now()
	a, err := New(obligation.KindVerification, 42, 1000, "verification fee", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Transition(StatusProcessing, Patch{
		CheckoutRequestID: "C-1",
		MerchantRequestID: "M-1",
	}); err != nil {
		t.Fatal(err)
	}
	done := now.Add(time.Minute)
	if err := a.Transition(StatusCompleted, Patch{
		ProviderReceipt: "R1",
		CompletedAt:     &done,
		Metadata:        map[string]any{"result_desc": "Success"},
	}); err != nil {
		t.Fatal(err)
	}
	if a.ProviderReceipt != "R1" || a.CompletedAt == nil || a.Metadata["result_desc"] != "Success" {
		t.Fatalf("patch not applied: %+v", a)
	}
}

func TestTransitionIdempotentOnSameTerminal(t *testing.T) {
	a := &Attempt{LocalRef: "PFX20260830aabbccdd", Status: StatusCompleted, ProviderReceipt: "R1"}
	if err := a.Transition(StatusCompleted, Patch{ProviderReceipt: "R1"}); err != nil {
		t.Fatalf("idempotent re-application should be a no-op, got %v", err)
	}
	if err := a.Transition(StatusCompleted, Patch{ProviderReceipt: "R2"}); err == nil {
		t.Fatal("terminal state must be write-once for a different receipt")
	}
}

func TestTerminalStatesWriteOnce(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusCancelled, StatusRefunded} {
		a := &Attempt{LocalRef: "x", Status: s}
		if err := a.Transition(StatusCompleted, Patch{}); !engine.Is(err, engine.KindInvalidTransition) {
			t.Errorf("%s -> completed: got %v, want invalid transition", s, err)
		}
	}
}
