package event

import (
	"testing"
	"time"
)

func TestSTKExternalID(t *testing.T) {
	if got := STKExternalID("M-1", "C-1"); got != "M-1:C-1" {
		t.Fatalf("STKExternalID = %q", got)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	now := time.Now()
	if _, err := New(KindSTK, "stk_callback", "", nil, now); err == nil {
		t.Fatal("empty external id accepted")
	}
	if _, err := New("mystery", "x", "E-1", nil, now); err == nil {
		t.Fatal("unknown provider kind accepted")
	}
}

func TestMarkProcessedOnce(t *testing.T) {
	e, err := New(KindSTK, "stk_callback", "M-1:C-1", []byte(`{}`), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.MarkProcessed(time.Now(), ""); err != nil {
		t.Fatal(err)
	}
	if !e.Processed || e.ProcessedAt == nil {
		t.Fatalf("processed flags not set: %+v", e)
	}
	if err := e.MarkProcessed(time.Now(), ""); err == nil {
		t.Fatal("second MarkProcessed must fail")
	}
}
