package daraja

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestStkPasswordLaw(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 15, 30, 0, nairobi)
	password, ts := StkPassword("174379", "passkey", at)

	if ts != "20260830091530" {
		t.Fatalf("timestamp = %q, want 20260830091530", ts)
	}
	want := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + ts))
	if password != want {
		t.Fatalf("password = %q, want base64(shortcode+passkey+ts)", password)
	}
}

func TestStkPasswordUsesNairobiClock(t *testing.T) {
	// 21:00 UTC is 00:00 the next day in Nairobi (UTC+3).
	at := time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC)
	_, ts := StkPassword("174379", "pk", at)
	if ts != "20260831000000" {
		t.Fatalf("timestamp = %q, want Nairobi-local 20260831000000", ts)
	}
}

func TestStkPasswordDeterministic(t *testing.T) {
	at := time.Now()
	p1, t1 := StkPassword("600999", "k", at)
	p2, t2 := StkPassword("600999", "k", at)
	if p1 != p2 || t1 != t2 {
		t.Fatal("StkPassword must be a pure function of its inputs")
	}
}
