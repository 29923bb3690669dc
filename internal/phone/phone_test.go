package phone

import (
	"testing"

	"safiripay/internal/engine"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0712345678", "254712345678", true},
		{"254712345678", "254712345678", true},
		{"+254712345678", "254712345678", true},
		{"712345678", "254712345678", true},
		{"110000000", "254110000000", true},
		{"0110000000", "254110000000", true},
		{" 0712345678 ", "254712345678", true},
		{"abc", "", false},
		{"", "", false},
		{"0712-345-678", "", false},
		{"25471234567", "", false},   // 11 digits
		{"2547123456789", "", false}, // 13 digits
		{"071234567", "", false},     // short local form
		{"+2540712345678", "", false},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("Normalize(%q): unexpected error %v", tc.in, err)
				continue
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		} else {
			if err == nil {
				t.Errorf("Normalize(%q) = %q, want error", tc.in, got)
				continue
			}
			if !engine.Is(err, engine.KindBadPhone) {
				t.Errorf("Normalize(%q): kind = %s, want %s", tc.in, engine.KindOf(err), engine.KindBadPhone)
			}
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("0711111111")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("normalize not idempotent: %q then %q", first, second)
	}
}
