package phone

import (
	"strings"

	"safiripay/internal/engine"
)

// Normalize canonicalizes a Kenyan MSISDN to the 12-digit 2547XXXXXXXX /
// 2541XXXXXXXX form Daraja expects. Rules apply in order, first match wins:
//
//	0712345678   -> 254712345678
//	254712345678 -> unchanged
//	+254712345678-> 254712345678
//	712345678    -> 254712345678
//
// Anything else is rejected. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return "", engine.New(engine.KindBadPhone, "empty phone number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", engine.Newf(engine.KindBadPhone, "phone contains non-digit characters: %q", raw)
		}
	}

	switch {
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case strings.HasPrefix(s, "254") && len(s) == 12:
		// already canonical
	case (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")) && len(s) == 9:
		s = "254" + s
	default:
		return "", engine.Newf(engine.KindBadPhone, "unrecognized phone format: %q", raw)
	}
	return s, nil
}
