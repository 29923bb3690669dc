package daraja

import (
	"encoding/base64"
	"time"
)

// timestampLayout is the YYYYMMDDHHMMSS form Daraja expects.
const timestampLayout = "20060102150405"

// nairobi is loaded eagerly: the STK password is only valid when stamped in
// provider-local time, never the host zone.
var nairobi = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*3600)
	}
	return loc
}()

// StkPassword derives the per-request STK password: the base64 of
// shortcode+passkey+timestamp, with the timestamp rendered in Nairobi time.
// Pure function of its inputs.
func StkPassword(shortcode, passkey string, at time.Time) (password, timestamp string) {
	timestamp = at.In(nairobi).Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
	return password, timestamp
}
