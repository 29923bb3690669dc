package obligation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the obligation variants a payment can settle.
type Kind string

const (
	KindTourBooking  Kind = "tour_booking"
	KindEventBooking Kind = "event_booking"
	KindVerification Kind = "verification"
	KindSubscription Kind = "subscription"
)

// Prefix is the short tag embedded in Daraja AccountReference strings.
func (k Kind) Prefix() string {
	switch k {
	case KindTourBooking:
		return "Tour"
	case KindEventBooking:
		return "Event"
	case KindVerification:
		return "Ver"
	case KindSubscription:
		return "Sub"
	}
	return ""
}

// KindFromPrefix resolves an AccountReference tag back to a kind.
func KindFromPrefix(p string) (Kind, bool) {
	switch p {
	case "Tour":
		return KindTourBooking, true
	case "Event":
		return KindEventBooking, true
	case "Ver":
		return KindVerification, true
	case "Sub":
		return KindSubscription, true
	}
	return "", false
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	_, ok := KindFromPrefix(k.Prefix())
	return ok
}

// Status is the obligation lifecycle state. Transitions are monotone:
// pending -> confirmed/active/payment_completed -> completed, or
// pending -> cancelled when nothing has been paid.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPaymentPending   Status = "payment_pending"
	StatusConfirmed        Status = "confirmed"
	StatusActive           Status = "active"
	StatusPaymentCompleted Status = "payment_completed"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// SubjectKind identifies what a verification request verifies.
type SubjectKind string

const (
	SubjectUser   SubjectKind = "user"
	SubjectPlace  SubjectKind = "place"
	SubjectAgency SubjectKind = "agency"
)

// VerificationFeeKES is the flat yearly verification fee.
const VerificationFeeKES = 1000

// VerificationFee computes the fee for a verification obligation.
func VerificationFee(durationYears int) int {
	return durationYears * VerificationFeeKES
}

// Obligation is a tagged variant over the four obligation kinds. Common
// fields always apply; kind-specific fields are meaningful only for the
// matching Kind.
type Obligation struct {
	Kind          Kind
	ID            int64
	UserID        int64
	TotalAmount   int // KES
	SettledAmount int // KES, sum of completed attempts
	Status        Status
	CreatedAt     time.Time

	// Tour bookings
	TourID              int64
	Participants        int
	MaxParticipants     int
	CurrentParticipants int

	// Event bookings
	EventID int64

	// Verification requests
	SubjectKind   SubjectKind
	SubjectID     int64
	DurationYears int

	// Subscriptions
	PlanID       int64
	PlanDuration int // days
	PlanFeatures []string
	Start        time.Time
	End          time.Time
}

// Remaining is the unpaid balance of the obligation.
func (o *Obligation) Remaining() int {
	rem := o.TotalAmount - o.SettledAmount
	if rem < 0 {
		return 0
	}
	return rem
}

// FullyPaid reports whether completed attempts cover the full amount.
func (o *Obligation) FullyPaid() bool {
	return o.SettledAmount >= o.TotalAmount
}

// ProgressPct is the settled share, capped at 100.
func (o *Obligation) ProgressPct() int {
	if o.TotalAmount <= 0 {
		return 0
	}
	pct := o.SettledAmount * 100 / o.TotalAmount
	if pct > 100 {
		return 100
	}
	return pct
}

// AcceptsPayment reports whether a further payment attempt may be created.
func (o *Obligation) AcceptsPayment() bool {
	switch o.Status {
	case StatusPending, StatusPaymentPending:
		return !o.FullyPaid()
	case StatusConfirmed:
		// Tour bookings stay payable while a balance remains.
		return o.Kind == KindTourBooking && !o.FullyPaid()
	}
	return false
}

// SettledStatus is the state an obligation moves to once fully paid.
func (o *Obligation) SettledStatus() Status {
	switch o.Kind {
	case KindVerification:
		return StatusPaymentCompleted
	case KindSubscription:
		return StatusActive
	default:
		return StatusConfirmed
	}
}

// CanTransition enforces the monotone obligation state machine.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending, StatusPaymentPending:
		switch to {
		case StatusConfirmed, StatusActive, StatusPaymentCompleted, StatusCancelled:
			return true
		}
	case StatusConfirmed, StatusActive:
		return to == StatusCompleted
	}
	return false
}

// Cancel moves the obligation to cancelled; only allowed before any money
// has been collected.
func (o *Obligation) Cancel() error {
	if o.SettledAmount > 0 {
		return fmt.Errorf("obligation %s/%d has settled funds, cannot cancel", o.Kind, o.ID)
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return fmt.Errorf("obligation %s/%d in status %s cannot be cancelled", o.Kind, o.ID, o.Status)
	}
	o.Status = StatusCancelled
	return nil
}

// AccountRef encodes the obligation/attempt pair carried in the Daraja
// AccountReference field: "<KindPrefix>_<obligationID>_<attemptID>". The
// reconciler depends on this as a fallback when the CheckoutRequestID has
// not yet been persisted by the orchestrator.
func AccountRef(kind Kind, obligationID, attemptID int64) string {
	return fmt.Sprintf("%s_%d_%d", kind.Prefix(), obligationID, attemptID)
}

// ParseAccountRef is the total inverse of AccountRef.
func ParseAccountRef(ref string) (Kind, int64, int64, error) {
	parts := strings.Split(strings.TrimSpace(ref), "_")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed account reference %q", ref)
	}
	kind, ok := KindFromPrefix(parts[0])
	if !ok {
		return "", 0, 0, fmt.Errorf("unknown obligation prefix %q", parts[0])
	}
	obligationID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("bad obligation id in %q: %w", ref, err)
	}
	attemptID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("bad attempt id in %q: %w", ref, err)
	}
	return kind, obligationID, attemptID, nil
}
