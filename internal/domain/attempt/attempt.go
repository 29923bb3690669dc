package attempt

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
)

// Status is the payment-attempt lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether s is a write-once terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition encodes the allowed attempt state machine:
//
//	pending    -> processing | completed | failed | cancelled
//	processing -> completed | failed | cancelled
//	completed  -> refunded
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
			return true
		}
	case StatusProcessing:
		switch to {
		case StatusCompleted, StatusFailed, StatusCancelled:
			return true
		}
	case StatusCompleted:
		return to == StatusRefunded
	}
	return false
}

// MethodMpesa is the only wire method this engine implements.
const MethodMpesa = "mpesa"

// Attempt is one STK push: one row per initiate, never reused.
type Attempt struct {
	ID                int64
	LocalRef          string
	ObligationKind    obligation.Kind
	ObligationID      int64
	Amount            int // KES
	Method            string
	Status            Status
	Description       string
	PhoneHash         string
	CheckoutRequestID string
	MerchantRequestID string
	ProviderReceipt   string
	Metadata          map[string]any
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// Patch is the data applied alongside a status transition.
type Patch struct {
	CheckoutRequestID string
	MerchantRequestID string
	ProviderReceipt   string
	CompletedAt       *time.Time
	Metadata          map[string]any
}

// Transition validates and applies a status change in memory. The store
// layer re-runs the same check under a row lock; this keeps invalid
// transitions from ever reaching a query.
func (a *Attempt) Transition(target Status, p Patch) error {
	if a.Status == target && target.Terminal() && p.ProviderReceipt == a.ProviderReceipt {
		// Idempotent re-application of the same terminal transition.
		return nil
	}
	if !CanTransition(a.Status, target) {
		return engine.Newf(engine.KindInvalidTransition,
			"attempt %s: %s -> %s not allowed", a.LocalRef, a.Status, target)
	}
	a.Status = target
	if p.CheckoutRequestID != "" {
		a.CheckoutRequestID = p.CheckoutRequestID
	}
	if p.MerchantRequestID != "" {
		a.MerchantRequestID = p.MerchantRequestID
	}
	if p.ProviderReceipt != "" {
		a.ProviderReceipt = p.ProviderReceipt
	}
	if p.CompletedAt != nil {
		a.CompletedAt = p.CompletedAt
	}
	if len(p.Metadata) > 0 {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			a.Metadata[k] = v
		}
	}
	return nil
}

// localRefPrefix tags engine-issued references.
const localRefPrefix = "PFX"

// NewLocalRef generates a globally unique local reference of the form
// PFX<yyyymmdd><8-hex>.
func NewLocalRef(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("local ref entropy: %w", err)
	}
	return localRefPrefix + now.Format("20060102") + hex.EncodeToString(b), nil
}

// New builds a pending attempt for the given obligation.
func New(kind obligation.Kind, obligationID int64, amount int, description string, now time.Time) (*Attempt, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid obligation kind %q", kind)
	}
	if obligationID <= 0 {
		return nil, fmt.Errorf("invalid obligation id %d", obligationID)
	}
	if amount <= 0 {
		return nil, engine.Newf(engine.KindBadAmount, "amount must be positive, got %d", amount)
	}
	ref, err := NewLocalRef(now)
	if err != nil {
		return nil, err
	}
	return &Attempt{
		LocalRef:       ref,
		ObligationKind: kind,
		ObligationID:   obligationID,
		Amount:         amount,
		Method:         MethodMpesa,
		Status:         StatusPending,
		Description:    description,
		CreatedAt:      now,
	}, nil
}
