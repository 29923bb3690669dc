package event

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKind distinguishes the callback families Daraja can deliver.
type ProviderKind string

const (
	KindSTK         ProviderKind = "stk"
	KindBalance     ProviderKind = "balance"
	KindPullTimeout ProviderKind = "pull-timeout"
)

// Event is one webhook delivery from the provider. ExternalID is unique;
// Processed flips false -> true exactly once and the row is then immutable.
// Operator replay is the one sanctioned exception: it reopens the flag and
// bumps ReplayCount so the reprocessing leaves a trace.
type Event struct {
	ID          int64
	Kind        ProviderKind
	EventType   string
	ExternalID  string
	RawJSON     []byte
	ReceivedAt  time.Time
	Processed   bool
	ProcessedAt *time.Time
	ReplayCount int
	Error       string
}

// STKExternalID derives the dedupe key for an STK callback. Daraja does not
// issue a stable event ID for these, so the correlation pair stands in.
func STKExternalID(merchantRequestID, checkoutRequestID string) string {
	return merchantRequestID + ":" + checkoutRequestID
}

// New builds an unprocessed event record.
func New(kind ProviderKind, eventType, externalID string, rawJSON []byte, now time.Time) (*Event, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("event external id is required")
	}
	switch kind {
	case KindSTK, KindBalance, KindPullTimeout:
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
	return &Event{
		Kind:       kind,
		EventType:  eventType,
		ExternalID: externalID,
		RawJSON:    rawJSON,
		ReceivedAt: now,
	}, nil
}

// MarkProcessed flips the processed flag. A second call is rejected so the
// immutability invariant surfaces as an error instead of a silent rewrite.
func (e *Event) MarkProcessed(now time.Time, procErr string) error {
	if e.Processed {
		return fmt.Errorf("event %s already processed", e.ExternalID)
	}
	e.Processed = true
	e.ProcessedAt = &now
	e.Error = procErr
	return nil
}
