package daraja

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// STKCallback is the asynchronous outcome of one push, delivered to the
// configured callback URL as Body.stkCallback.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem carries loosely typed Name/Value pairs; sandbox and
// production disagree on whether numbers arrive as numbers or strings.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type stkEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// ParseSTKCallback decodes a callback envelope. A payload without any
// correlation ID is unusable and rejected.
func ParseSTKCallback(raw []byte) (*STKCallback, error) {
	var env stkEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bad stk callback json: %w", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" && cb.MerchantRequestID == "" {
		return nil, fmt.Errorf("stk callback missing correlation ids")
	}
	return &cb, nil
}

// Success reports whether the customer completed the payment.
func (cb *STKCallback) Success() bool { return cb.ResultCode == 0 }

func (cb *STKCallback) item(name string) (any, bool) {
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Amount extracts the paid amount in whole KES, tolerating the number and
// string serializations seen in the wild.
func (cb *STKCallback) Amount() int {
	v, ok := cb.item("Amount")
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int(f)
		}
	case int:
		return n
	}
	return 0
}

// Receipt extracts the MpesaReceiptNumber; empty on failure callbacks.
func (cb *STKCallback) Receipt() string {
	return cb.stringItem("MpesaReceiptNumber")
}

// PhoneNumber extracts the payer MSISDN.
func (cb *STKCallback) PhoneNumber() string {
	return cb.stringItem("PhoneNumber")
}

// AccountReference extracts the echoed account reference, when present.
func (cb *STKCallback) AccountReference() string {
	return cb.stringItem("AccountReference")
}

// TransactionDate extracts the provider-side completion stamp.
func (cb *STKCallback) TransactionDate() string {
	return cb.stringItem("TransactionDate")
}

func (cb *STKCallback) stringItem(name string) string {
	v, ok := cb.item(name)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}
