package daraja

import "testing"

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "M-1",
      "CheckoutRequestID": "C-1",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1000.0},
          {"Name": "MpesaReceiptNumber", "Value": "R1"},
          {"Name": "TransactionDate", "Value": 20260830091530},
          {"Name": "PhoneNumber", "Value": 254711111111},
          {"Name": "AccountReference", "Value": "Ver_42_777"}
        ]
      }
    }
  }
}`

const failureCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "M-2",
      "CheckoutRequestID": "C-2",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestParseSTKCallbackSuccess(t *testing.T) {
	cb, err := ParseSTKCallback([]byte(successCallback))
	if err != nil {
		t.Fatal(err)
	}
	if !cb.Success() {
		t.Fatal("ResultCode 0 should be success")
	}
	if cb.Amount() != 1000 {
		t.Fatalf("Amount = %d, want 1000", cb.Amount())
	}
	if cb.Receipt() != "R1" {
		t.Fatalf("Receipt = %q, want R1", cb.Receipt())
	}
	if cb.PhoneNumber() != "254711111111" {
		t.Fatalf("PhoneNumber = %q", cb.PhoneNumber())
	}
	if cb.AccountReference() != "Ver_42_777" {
		t.Fatalf("AccountReference = %q", cb.AccountReference())
	}
}

func TestParseSTKCallbackFailure(t *testing.T) {
	cb, err := ParseSTKCallback([]byte(failureCallback))
	if err != nil {
		t.Fatal(err)
	}
	if cb.Success() {
		t.Fatal("ResultCode 1032 should not be success")
	}
	if cb.Receipt() != "" {
		t.Fatalf("failure callback has no receipt, got %q", cb.Receipt())
	}
	if cb.Amount() != 0 {
		t.Fatalf("failure callback has no amount, got %d", cb.Amount())
	}
}

func TestParseSTKCallbackStringifiedNumbers(t *testing.T) {
	// Some sandboxes serialize Amount as a string.
	raw := `{"Body":{"stkCallback":{"CheckoutRequestID":"C-3","ResultCode":0,
	  "CallbackMetadata":{"Item":[{"Name":"Amount","Value":"1500.00"}]}}}}`
	cb, err := ParseSTKCallback([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if cb.Amount() != 1500 {
		t.Fatalf("Amount = %d, want 1500", cb.Amount())
	}
}

func TestParseSTKCallbackRejects(t *testing.T) {
	if _, err := ParseSTKCallback([]byte(`not json`)); err == nil {
		t.Fatal("non-JSON accepted")
	}
	if _, err := ParseSTKCallback([]byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`)); err == nil {
		t.Fatal("callback without correlation ids accepted")
	}
}
