package daraja

import (
	"context"
	"strconv"
	"time"
)

// STKPushRequest is the caller-facing shape for one push. Phone must
// already be in canonical 2547XXXXXXXX form.
type STKPushRequest struct {
	Amount           int
	Phone            string
	AccountReference string
	Description      string
}

// STKPushResponse is Daraja's synchronous acknowledgement.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether the provider accepted the push for processing.
func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

// STKPush posts a CustomerPayBillOnline push. A non-nil response with
// Accepted()==false is a business rejection, not a transport failure; the
// caller decides how to record it.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	pc, err := c.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := pc.ValidateForSTK(); err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, ts := StkPassword(pc.BusinessShortcode, pc.Passkey, time.Now())
	shortcode, _ := strconv.Atoi(pc.BusinessShortcode)

	payload := map[string]any{
		"BusinessShortCode": shortcode,
		"Password":          password,
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.Phone,
		"PartyB":            pc.BusinessShortcode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       pc.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	var out STKPushResponse
	if err := c.postJSON(ctx, pc.BaseURL()+"/mpesa/stkpush/v1/processrequest", token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
