package daraja

import (
	"context"
	"time"
)

// pullDateLayout is the window format the pull-transactions API expects.
const pullDateLayout = "2006-01-02 15:04:05"

// PullRegisterResponse acknowledges a pull-transactions registration.
type PullRegisterResponse struct {
	ResponseRefID   string `json:"ResponseRefID"`
	ResponseStatus  string `json:"Response Status"`
	ShortCode       string `json:"ShortCode"`
	ResponseMessage string `json:"ResponseMessage"`
}

// PullTransaction is one provider-side transaction returned by a pull
// query.
type PullTransaction struct {
	TransactionID    string  `json:"transactionId"`
	TrxDate          string  `json:"trxDate"`
	MSISDN           string  `json:"msisdn"`
	Sender           string  `json:"sender"`
	TransactionType  string  `json:"transactiontype"`
	BillReference    string  `json:"billreference"`
	Amount           float64 `json:"amount"`
	OrganizationName string  `json:"organizationname"`
}

type pullQueryResponse struct {
	ResponseRefID   string              `json:"ResponseRefID"`
	ResponseCode    string              `json:"ResponseCode"`
	ResponseMessage string              `json:"ResponseMessage"`
	Response        [][]PullTransaction `json:"Response"`
}

// RegisterPull nominates the configured MSISDN for pull-transactions and
// registers the callback URL. One-time operator action per shortcode.
func (c *Client) RegisterPull(ctx context.Context, callbackURL string) (*PullRegisterResponse, error) {
	pc, err := c.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"ShortCode":       pc.BusinessShortcode,
		"RequestType":     "Pull",
		"NominatedNumber": pc.NominatedMSISDN,
		"CallBackURL":     callbackURL,
	}

	var out PullRegisterResponse
	if err := c.postJSON(ctx, pc.BaseURL()+"/pulltransactions/v1/register", token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PullTransactions queries the provider ledger over a time window. Daraja
// pages with OffSetValue; callers pass 0 and advance by the batch size.
func (c *Client) PullTransactions(ctx context.Context, start, end time.Time, offset int) ([]PullTransaction, error) {
	pc, err := c.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"ShortCode":   pc.BusinessShortcode,
		"StartDate":   start.In(nairobi).Format(pullDateLayout),
		"EndDate":     end.In(nairobi).Format(pullDateLayout),
		"OffSetValue": offset,
	}

	var out pullQueryResponse
	if err := c.postJSON(ctx, pc.BaseURL()+"/pulltransactions/v1/query", token, payload, &out); err != nil {
		return nil, err
	}

	var txs []PullTransaction
	for _, page := range out.Response {
		txs = append(txs, page...)
	}
	return txs, nil
}
