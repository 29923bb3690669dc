package daraja

import (
	"context"
)

// BalanceAck is the synchronous acceptance for an AccountBalance query;
// the figures themselves arrive later on the result URL.
type BalanceAck struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// AccountBalance dispatches a CommandID=AccountBalance request. The
// security credential is operator-supplied ciphertext; this client only
// transports it.
func (c *Client) AccountBalance(ctx context.Context, resultURL, timeoutURL string) (*BalanceAck, error) {
	pc, err := c.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := pc.ValidateForBalance(); err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"Initiator":          pc.InitiatorName,
		"SecurityCredential": pc.SecurityCredential,
		"CommandID":          "AccountBalance",
		"PartyA":             pc.BusinessShortcode,
		"IdentifierType":     "4",
		"Remarks":            "Balance inquiry",
		"QueueTimeOutURL":    timeoutURL,
		"ResultURL":          resultURL,
	}

	var ack BalanceAck
	if err := c.postJSON(ctx, pc.BaseURL()+"/mpesa/accountbalance/v1/query", token, payload, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
