package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"safiripay/internal/engine"

	"github.com/rs/zerolog/log"
)

// darajaError is the envelope Daraja uses for non-200 responses.
type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// postJSON posts an authenticated payload and decodes a 200 response into
// out. Transport failures map to ProviderUnreachable, anything else the
// provider refuses maps to ProviderRejected with its own code and text.
func (c *Client) postJSON(ctx context.Context, url, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal daraja payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build daraja request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	log.Debug().Str("url", url).Msg("daraja: outbound request")

	res, err := c.http.Do(req)
	if err != nil {
		return engine.Wrap(engine.KindProviderUnreachable, err, "daraja request failed")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return engine.Wrap(engine.KindProviderUnreachable, err, "daraja response read failed")
	}

	if res.StatusCode != http.StatusOK {
		var de darajaError
		if json.Unmarshal(raw, &de) == nil && de.ErrorCode != "" {
			return engine.Rejected(de.ErrorCode, de.ErrorMessage)
		}
		return engine.Rejected(strconv.Itoa(res.StatusCode), string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return engine.Wrap(engine.KindProviderRejected, err, "unparseable daraja response")
		}
	}
	return nil
}
