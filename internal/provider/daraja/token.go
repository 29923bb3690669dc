package daraja

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"safiripay/internal/config"
	"safiripay/internal/engine"

	"github.com/rs/zerolog/log"
)

// tokenSafety is subtracted from expires_in so a token handed out here
// always outlives the caller's request window.
const tokenSafety = 60 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a Daraja bearer token, serving from cache while one
// is still fresh. Concurrent callers with a stale cache coalesce into a
// single refresh.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	pc, err := c.cfg.Snapshot()
	if err != nil {
		return "", err
	}
	if pc.ConsumerKey == "" || pc.ConsumerSecret == "" {
		return "", engine.New(engine.KindConfig, "consumer key/secret not configured")
	}
	key := pc.ConsumerKey + "|" + pc.BaseURL()

	if tok, ok := c.memToken(key); ok {
		return tok, nil
	}
	if tok := c.redisToken(ctx, key); tok != "" {
		return tok, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// Re-check under single-flight: a sibling may have refreshed.
		if tok, ok := c.memToken(key); ok {
			return tok, nil
		}
		return c.fetchToken(ctx, pc, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) memToken(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[key]
	if !ok || time.Now().After(t.expiresAt) {
		return "", false
	}
	return t.token, true
}

func (c *Client) redisToken(ctx context.Context, key string) string {
	if c.redis == nil {
		return ""
	}
	tok, err := c.redis.Get(ctx, "daraja:token:"+key).Result()
	if err != nil {
		return "" // cache miss or redis down; fall through to a fetch
	}
	return tok
}

func (c *Client) fetchToken(ctx context.Context, pc *config.ProviderConfig, key string) (string, error) {
	url := pc.BaseURL() + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(pc.ConsumerKey, pc.ConsumerSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return "", engine.Wrap(engine.KindProviderUnreachable, err, "token request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return "", &engine.Error{
			Kind:    engine.KindProviderRejected,
			Code:    strconv.Itoa(res.StatusCode),
			Message: fmt.Sprintf("token endpoint returned %s: %s", res.Status, string(body)),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return "", engine.Wrap(engine.KindProviderRejected, err, "unparseable token response")
	}
	if tr.AccessToken == "" {
		return "", engine.New(engine.KindProviderRejected, "token response missing access_token")
	}

	ttl := tokenTTL(tr.ExpiresIn)
	c.mu.Lock()
	c.tokens[key] = cachedToken{token: tr.AccessToken, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Set(ctx, "daraja:token:"+key, tr.AccessToken, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("daraja: token cache write failed")
		}
	}
	return tr.AccessToken, nil
}

func tokenTTL(expiresIn string) time.Duration {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3599 // Daraja's usual lifetime
	}
	ttl := time.Duration(secs)*time.Second - tokenSafety
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}
