// Package daraja implements the outbound Safaricom Daraja v1 surface:
// OAuth client-credentials tokens, STK push, account balance and
// pull-transactions queries.
package daraja

import (
	"net/http"
	"sync"
	"time"

	"safiripay/internal/config"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const requestTimeout = 30 * time.Second

// Client talks to Daraja using the current ProviderConfig snapshot.
type Client struct {
	cfg   *config.ProviderStore
	http  *http.Client
	redis *redis.Client // optional shared token cache

	sf singleflight.Group

	mu     sync.Mutex
	tokens map[string]cachedToken // in-process layer, key = consumerKey|baseURL
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// New builds a client. redisClient may be nil; the in-process token cache
// then stands alone.
func New(cfg *config.ProviderStore, redisClient *redis.Client) *Client {
	return &Client{
		cfg:   cfg,
		redis: redisClient,
		http: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Daraja never redirects; treat any redirect as final.
				return http.ErrUseLastResponse
			},
		},
		tokens: make(map[string]cachedToken),
	}
}
