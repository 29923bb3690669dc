package config

import (
	"context"
	"strings"
	"sync/atomic"

	"safiripay/internal/engine"
)

// Environment selects the Daraja host.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Default STK amount limits for the M-Pesa method, in whole KES.
const (
	DefaultMinAmountKES = 1
	DefaultMaxAmountKES = 70000
)

// ProviderConfig is the persisted Daraja credential set. It is loaded as a
// whole: readers always observe either the previous or the new snapshot,
// never a mix.
type ProviderConfig struct {
	ConsumerKey        string
	ConsumerSecret     string
	Passkey            string
	BusinessShortcode  string
	Environment        Environment
	BaseURLOverride    string // set to target a non-standard host, e.g. a test double
	CallbackURL        string
	InitiatorName      string
	SecurityCredential string // pre-encrypted by the operator; transported as-is
	NominatedMSISDN    string // pull-transactions registration number
	MinAmountKES       int
	MaxAmountKES       int
}

// BaseURL maps the environment to the Daraja host.
func (c *ProviderConfig) BaseURL() string {
	if c.BaseURLOverride != "" {
		return strings.TrimRight(c.BaseURLOverride, "/")
	}
	if c.Environment == EnvProduction {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// MinAmount returns the configured floor, falling back to the default.
func (c *ProviderConfig) MinAmount() int {
	if c.MinAmountKES > 0 {
		return c.MinAmountKES
	}
	return DefaultMinAmountKES
}

// MaxAmount returns the configured ceiling, falling back to the default.
func (c *ProviderConfig) MaxAmount() int {
	if c.MaxAmountKES > 0 {
		return c.MaxAmountKES
	}
	return DefaultMaxAmountKES
}

// ValidateForSTK checks the fields an STK push needs.
func (c *ProviderConfig) ValidateForSTK() error {
	switch {
	case strings.TrimSpace(c.ConsumerKey) == "" || strings.TrimSpace(c.ConsumerSecret) == "":
		return engine.New(engine.KindConfig, "consumer key/secret not configured")
	case strings.TrimSpace(c.Passkey) == "":
		return engine.New(engine.KindConfig, "passkey not configured")
	case strings.TrimSpace(c.BusinessShortcode) == "":
		return engine.New(engine.KindConfig, "business shortcode not configured")
	case strings.TrimSpace(c.CallbackURL) == "":
		return engine.New(engine.KindConfig, "callback URL not configured")
	}
	return nil
}

// ValidateForBalance checks the fields the balance/pull queries need.
func (c *ProviderConfig) ValidateForBalance() error {
	if strings.TrimSpace(c.InitiatorName) == "" || strings.TrimSpace(c.SecurityCredential) == "" {
		return engine.New(engine.KindConfig, "initiator identity not configured")
	}
	return c.validateAuth()
}

func (c *ProviderConfig) validateAuth() error {
	if strings.TrimSpace(c.ConsumerKey) == "" || strings.TrimSpace(c.ConsumerSecret) == "" {
		return engine.New(engine.KindConfig, "consumer key/secret not configured")
	}
	return nil
}

// ProviderLoader fetches the persisted singleton row.
type ProviderLoader interface {
	LoadProviderConfig(ctx context.Context) (*ProviderConfig, error)
}

// ProviderStore holds the current ProviderConfig snapshot. Writers swap the
// pointer atomically; readers are lock-free.
type ProviderStore struct {
	cur    atomic.Pointer[ProviderConfig]
	loader ProviderLoader
}

func NewProviderStore(loader ProviderLoader) *ProviderStore {
	return &ProviderStore{loader: loader}
}

// Reload fetches a fresh snapshot and publishes it. On failure the previous
// snapshot stays in place.
func (s *ProviderStore) Reload(ctx context.Context) error {
	if s.loader == nil {
		return engine.New(engine.KindConfig, "no provider config loader configured")
	}
	pc, err := s.loader.LoadProviderConfig(ctx)
	if err != nil {
		return engine.Wrap(engine.KindConfig, err, "provider config reload failed")
	}
	s.cur.Store(pc)
	return nil
}

// Snapshot returns the current config, or a config error when none has
// been loaded yet.
func (s *ProviderStore) Snapshot() (*ProviderConfig, error) {
	pc := s.cur.Load()
	if pc == nil {
		return nil, engine.New(engine.KindConfig, "provider config not loaded")
	}
	return pc, nil
}

// Set publishes a snapshot directly. Used at startup and in tests.
func (s *ProviderStore) Set(pc *ProviderConfig) {
	s.cur.Store(pc)
}
