package postgres

import (
	"context"
	"database/sql"
	"errors"

	"safiripay/internal/config"
	"safiripay/internal/engine"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProviderConfigStore reads and writes the single provider-config row.
// Satisfies config.ProviderLoader.
type ProviderConfigStore struct {
	db *pgxpool.Pool
}

func NewProviderConfigStore(db *pgxpool.Pool) *ProviderConfigStore {
	return &ProviderConfigStore{db: db}
}

func (s *ProviderConfigStore) LoadProviderConfig(ctx context.Context) (*config.ProviderConfig, error) {
	var pc config.ProviderConfig
	var env string
	var initiator, secCred, nominated, baseURL sql.NullString
	var minAmt, maxAmt sql.NullInt64
	err := s.db.QueryRow(ctx, `
		SELECT consumer_key, consumer_secret, passkey, business_shortcode,
		       environment, base_url, callback_url, initiator_name, security_credential,
		       nominated_msisdn, min_amount_kes, max_amount_kes
		  FROM provider_config_singleton
		 WHERE id = 1`,
	).Scan(&pc.ConsumerKey, &pc.ConsumerSecret, &pc.Passkey, &pc.BusinessShortcode,
		&env, &baseURL, &pc.CallbackURL, &initiator, &secCred,
		&nominated, &minAmt, &maxAmt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.New(engine.KindConfig, "provider config row missing")
	}
	if err != nil {
		return nil, err
	}
	pc.Environment = config.Environment(env)
	pc.BaseURLOverride = baseURL.String
	pc.InitiatorName = initiator.String
	pc.SecurityCredential = secCred.String
	pc.NominatedMSISDN = nominated.String
	if minAmt.Valid {
		pc.MinAmountKES = int(minAmt.Int64)
	}
	if maxAmt.Valid {
		pc.MaxAmountKES = int(maxAmt.Int64)
	}
	return &pc, nil
}

// Save upserts the singleton row. Used by migrations and the sandbox
// seeding tool, not by request paths.
func (s *ProviderConfigStore) Save(ctx context.Context, pc *config.ProviderConfig) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO provider_config_singleton
			(id, consumer_key, consumer_secret, passkey, business_shortcode,
			 environment, base_url, callback_url, initiator_name, security_credential,
			 nominated_msisdn, min_amount_kes, max_amount_kes, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		ON CONFLICT (id) DO UPDATE SET
			consumer_key=EXCLUDED.consumer_key,
			consumer_secret=EXCLUDED.consumer_secret,
			passkey=EXCLUDED.passkey,
			business_shortcode=EXCLUDED.business_shortcode,
			environment=EXCLUDED.environment,
			base_url=EXCLUDED.base_url,
			callback_url=EXCLUDED.callback_url,
			initiator_name=EXCLUDED.initiator_name,
			security_credential=EXCLUDED.security_credential,
			nominated_msisdn=EXCLUDED.nominated_msisdn,
			min_amount_kes=EXCLUDED.min_amount_kes,
			max_amount_kes=EXCLUDED.max_amount_kes,
			updated_at=now()`,
		pc.ConsumerKey, pc.ConsumerSecret, pc.Passkey, pc.BusinessShortcode,
		string(pc.Environment), pc.BaseURLOverride, pc.CallbackURL, pc.InitiatorName, pc.SecurityCredential,
		pc.NominatedMSISDN, pc.MinAmountKES, pc.MaxAmountKES)
	return err
}
