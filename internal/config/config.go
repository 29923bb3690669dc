package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port, BaseURL string }
type DBCfg struct{ DSN string }
type RedisCfg struct{ Addr string }

type OpsCfg struct {
	AdminToken string // guards /ops endpoints
}

type WorkerCfg struct {
	SweepEvery     time.Duration // pending-attempt sweeper cadence
	PendingTimeout time.Duration // pending age before an attempt is failed
	AuditEvery     time.Duration // pull-transactions drift audit cadence
	AuditWindow    time.Duration // how far back each audit run looks
}

// Cfg is the process bootstrap configuration, read once from the
// environment. Provider credentials live in ProviderConfig, which is
// persisted and reloadable at runtime.
type Cfg struct {
	App    AppCfg
	DB     DBCfg
	Redis  RedisCfg
	Ops    OpsCfg
	Worker WorkerCfg
}

func Load() Cfg {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "sandbox")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("TZ", "Africa/Nairobi")
	viper.SetDefault("ADMIN_TOKEN", "")
	viper.SetDefault("SWEEP_EVERY_SEC", 60)
	viper.SetDefault("PENDING_TIMEOUT_SEC", 300)
	viper.SetDefault("AUDIT_EVERY_SEC", 3600)
	viper.SetDefault("AUDIT_WINDOW_SEC", 86400)

	if tz := viper.GetString("TZ"); tz != "" {
		os.Setenv("TZ", tz)
	}

	cfg := Cfg{
		App: AppCfg{
			Env:     viper.GetString("APP_ENV"),
			Port:    viper.GetString("APP_PORT"),
			BaseURL: viper.GetString("APP_BASE_URL"),
		},
		DB:    DBCfg{DSN: viper.GetString("DB_DSN")},
		Redis: RedisCfg{Addr: viper.GetString("REDIS_ADDR")},
		Ops:   OpsCfg{AdminToken: viper.GetString("ADMIN_TOKEN")},
		Worker: WorkerCfg{
			SweepEvery:     time.Duration(viper.GetInt("SWEEP_EVERY_SEC")) * time.Second,
			PendingTimeout: time.Duration(viper.GetInt("PENDING_TIMEOUT_SEC")) * time.Second,
			AuditEvery:     time.Duration(viper.GetInt("AUDIT_EVERY_SEC")) * time.Second,
			AuditWindow:    time.Duration(viper.GetInt("AUDIT_WINDOW_SEC")) * time.Second,
		},
	}

	if cfg.DB.DSN == "" {
		log.Fatal().Msg("DB_DSN is required")
	}
	return cfg
}
