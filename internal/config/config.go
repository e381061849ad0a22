package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rips/rips/internal/domain/compliance"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	StoreDir       string   `mapstructure:"STORE_DIR"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	IngestWorkers  int      `mapstructure:"INGEST_WORKERS"`
	PeriodScale    int      `mapstructure:"PERIOD_SCALE"`
	MaxUploadMB    int      `mapstructure:"MAX_UPLOAD_MB"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "STORE_DIR",
	"CORS_ORIGINS", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
	"INGEST_WORKERS", "PERIOD_SCALE", "MAX_UPLOAD_MB",
}

// Load reads .env (if present) and the environment. DATABASE_URL is
// optional; without it the server keeps settings and sessions under
// STORE_DIR.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("STORE_DIR", "./data")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_ISSUER", "rips")
	v.SetDefault("INGEST_WORKERS", 4)
	v.SetDefault("PERIOD_SCALE", 1)
	v.SetDefault("MAX_UPLOAD_MB", 64)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether persistence goes to Postgres rather than the
// file store.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key is mandatory so bearer tokens are enforced.
func (c *Config) Validate() error {
	var errs []error
	if !compliance.ValidScale(c.PeriodScale) {
		errs = append(errs, fmt.Errorf("PERIOD_SCALE=%d: %w", c.PeriodScale, compliance.ErrInvalidScale))
	}
	if c.IngestWorkers < 1 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env))
	}
	if !c.UsesPostgres() && c.StoreDir == "" {
		errs = append(errs, errors.New("STORE_DIR is required without DATABASE_URL"))
	}
	return errors.Join(errs...)
}
