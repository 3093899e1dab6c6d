package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	EligibilityCacheTTL time.Duration `mapstructure:"ELIGIBILITY_CACHE_TTL"`
	EDIElementSeparator string        `mapstructure:"EDI_ELEMENT_SEPARATOR"`
	EDISegmentTerminator string       `mapstructure:"EDI_SEGMENT_TERMINATOR"`
	EDISenderID         string        `mapstructure:"EDI_SENDER_ID"`
	EDISenderName       string        `mapstructure:"EDI_SENDER_NAME"`
	EDIReceiverID       string        `mapstructure:"EDI_RECEIVER_ID"`
	EDIReceiverName     string        `mapstructure:"EDI_RECEIVER_NAME"`
	BillingProviderName string        `mapstructure:"BILLING_PROVIDER_NAME"`
	BillingProviderNPI  string        `mapstructure:"BILLING_PROVIDER_NPI"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("ELIGIBILITY_CACHE_TTL", "24h")
	v.SetDefault("EDI_ELEMENT_SEPARATOR", "*")
	v.SetDefault("EDI_SEGMENT_TERMINATOR", "~")
	v.SetDefault("EDI_SENDER_NAME", "MEDCLAIMS")
	v.SetDefault("EDI_RECEIVER_NAME", "CLEARINGHOUSE")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("ELIGIBILITY_CACHE_TTL")
	v.BindEnv("EDI_ELEMENT_SEPARATOR")
	v.BindEnv("EDI_SEGMENT_TERMINATOR")
	v.BindEnv("EDI_SENDER_ID")
	v.BindEnv("EDI_SENDER_NAME")
	v.BindEnv("EDI_RECEIVER_ID")
	v.BindEnv("EDI_RECEIVER_NAME")
	v.BindEnv("BILLING_PROVIDER_NAME")
	v.BindEnv("BILLING_PROVIDER_NPI")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// real JWT authentication must be configured and the EDI trading-partner IDs
// must be present, since every generated interchange carries them.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q; refusing to start without authentication", c.Env)
	}

	if len(c.EDIElementSeparator) != 1 {
		return fmt.Errorf("EDI_ELEMENT_SEPARATOR must be a single character, got %q", c.EDIElementSeparator)
	}
	if len(c.EDISegmentTerminator) != 1 {
		return fmt.Errorf("EDI_SEGMENT_TERMINATOR must be a single character, got %q", c.EDISegmentTerminator)
	}
	if c.EDIElementSeparator == c.EDISegmentTerminator {
		return fmt.Errorf("EDI_ELEMENT_SEPARATOR and EDI_SEGMENT_TERMINATOR must differ, both are %q", c.EDIElementSeparator)
	}

	if !c.IsDev() {
		if c.EDISenderID == "" {
			return fmt.Errorf("EDI_SENDER_ID is required when ENV=%q", c.Env)
		}
		if c.EDIReceiverID == "" {
			return fmt.Errorf("EDI_RECEIVER_ID is required when ENV=%q", c.Env)
		}
		if c.BillingProviderNPI == "" {
			return fmt.Errorf("BILLING_PROVIDER_NPI is required when ENV=%q", c.Env)
		}
	}

	if c.EligibilityCacheTTL <= 0 {
		return fmt.Errorf("ELIGIBILITY_CACHE_TTL must be positive, got %s", c.EligibilityCacheTTL)
	}

	return nil
}
