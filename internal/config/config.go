package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Pricing PricingConfig
	Offers  OffersConfig
	Session SessionConfig
	Redeem  RedeemConfig
	Receipt ReceiptConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig: an empty Addr keeps session state in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type PricingConfig struct {
	PricePerMB     float64 `mapstructure:"price_per_mb"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	CurrencySymbol string  `mapstructure:"currency_symbol"`
}

type OffersConfig struct {
	MBSteps   []int `mapstructure:"mb_steps"`
	GBPresets []int `mapstructure:"gb_presets"`
}

type SessionConfig struct {
	TTLSec int64 `mapstructure:"ttl_sec"`
}

type RedeemConfig struct {
	// StickyClose keeps the confirm control as "Close" for the rest of the
	// session after the first confirmation.
	StickyClose bool `mapstructure:"sticky_close"`
}

type ReceiptConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSec) * time.Second
}

func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("pricing.price_per_mb", 1.0)
	v.SetDefault("pricing.commission_rate", 0.20)
	v.SetDefault("pricing.currency_symbol", "₦")
	v.SetDefault("offers.mb_steps", []int{100, 200, 300, 400, 500, 600, 700, 800, 900})
	v.SetDefault("offers.gb_presets", []int{1, 2, 5, 10})
	v.SetDefault("session.ttl_sec", 1800)
	v.SetDefault("redeem.sticky_close", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":             "PORT",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"pricing.price_per_mb":    "PRICE_PER_MB",
		"pricing.commission_rate": "COMMISSION_RATE",
		"pricing.currency_symbol": "CURRENCY_SYMBOL",
		"session.ttl_sec":         "SESSION_TTL_SEC",
		"redeem.sticky_close":     "REDEEM_STICKY_CLOSE",
		"receipt.signing_key":     "RECEIPT_SIGNING_KEY",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid config: PORT must be positive")
	}
	if c.Pricing.PricePerMB < 0 {
		return fmt.Errorf("invalid config: PRICE_PER_MB must not be negative")
	}
	if c.Pricing.CommissionRate < 0 || c.Pricing.CommissionRate > 1 {
		return fmt.Errorf("invalid config: COMMISSION_RATE must be within [0, 1]")
	}
	for _, n := range c.Offers.MBSteps {
		if n <= 0 {
			return fmt.Errorf("invalid config: offers.mb_steps must be positive, got %d", n)
		}
	}
	for _, n := range c.Offers.GBPresets {
		if n <= 0 {
			return fmt.Errorf("invalid config: offers.gb_presets must be positive, got %d", n)
		}
	}
	if c.Session.TTLSec < 0 {
		return fmt.Errorf("invalid config: SESSION_TTL_SEC must not be negative")
	}
	return nil
}
