package otp

import (
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/config"
)

// Purpose describes what an emailed code unlocks.
type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeLogin        Purpose = "login"
)

// Config controls emailed code timing and guess limits.
//
// These values are read at startup so operator-controlled defaults can be tuned
// without changing runtime code paths.
type Config struct {
	TTL         time.Duration `env:"COOKSY_OTP_TTL"          envDefault:"15m"`
	MaxAttempts int           `env:"COOKSY_OTP_MAX_ATTEMPTS" envDefault:"5"`
}

// LoadConfigFromEnv loads OTP configuration and applies defensive defaults.
//
// Defaults are intentionally explicit because codes are security-sensitive and
// should remain predictable in local and CI environments.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = config.ParseEnv(&cfg)
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return cfg
}
