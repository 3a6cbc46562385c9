package session

import (
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/config"
)

// Config controls session lifetime and login abuse limits.
//
// RotateAfter of zero disables token rotation; when set, a validated session
// older than the threshold is reissued under a fresh token.
type Config struct {
	SessionTTL      time.Duration `env:"COOKSY_SESSION_TTL"              envDefault:"720h"`
	RotateAfter     time.Duration `env:"COOKSY_SESSION_ROTATE_AFTER"     envDefault:"0"`
	LockoutMax      int           `env:"COOKSY_LOGIN_LOCKOUT_MAX"        envDefault:"5"`
	LockoutDuration time.Duration `env:"COOKSY_LOGIN_LOCKOUT_DURATION"   envDefault:"5m"`
	RateLimit       int           `env:"COOKSY_LOGIN_RATE_LIMIT"         envDefault:"10"`
	RateWindow      time.Duration `env:"COOKSY_LOGIN_RATE_WINDOW"        envDefault:"1m"`
}

// LoadConfigFromEnv loads session configuration and applies defensive defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = config.ParseEnv(&cfg)
	return cfg.withDefaults()
}

func (cfg Config) withDefaults() Config {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.LockoutMax <= 0 {
		cfg.LockoutMax = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 5 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return cfg
}
