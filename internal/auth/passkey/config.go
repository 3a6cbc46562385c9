package passkey

import (
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/config"
)

// Purpose describes the WebAuthn ceremony a challenge belongs to.
type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeAssertion    Purpose = "assertion"
)

// Config controls WebAuthn relying party settings and challenge timing.
type Config struct {
	RPDisplayName string        `env:"COOKSY_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Cooksy"`
	RPID          string        `env:"COOKSY_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"COOKSY_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"COOKSY_WEBAUTHN_CHALLENGE_TTL"   envDefault:"10m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = config.ParseEnv(&cfg)
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "Cooksy"
	}
	if cfg.RPID == "" {
		cfg.RPID = "localhost"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8087"}
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 10 * time.Minute
	}
	return cfg
}
