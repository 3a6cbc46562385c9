package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Addr string        `env:"COOKSY_TEST_ADDR" envDefault:"localhost:8087"`
	TTL  time.Duration `env:"COOKSY_TEST_TTL"  envDefault:"15m"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "localhost:8087" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.TTL != 15*time.Minute {
		t.Fatalf("expected default ttl, got %v", cfg.TTL)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("COOKSY_TEST_TTL", "30m")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.TTL != 30*time.Minute {
		t.Fatalf("expected overridden ttl, got %v", cfg.TTL)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("COOKSY_TEST_TTL", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env config:") {
		t.Fatalf("expected parse env config prefix, got %v", err)
	}
}
