package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// DefaultAPIURL is used when no API address is configured anywhere.
const DefaultAPIURL = "http://localhost:4000"

// ClientConfig configures the teamctl CLI. Empty fields fall back to the
// CLI's saved login.
type ClientConfig struct {
	APIURL string `env:"TEAMHUB_API_URL"`
	Token  string `env:"TEAMHUB_TOKEN"`
}

// LoadClientConfig reads ClientConfig from the environment.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
