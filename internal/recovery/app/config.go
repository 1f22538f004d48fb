package app

import (
	"fmt"
	"strings"
	"time"

	platformconfig "github.com/louisbranch/recovery.space/internal/platform/config"
)

// Config describes the recovery service configuration.
type Config struct {
	// Issuer is this service's origin, published as the token issuer.
	Issuer string
	// PrivateKeyPEM holds the PEM-encoded P-256 signing key. Absence or a
	// malformed value is fatal at startup, never at request time.
	PrivateKeyPEM string
	// PrivacyPolicyURL is published in the well-known configuration.
	PrivacyPolicyURL string
	// ProviderConfigURL points at the recovery provider's well-known
	// configuration document.
	ProviderConfigURL string
	// ProviderIssuer and ProviderSaveToken statically configure the
	// provider when no config URL is set.
	ProviderIssuer    string
	ProviderSaveToken string
	// ProviderCacheTTL bounds how long a fetched provider document is
	// reused.
	ProviderCacheTTL time.Duration
	// StoragePath selects the SQLite record store; empty keeps records in
	// memory only.
	StoragePath string
	// HTTPAddr is the listen address.
	HTTPAddr string
}

// appEnv holds raw env values for the recovery service configuration.
type appEnv struct {
	Issuer            string        `env:"RECOVERY_SPACE_ISSUER"`
	PrivateKeyPEM     string        `env:"RECOVERY_SPACE_PRIVATE_KEY"`
	PrivacyPolicyURL  string        `env:"RECOVERY_SPACE_PRIVACY_POLICY"`
	ProviderConfigURL string        `env:"RECOVERY_SPACE_PROVIDER_CONFIG_URL"`
	ProviderIssuer    string        `env:"RECOVERY_SPACE_PROVIDER_ISSUER"`
	ProviderSaveToken string        `env:"RECOVERY_SPACE_PROVIDER_SAVE_TOKEN"`
	ProviderCacheTTL  time.Duration `env:"RECOVERY_SPACE_PROVIDER_CACHE_TTL" envDefault:"10m"`
	StoragePath       string        `env:"RECOVERY_SPACE_STORAGE_PATH"`
	HTTPAddr          string        `env:"RECOVERY_SPACE_HTTP_ADDR"          envDefault:"localhost:8085"`
}

// LoadConfigFromEnv loads the service configuration from environment
// variables and validates the startup-fatal requirements.
func LoadConfigFromEnv() (Config, error) {
	var raw appEnv
	if err := platformconfig.ParseEnv(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Issuer:            strings.TrimRight(strings.TrimSpace(raw.Issuer), "/"),
		PrivateKeyPEM:     raw.PrivateKeyPEM,
		PrivacyPolicyURL:  strings.TrimSpace(raw.PrivacyPolicyURL),
		ProviderConfigURL: strings.TrimSpace(raw.ProviderConfigURL),
		ProviderIssuer:    strings.TrimSpace(raw.ProviderIssuer),
		ProviderSaveToken: strings.TrimSpace(raw.ProviderSaveToken),
		ProviderCacheTTL:  raw.ProviderCacheTTL,
		StoragePath:       strings.TrimSpace(raw.StoragePath),
		HTTPAddr:          strings.TrimSpace(raw.HTTPAddr),
	}
	return cfg, cfg.Validate()
}

// Validate reports the configuration errors that must stop startup.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("RECOVERY_SPACE_ISSUER is required")
	}
	if strings.TrimSpace(c.PrivateKeyPEM) == "" {
		return fmt.Errorf("RECOVERY_SPACE_PRIVATE_KEY is required")
	}
	if c.ProviderConfigURL == "" && (c.ProviderIssuer == "" || c.ProviderSaveToken == "") {
		return fmt.Errorf("either RECOVERY_SPACE_PROVIDER_CONFIG_URL or both RECOVERY_SPACE_PROVIDER_ISSUER and RECOVERY_SPACE_PROVIDER_SAVE_TOKEN are required")
	}
	return nil
}
