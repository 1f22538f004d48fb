// Package signingkey generates P-256 token-signing keys for the recovery
// service.
package signingkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Config holds configuration for signing key generation.
type Config struct {
	// PEM emits the raw PEM block instead of the env-var form.
	PEM bool
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.BoolVar(&cfg.PEM, "pem", cfg.PEM, "print the raw PEM block instead of an env assignment")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a fresh P-256 key and writes it to out. By default the key
// is printed as a RECOVERY_SPACE_PRIVATE_KEY assignment with newlines
// escaped, ready to paste into an env file.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal signing key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	if cfg.PEM {
		_, err = out.Write(pemBytes)
		return err
	}
	escaped := strings.ReplaceAll(strings.TrimSpace(string(pemBytes)), "\n", `\n`)
	_, err = fmt.Fprintf(out, "RECOVERY_SPACE_PRIVATE_KEY=%s\n", escaped)
	return err
}
