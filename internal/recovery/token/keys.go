package token

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// ParsePrivateKey decodes a PEM-encoded EC private key in SEC1 or PKCS#8
// form. Environment-sourced values often carry literal "\n" sequences
// instead of newlines; both are accepted.
func ParsePrivateKey(pemString string) (*ecdsa.PrivateKey, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(pemString), `\n`, "\n")
	if normalized == "" {
		return nil, fmt.Errorf("private key is empty")
	}

	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not an EC key")
	}
	return key, nil
}

// EncodePublicKey returns the base64 uncompressed-point form published in
// the well-known configuration document.
func EncodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("public key is required")
	}
	ecdhKey, err := pub.ECDH()
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ecdhKey.Bytes()), nil
}
