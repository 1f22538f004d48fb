package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer issues signed recovery tokens for one issuer identity. It is an
// immutable value constructed once at startup; the signing key is never
// reachable through ambient state.
type Signer struct {
	key    *ecdsa.PrivateKey
	issuer string
	clock  func() time.Time
}

// Issued describes a freshly minted recovery token.
type Issued struct {
	// ID is the hex-encoded token id, used as the record identifier and as
	// the state value round-tripped through the provider.
	ID string
	// Encoded is the base64 token envelope handed to the provider.
	Encoded string
	// Hash is the SHA-256 digest of the raw envelope bytes.
	Hash []byte
}

// NewSigner creates a Signer for the given P-256 key and issuer origin.
func NewSigner(key *ecdsa.PrivateKey, issuer string) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key must use curve P-256, got %s", key.Curve.Params().Name)
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &Signer{key: key, issuer: issuer, clock: time.Now}, nil
}

// SetClock overrides the issued-time source. Intended for tests.
func (s *Signer) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// PublicKey returns the verification key matching the signing key.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Issue mints a recovery token for the given audience. Data and binding may
// be empty; the save-token flow issues tokens with neither.
func (s *Signer) Issue(audience string, options uint8, data, binding []byte) (Issued, error) {
	if audience == "" {
		return Issued{}, fmt.Errorf("audience is required")
	}

	id, err := NewTokenID()
	if err != nil {
		return Issued{}, err
	}

	t := Token{
		Version:    Version,
		Type:       TypeRecoveryToken,
		ID:         id,
		Options:    options,
		Issuer:     s.issuer,
		Audience:   audience,
		IssuedTime: s.clock().UTC(),
		Data:       data,
		Binding:    binding,
	}

	signed, err := t.serialize()
	if err != nil {
		return Issued{}, err
	}
	digest := sha256.Sum256(signed)
	signature, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}

	raw := append(signed, signature...)
	tokenHash := sha256.Sum256(raw)
	return Issued{
		ID:      hex.EncodeToString(id),
		Encoded: base64.StdEncoding.EncodeToString(raw),
		Hash:    tokenHash[:],
	}, nil
}
