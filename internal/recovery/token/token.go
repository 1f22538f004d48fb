// Package token implements the delegated account recovery token envelope:
// a versioned binary structure signed with ECDSA P-256 over SHA-256 and
// exchanged base64-encoded.
package token

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Version is the only envelope version this service produces.
const Version uint8 = 0

// Token types.
const (
	TypeRecoveryToken      uint8 = 0
	TypeCountersignedToken uint8 = 1
)

// Option flags carried in the envelope's options byte.
const (
	// OptionStatusRequested asks the provider to call back on every token
	// lifecycle change.
	OptionStatusRequested uint8 = 0x01
	// OptionLowFriction asks the provider to minimize save-time user
	// interaction.
	OptionLowFriction uint8 = 0x02
)

// TokenIDSize is the byte length of a token id.
const TokenIDSize = 16

// issuedTimeFormat matches the ISO-8601 timestamps the protocol exchanges.
const issuedTimeFormat = time.RFC3339

// Token is a decoded recovery token envelope.
type Token struct {
	Version    uint8
	Type       uint8
	ID         []byte
	Options    uint8
	Issuer     string
	Audience   string
	IssuedTime time.Time
	Data       []byte
	Binding    []byte
	Signature  []byte
}

// HexID returns the token id in the hex form used as record identifier.
func (t Token) HexID() string {
	return hex.EncodeToString(t.ID)
}

// NewTokenID returns a fresh random token id.
func NewTokenID() ([]byte, error) {
	id := make([]byte, TokenIDSize)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	return id, nil
}

// Hash returns the SHA-256 digest binding a record to the exact encoded
// token bytes handed to the provider.
func Hash(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode token for hashing: %w", err)
	}
	digest := sha256.Sum256(raw)
	return digest[:], nil
}

// serialize writes the signed portion of the envelope: every field except
// the trailing signature.
func (t Token) serialize() ([]byte, error) {
	if len(t.ID) != TokenIDSize {
		return nil, fmt.Errorf("token id must be %d bytes, got %d", TokenIDSize, len(t.ID))
	}

	var buf bytes.Buffer
	buf.WriteByte(t.Version)
	buf.WriteByte(t.Type)
	buf.Write(t.ID)
	buf.WriteByte(t.Options)

	issuedTime := t.IssuedTime.UTC().Format(issuedTimeFormat)
	for _, field := range []struct {
		name  string
		value []byte
	}{
		{"issuer", []byte(t.Issuer)},
		{"audience", []byte(t.Audience)},
		{"issued time", []byte(issuedTime)},
		{"data", t.Data},
		{"binding", t.Binding},
	} {
		if len(field.value) > 0xFFFF {
			return nil, fmt.Errorf("token %s exceeds maximum field length", field.name)
		}
		var length [2]byte
		binary.BigEndian.PutUint16(length[:], uint16(len(field.value)))
		buf.Write(length[:])
		buf.Write(field.value)
	}

	return buf.Bytes(), nil
}

// Decode parses a base64 token envelope without verifying its signature.
func Decode(encoded string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}

	r := bytes.NewReader(raw)
	var t Token
	header := make([]byte, 2+TokenIDSize+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return Token{}, fmt.Errorf("token envelope too short")
	}
	t.Version = header[0]
	t.Type = header[1]
	t.ID = append([]byte(nil), header[2:2+TokenIDSize]...)
	t.Options = header[2+TokenIDSize]

	readField := func(name string) ([]byte, error) {
		var length [2]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return nil, fmt.Errorf("read %s length: %w", name, err)
		}
		size := int(binary.BigEndian.Uint16(length[:]))
		if size == 0 {
			return nil, nil
		}
		value := make([]byte, size)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return value, nil
	}

	issuer, err := readField("issuer")
	if err != nil {
		return Token{}, err
	}
	t.Issuer = string(issuer)
	audience, err := readField("audience")
	if err != nil {
		return Token{}, err
	}
	t.Audience = string(audience)
	issuedTime, err := readField("issued time")
	if err != nil {
		return Token{}, err
	}
	t.IssuedTime, err = time.Parse(issuedTimeFormat, string(issuedTime))
	if err != nil {
		return Token{}, fmt.Errorf("parse issued time: %w", err)
	}
	if t.Data, err = readField("data"); err != nil {
		return Token{}, err
	}
	if t.Binding, err = readField("binding"); err != nil {
		return Token{}, err
	}

	t.Signature = make([]byte, r.Len())
	if len(t.Signature) == 0 {
		return Token{}, fmt.Errorf("token envelope missing signature")
	}
	if _, err := io.ReadFull(r, t.Signature); err != nil {
		return Token{}, fmt.Errorf("read signature: %w", err)
	}
	return t, nil
}

// VerifySignature checks the envelope signature against the given public key.
func (t Token) VerifySignature(pub *ecdsa.PublicKey) (bool, error) {
	signed, err := t.serialize()
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(signed)
	return ecdsa.VerifyASN1(pub, digest[:], t.Signature), nil
}
