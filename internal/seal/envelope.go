package seal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"timevault/internal/timeauth"
)

const (
	SchemePlain  = "plain"
	SchemeBase64 = "base64"
	SchemeTlock  = "tlock"
)

// PayloadCodec turns plaintext into an envelope payload and back.
type PayloadCodec interface {
	Scheme() string
	Seal(plaintext []byte, targetRound uint64) (string, error)
	Open(payload string) ([]byte, error)
}

// PlainCodec stores the plaintext behind the envelope boundary. It binds and
// gates content but gives no confidentiality.
type PlainCodec struct{}

func (PlainCodec) Scheme() string { return SchemePlain }

func (PlainCodec) Seal(plaintext []byte, targetRound uint64) (string, error) {
	return string(plaintext), nil
}

func (PlainCodec) Open(payload string) ([]byte, error) {
	return []byte(payload), nil
}

// Base64Codec is PlainCodec for content that is not valid UTF-8. JSON storage
// would replace invalid bytes, so the payload is kept as standard base64.
type Base64Codec struct{}

func (Base64Codec) Scheme() string { return SchemeBase64 }

func (Base64Codec) Seal(plaintext []byte, targetRound uint64) (string, error) {
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

func (Base64Codec) Open(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// TlockCodec time-lock encrypts the payload to the target round, so the
// content cannot be read until the round's signature is published.
type TlockCodec struct {
	Box timeauth.TimelockBox
}

func (TlockCodec) Scheme() string { return SchemeTlock }

func (c TlockCodec) Seal(plaintext []byte, targetRound uint64) (string, error) {
	return c.Box.Encrypt(plaintext, targetRound)
}

func (c TlockCodec) Open(payload string) ([]byte, error) {
	return c.Box.Decrypt(payload)
}

// IntegrityTag is the lowercase hex SHA-256 of content.
func IntegrityTag(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Verify checks revealed content against the envelope's tag and length.
func (e Envelope) Verify(content []byte) error {
	if len(content) != e.PayloadLength {
		return fmt.Errorf("%w: length %d, expected %d", ErrIntegrityMismatch, len(content), e.PayloadLength)
	}
	tag := IntegrityTag(content)
	if subtle.ConstantTimeCompare([]byte(tag), []byte(e.IntegrityTag)) != 1 {
		return fmt.Errorf("%w: tag %s, expected %s", ErrIntegrityMismatch, tag, e.IntegrityTag)
	}
	return nil
}

// SchemeName returns the envelope's scheme, defaulting to plain.
func (e Envelope) SchemeName() string {
	if e.Scheme == "" {
		return SchemePlain
	}
	return e.Scheme
}

// MarshalEnvelope encodes e in its stable storage form.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes the storage form, ignoring unknown fields.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return e, nil
}
