package seal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"timevault/internal/timeauth"
)

// ParseUnlockTime parses and validates an unlock timestamp.
// Accepts only RFC3339 format.
// Rejects past timestamps.
// Returns time normalized to UTC.
func ParseUnlockTime(s string, now time.Time) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format, expected RFC3339")
	}

	t = t.UTC()
	if !t.After(now) {
		return time.Time{}, ErrUnlockTimeInPast
	}

	return t, nil
}

// ReadInput reads content from path, or from r when path is empty.
// Enforces the maximum size limit and rejects empty input.
func ReadInput(path string, r io.Reader) ([]byte, error) {
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot open file: %w", err)
		}
		defer file.Close()
		r = file
	}
	if r == nil {
		return nil, errors.New("no input provided (use file path or pipe to stdin)")
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read input: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("input is empty")
	}
	if len(data) > MaxInputSize {
		return nil, fmt.Errorf("input exceeds maximum size of %d bytes", MaxInputSize)
	}

	return data, nil
}

// ParamsProvider supplies chain parameters, typically a *timeauth.Availability.
type ParamsProvider interface {
	Parameters(ctx context.Context) (timeauth.ChainParameters, error)
}

// Sealer builds envelopes bound to the first beacon round after an unlock time.
// It reads chain parameters and never touches stored state.
type Sealer struct {
	params ParamsProvider
	codec  PayloadCodec
	Now    func() time.Time
}

// NewSealer creates a sealer. A nil codec means PlainCodec.
func NewSealer(params ParamsProvider, codec PayloadCodec) *Sealer {
	if codec == nil {
		codec = PlainCodec{}
	}
	return &Sealer{params: params, codec: codec, Now: time.Now}
}

// Seal produces an envelope for plaintext that opens at the first round strictly
// after unlockTime.
func (s *Sealer) Seal(ctx context.Context, plaintext []byte, unlockTime time.Time) (Envelope, error) {
	if !unlockTime.After(s.Now()) {
		return Envelope{}, ErrUnlockTimeInPast
	}

	params, err := s.params.Parameters(ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to fetch chain parameters: %w", err)
	}

	round, err := timeauth.RoundAt(params, unlockTime)
	if err != nil {
		return Envelope{}, err
	}

	codec := s.codec
	if codec.Scheme() == SchemePlain && !utf8.Valid(plaintext) {
		codec = Base64Codec{}
	}

	payload, err := codec.Seal(plaintext, round)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to seal payload: %w", err)
	}

	env := Envelope{
		TargetRound:   round,
		IntegrityTag:  IntegrityTag(plaintext),
		Payload:       payload,
		PayloadLength: len(plaintext),
	}
	if codec.Scheme() != SchemePlain {
		env.Scheme = codec.Scheme()
	}

	return env, nil
}

// CreateMessageRequest carries what the application supplies to create a message.
// Text messages seal Content; image and video messages seal MediaHash.
type CreateMessageRequest struct {
	Title      string
	Kind       ContentKind
	Content    []byte
	MediaHash  string
	UnlockTime time.Time
	CreatedBy  string
}

// Validate checks the request shape.
func (r CreateMessageRequest) Validate() error {
	title := strings.TrimSpace(r.Title)
	if title == "" || len(title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidMessage, MaxTitleLength)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown content kind %q", ErrInvalidMessage, r.Kind)
	}
	if r.Kind == KindText && len(r.Content) == 0 {
		return fmt.Errorf("%w: content is required for text messages", ErrInvalidMessage)
	}
	if r.Kind != KindText && r.MediaHash == "" {
		return fmt.Errorf("%w: media content hash is required for %s messages", ErrInvalidMessage, strings.ToLower(string(r.Kind)))
	}
	if len(r.Content) > MaxInputSize {
		return fmt.Errorf("%w: content exceeds maximum size of %d bytes", ErrInvalidMessage, MaxInputSize)
	}
	return nil
}

func (r CreateMessageRequest) payload() []byte {
	if r.Kind == KindText {
		return r.Content
	}
	return []byte(r.MediaHash)
}

func (r CreateMessageRequest) metadata() Metadata {
	return Metadata{
		Title:      strings.TrimSpace(r.Title),
		Kind:       r.Kind,
		UnlockTime: r.UnlockTime.UTC(),
		CreatedBy:  r.CreatedBy,
	}
}
