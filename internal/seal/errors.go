package seal

import "errors"

var (
	// ErrUnlockTimeInPast rejects sealing for a time that is not in the future.
	ErrUnlockTimeInPast = errors.New("unlock time must be in the future")

	// ErrIntegrityMismatch means revealed content does not match the envelope's tag.
	// Fatal for that message's reveal; the content is withheld.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrNotFound is returned by stores for a missing vault or message.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMessage rejects a malformed create request.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrUnknownScheme means an envelope names a payload scheme with no codec.
	ErrUnknownScheme = errors.New("unknown payload scheme")
)
