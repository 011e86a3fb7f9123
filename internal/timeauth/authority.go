package timeauth

import (
	"context"
	"fmt"
)

// Source is an external, append-only beacon of numbered randomness rounds.
// Implementations are network-bound; every method is idempotent and may be retried
// by the caller. Source itself never retries.
//
// FetchRound returns ErrRoundNotFound when the round has not been produced yet and
// ErrUnavailable on transport failure. Callers must be able to tell these apart.
type Source interface {
	// FetchParameters returns the immutable description of the chain.
	FetchParameters(ctx context.Context) (ChainParameters, error)

	// FetchLatest returns the most recently produced round.
	FetchLatest(ctx context.Context) (Round, error)

	// FetchRound returns the round with the given index.
	FetchRound(ctx context.Context, index uint64) (Round, error)
}

// ChainParameters describes a beacon chain. Round index is available starting
// at GenesisTime + index*Period.
type ChainParameters struct {
	GenesisTime int64  `json:"genesis_time"`
	Period      int64  `json:"period"`
	ChainHash   string `json:"hash"`
}

// Validate reports ErrInvalidParameters for a non-positive period or negative genesis.
func (p ChainParameters) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %d", ErrInvalidParameters, p.Period)
	}
	if p.GenesisTime < 0 {
		return fmt.Errorf("%w: genesis time must not be negative, got %d", ErrInvalidParameters, p.GenesisTime)
	}
	return nil
}

// Round is one beacon output. The engine only reads rounds.
type Round struct {
	Index      uint64
	Randomness []byte
	Signature  []byte
}
