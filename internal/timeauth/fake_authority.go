package timeauth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeSource is a deterministic in-memory beacon for testing.
// Rounds up to Latest exist; anything beyond is ErrRoundNotFound.
type FakeSource struct {
	Params ChainParameters

	// ParamsError simulates parameter fetch failures
	ParamsError error
	// RoundError simulates transport failures on FetchRound
	RoundError error
	// LatestError simulates transport failures on FetchLatest
	LatestError error

	mu     sync.Mutex
	latest uint64

	ParamsCalls atomic.Int64
	RoundCalls  atomic.Int64
}

// NewFakeSource creates a fake with the given chain and latest round.
func NewFakeSource(params ChainParameters, latest uint64) *FakeSource {
	return &FakeSource{Params: params, latest: latest}
}

// SetLatest moves the head of the fake chain.
func (f *FakeSource) SetLatest(round uint64) {
	f.mu.Lock()
	f.latest = round
	f.mu.Unlock()
}

func (f *FakeSource) FetchParameters(ctx context.Context) (ChainParameters, error) {
	f.ParamsCalls.Add(1)
	if f.ParamsError != nil {
		return ChainParameters{}, f.ParamsError
	}
	return f.Params, nil
}

func (f *FakeSource) FetchLatest(ctx context.Context) (Round, error) {
	if f.LatestError != nil {
		return Round{}, f.LatestError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeRound(f.latest), nil
}

func (f *FakeSource) FetchRound(ctx context.Context, index uint64) (Round, error) {
	f.RoundCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return Round{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if f.RoundError != nil {
		return Round{}, f.RoundError
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if index > f.latest {
		return Round{}, fmt.Errorf("%w: round %d", ErrRoundNotFound, index)
	}
	return fakeRound(index), nil
}

func fakeRound(index uint64) Round {
	return Round{
		Index:      index,
		Randomness: []byte(fmt.Sprintf("randomness-%d", index)),
		Signature:  []byte(fmt.Sprintf("signature-%d", index)),
	}
}
