package timeauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Availability answers "has round N been produced?" on top of a Source.
//
// Chain parameters are cached for a bounded TTL; availability answers are never
// cached because a missing round can appear at any moment.
type Availability struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	params    *ChainParameters
	fetchedAt time.Time
}

// AvailabilityOption configures an Availability.
type AvailabilityOption func(*Availability)

// WithParamsTTL sets how long fetched parameters are reused. Zero means one chain period.
func WithParamsTTL(ttl time.Duration) AvailabilityOption {
	return func(a *Availability) { a.ttl = ttl }
}

// WithClock overrides the wall clock used for cache expiry.
func WithClock(now func() time.Time) AvailabilityOption {
	return func(a *Availability) { a.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) AvailabilityOption {
	return func(a *Availability) { a.logger = logger }
}

// NewAvailability wraps source.
func NewAvailability(source Source, opts ...AvailabilityOption) *Availability {
	a := &Availability{
		source: source,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source returns the wrapped beacon source.
func (a *Availability) Source() Source {
	return a.source
}

// Parameters returns cached chain parameters, refetching on a miss or once stale.
// The cache lock is held across the fetch so concurrent misses trigger one request.
func (a *Availability) Parameters(ctx context.Context) (ChainParameters, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.params != nil && now.Sub(a.fetchedAt) < a.ttlFor(*a.params) {
		paramsCacheTotal.WithLabelValues("hit").Inc()
		return *a.params, nil
	}

	paramsCacheTotal.WithLabelValues("miss").Inc()
	params, err := a.source.FetchParameters(ctx)
	if err != nil {
		return ChainParameters{}, err
	}
	if err := params.Validate(); err != nil {
		return ChainParameters{}, err
	}

	a.params = &params
	a.fetchedAt = now
	a.logger.Debug().
		Int64("genesis_time", params.GenesisTime).
		Int64("period", params.Period).
		Str("chain_hash", params.ChainHash).
		Msg("chain parameters refreshed")

	return params, nil
}

// Invalidate drops cached parameters.
func (a *Availability) Invalidate() {
	a.mu.Lock()
	a.params = nil
	a.mu.Unlock()
}

// IsAvailable reports whether round index has been produced. ErrRoundNotFound is
// absorbed into false; every other failure is returned unchanged.
func (a *Availability) IsAvailable(ctx context.Context, index uint64) (bool, error) {
	_, err := a.source.FetchRound(ctx, index)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRoundNotFound) {
		return false, nil
	}
	return false, err
}

func (a *Availability) ttlFor(p ChainParameters) time.Duration {
	if a.ttl > 0 {
		return a.ttl
	}
	return time.Duration(p.Period) * time.Second
}
