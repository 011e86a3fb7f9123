package timeauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAvailability_IsAvailable(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	avail := NewAvailability(src)
	ctx := context.Background()

	ok, err := avail.IsAvailable(ctx, 11)
	require.NoError(t, err)
	assert.False(t, ok, "round beyond head must not be available")

	src.SetLatest(11)
	ok, err = avail.IsAvailable(ctx, 11)
	require.NoError(t, err)
	assert.True(t, ok, "negative answers must not be cached")
}

func TestAvailability_PropagatesTransportFailure(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	src.RoundError = fmt.Errorf("%w: connection refused", ErrUnavailable)
	avail := NewAvailability(src)

	ok, err := avail.IsAvailable(context.Background(), 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAvailability_ParametersCachedForTTL(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	avail := NewAvailability(src, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		params, err := avail.Parameters(ctx)
		require.NoError(t, err)
		assert.Equal(t, mainnet, params)
	}
	assert.Equal(t, int64(1), src.ParamsCalls.Load())

	// Default TTL is one chain period.
	clock.Advance(29 * time.Second)
	_, err := avail.Parameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.ParamsCalls.Load())

	clock.Advance(2 * time.Second)
	_, err = avail.Parameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.ParamsCalls.Load())
}

func TestAvailability_ExplicitTTLAndInvalidate(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	avail := NewAvailability(src, WithClock(clock.Now), WithParamsTTL(time.Hour))
	ctx := context.Background()

	_, err := avail.Parameters(ctx)
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)
	_, err = avail.Parameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.ParamsCalls.Load())

	avail.Invalidate()
	_, err = avail.Parameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.ParamsCalls.Load())
}

func TestAvailability_FailedFetchNotCached(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	src.ParamsError = errors.New("boom")
	avail := NewAvailability(src)
	ctx := context.Background()

	_, err := avail.Parameters(ctx)
	require.Error(t, err)

	src.ParamsError = nil
	params, err := avail.Parameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, mainnet, params)
}

func TestAvailability_RejectsInvalidParameters(t *testing.T) {
	src := NewFakeSource(ChainParameters{GenesisTime: 1, Period: 0}, 10)
	avail := NewAvailability(src)

	_, err := avail.Parameters(context.Background())
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestAvailability_ConcurrentMissesFetchOnce(t *testing.T) {
	src := NewFakeSource(mainnet, 10)
	avail := NewAvailability(src, WithParamsTTL(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = avail.Parameters(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), src.ParamsCalls.Load())
}
