package timeauth

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mainnet = ChainParameters{GenesisTime: 1595431050, Period: 30, ChainHash: MainnetChainHash}

func TestRoundAt_KnownScenario(t *testing.T) {
	round, err := RoundAt(mainnet, time.Unix(mainnet.GenesisTime+301, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), round)
}

func TestRoundAt_Table(t *testing.T) {
	testCases := []struct {
		name   string
		offset int64
		want   uint64
	}{
		{name: "at genesis", offset: 0, want: 1},
		{name: "inside first period", offset: 29, want: 1},
		{name: "first boundary", offset: 30, want: 2},
		{name: "just past boundary", offset: 31, want: 2},
		{name: "before genesis clamps", offset: -3600, want: 1},
		{name: "one second before genesis", offset: -1, want: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RoundAt(mainnet, time.Unix(mainnet.GenesisTime+tc.offset, 0))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundAt_InvalidParameters(t *testing.T) {
	for _, period := range []int64{0, -30} {
		_, err := RoundAt(ChainParameters{GenesisTime: 1, Period: period}, time.Now())
		assert.ErrorIs(t, err, ErrInvalidParameters)
	}
}

func TestTimeForRound(t *testing.T) {
	at, err := TimeForRound(mainnet, 11)
	require.NoError(t, err)
	assert.Equal(t, mainnet.GenesisTime+330, at.Unix())

	_, err = TimeForRound(mainnet, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = TimeForRound(ChainParameters{Period: 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestTimeForRound_RejectsOverflow(t *testing.T) {
	maxRound := uint64((math.MaxInt64 - mainnet.GenesisTime) / mainnet.Period)

	at, err := TimeForRound(mainnet, maxRound)
	require.NoError(t, err)
	assert.Greater(t, at.Unix(), mainnet.GenesisTime)

	for _, round := range []uint64{maxRound + 1, math.MaxInt64, math.MaxUint64} {
		_, err := TimeForRound(mainnet, round)
		assert.ErrorIs(t, err, ErrInvalidInput, "round %d", round)
	}
}

// Property: t1 < t2 implies RoundAt(t1) <= RoundAt(t2).
func TestRoundAt_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("round is monotonic in time", prop.ForAll(
		func(genesis, period, a, b int64) bool {
			p := ChainParameters{GenesisTime: genesis, Period: period}
			if a > b {
				a, b = b, a
			}
			r1, err1 := RoundAt(p, time.Unix(a, 0))
			r2, err2 := RoundAt(p, time.Unix(b, 0))
			return err1 == nil && err2 == nil && r1 <= r2
		},
		gen.Int64Range(0, 2_000_000_000),
		gen.Int64Range(1, 3600),
		gen.Int64Range(0, 4_000_000_000),
		gen.Int64Range(0, 4_000_000_000),
	))

	properties.TestingRun(t)
}

// Property: RoundAt(TimeForRound(r)) == r+1, the round strictly after the boundary.
func TestRoundAt_BoundaryExactness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("boundary maps to the next round", prop.ForAll(
		func(genesis, period int64, round uint64) bool {
			p := ChainParameters{GenesisTime: genesis, Period: period}
			at, err := TimeForRound(p, round)
			if err != nil {
				return false
			}
			got, err := RoundAt(p, at)
			return err == nil && got == round+1
		},
		gen.Int64Range(0, 2_000_000_000),
		gen.Int64Range(1, 3600),
		gen.UInt64Range(1, 100_000_000),
	))

	properties.Property("sealed round never available at or before the requested time", prop.ForAll(
		func(genesis, period, offset int64) bool {
			p := ChainParameters{GenesisTime: genesis, Period: period}
			requested := time.Unix(genesis+offset, 0)
			round, err := RoundAt(p, requested)
			if err != nil {
				return false
			}
			at, err := TimeForRound(p, round)
			return err == nil && at.After(requested)
		},
		gen.Int64Range(0, 2_000_000_000),
		gen.Int64Range(1, 3600),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}
