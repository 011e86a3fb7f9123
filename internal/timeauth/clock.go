package timeauth

import (
	"fmt"
	"math"
	"time"
)

// RoundAt returns the first round whose expected availability time is strictly
// after t: floor((t - genesis) / period) + 1.
//
// A time exactly on a period boundary maps to the next round, so content sealed
// for t never unlocks at or before t. Times before genesis are clamped to round 1.
func RoundAt(p ChainParameters, t time.Time) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	elapsed := t.Unix() - p.GenesisTime
	if elapsed < 0 {
		return 1, nil
	}

	return uint64(elapsed/p.Period) + 1, nil
}

// TimeForRound returns the wall-clock time at which round becomes available.
func TimeForRound(p ChainParameters, round uint64) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}
	if round < 1 {
		return time.Time{}, fmt.Errorf("%w: round must be >= 1", ErrInvalidInput)
	}
	if maxRound := uint64((math.MaxInt64 - p.GenesisTime) / p.Period); round > maxRound {
		return time.Time{}, fmt.Errorf("%w: round %d exceeds %d", ErrInvalidInput, round, maxRound)
	}

	return time.Unix(p.GenesisTime+int64(round)*p.Period, 0).UTC(), nil
}
