package timeauth

import (
	"context"
	"time"
)

// SyncStatus summarises how far the beacon's latest round is from wall-clock time.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// Status is a point-in-time view of the beacon.
type Status struct {
	ChainHash     string
	LatestRound   uint64
	ExpectedRound uint64
	Sync          SyncStatus
	Err           error
}

// CheckStatus probes the beacon. Failures are reported in Status.Err with
// SyncStatusError rather than returned, so callers can always render a status.
//
// The beacon is synced when its latest round has caught up to the newest round
// whose availability time has passed (RoundAt(now) - 1).
func CheckStatus(ctx context.Context, avail *Availability, now time.Time) Status {
	params, err := avail.Parameters(ctx)
	if err != nil {
		return Status{Sync: SyncStatusError, Err: err}
	}

	latest, err := avail.Source().FetchLatest(ctx)
	if err != nil {
		return Status{ChainHash: params.ChainHash, Sync: SyncStatusError, Err: err}
	}

	next, err := RoundAt(params, now)
	if err != nil {
		return Status{ChainHash: params.ChainHash, Sync: SyncStatusError, Err: err}
	}
	expected := next - 1

	st := Status{
		ChainHash:     params.ChainHash,
		LatestRound:   latest.Index,
		ExpectedRound: expected,
		Sync:          SyncStatusSynced,
	}
	if latest.Index < expected {
		st.Sync = SyncStatusSyncing
	}
	return st
}
