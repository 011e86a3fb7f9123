package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timevault/internal/testutil"
	"timevault/internal/timeauth"
)

var chain = timeauth.ChainParameters{
	GenesisTime: testutil.GenesisTime,
	Period:      testutil.Period,
	ChainHash:   testutil.ChainHash,
}

// setupEnv points the CLI at a fake beacon and a temporary SQLite file.
func setupEnv(t *testing.T, latest uint64) *testutil.BeaconServer {
	t.Helper()
	beacon := testutil.NewBeaconServer(t, latest)
	t.Setenv("TIMEVAULT_BEACON_URL", beacon.URL)
	t.Setenv("TIMEVAULT_CHAIN_HASH", testutil.ChainHash)
	t.Setenv("TIMEVAULT_STORE_DRIVER", "sqlite")
	t.Setenv("TIMEVAULT_SQLITE_PATH", filepath.Join(t.TempDir(), "timevault.db"))
	t.Setenv("TIMEVAULT_REQUEST_TIMEOUT", "2s")
	t.Setenv("TIMEVAULT_LOG_LEVEL", "warn")
	return beacon
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runWithStderr(t, stdin, args...)
	return stdout, err
}

func runWithStderr(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	require.NoError(t, err, "timevault %s", strings.Join(args, " "))
	return out
}

func TestCLI_SealOpenLifecycle(t *testing.T) {
	beacon := setupEnv(t, 5)

	vaultID := strings.TrimSpace(mustRun(t, "", "vault", "create", "--name", "family"))
	require.NotEmpty(t, vaultID)

	unlock := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	msgID := strings.TrimSpace(mustRun(t, "see you tomorrow",
		"seal", vaultID, "--until", unlock.Format(time.RFC3339), "--title", "note"))
	require.NotEmpty(t, msgID)

	out := mustRun(t, "", "open", vaultID, msgID)
	assert.Contains(t, out, "state: LOCKED")
	assert.NotContains(t, out, "see you tomorrow")

	out = mustRun(t, "", "vault", "show", vaultID)
	assert.Contains(t, out, "total: 1\nlocked: 1\nunlocked: 0")

	round, err := timeauth.RoundAt(chain, unlock)
	require.NoError(t, err)
	beacon.SetLatest(round)

	out = mustRun(t, "", "open", vaultID, msgID)
	assert.Contains(t, out, "state: UNLOCKED")
	assert.Contains(t, out, "content: see you tomorrow")

	out = mustRun(t, "", "vault", "show", vaultID)
	assert.Contains(t, out, "total: 1\nlocked: 0\nunlocked: 1")

	assert.Equal(t, "ok\n", mustRun(t, "", "check", vaultID))

	mustRun(t, "", "delete", vaultID, msgID)
	out = mustRun(t, "", "list", vaultID)
	assert.Equal(t, "no messages", out)
}

func TestCLI_ListAndSweep(t *testing.T) {
	beacon := setupEnv(t, 5)
	vaultID := strings.TrimSpace(mustRun(t, "", "vault", "create", "--name", "family"))

	soon := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	later := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	first := strings.TrimSpace(mustRun(t, "first", "seal", vaultID, "--until", soon.Format(time.RFC3339), "--title", "a"))
	second := strings.TrimSpace(mustRun(t, "", "seal", vaultID, "--until", later.Format(time.RFC3339),
		"--title", "b", "--kind", "image", "--media-hash", "sha256:abcd"))

	round, err := timeauth.RoundAt(chain, soon)
	require.NoError(t, err)
	beacon.SetLatest(round)

	assert.Equal(t, "unlocked: 1\n", mustRun(t, "", "sweep", vaultID))
	assert.Equal(t, "unlocked: 0\n", mustRun(t, "", "sweep", vaultID))

	out := mustRun(t, "", "list", vaultID, "--status", "unlocked")
	assert.Contains(t, out, first)
	assert.NotContains(t, out, second)

	out = mustRun(t, "", "list", vaultID, "--status", "locked")
	assert.Contains(t, out, second)
	assert.Contains(t, out, "kind: IMAGE")
	assert.NotContains(t, out, first)

	_, err = run(t, "", "list", vaultID, "--status", "sealed")
	assert.Error(t, err)
}

func TestCLI_SealErrors(t *testing.T) {
	setupEnv(t, 5)
	vaultID := strings.TrimSpace(mustRun(t, "", "vault", "create", "--name", "family"))
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "missing until", stdin: "x", args: []string{"seal", vaultID, "--title", "t"}},
		{name: "past until", stdin: "x", args: []string{"seal", vaultID, "--title", "t", "--until", "2020-01-01T00:00:00Z"}},
		{name: "bad time", stdin: "x", args: []string{"seal", vaultID, "--title", "t", "--until", "tomorrow"}},
		{name: "empty stdin", stdin: "", args: []string{"seal", vaultID, "--title", "t", "--until", future}},
		{name: "missing title", stdin: "x", args: []string{"seal", vaultID, "--until", future}},
		{name: "image without hash", stdin: "", args: []string{"seal", vaultID, "--title", "t", "--until", future, "--kind", "image"}},
		{name: "unknown vault", stdin: "x", args: []string{"seal", "nope", "--title", "t", "--until", future}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, tt.args...)
			assert.Error(t, err)
			assert.Empty(t, out)
		})
	}

	out := mustRun(t, "", "vault", "show", vaultID)
	assert.Contains(t, out, "total: 0")
}

func TestCLI_BeaconUnavailableKeepsLocked(t *testing.T) {
	beacon := setupEnv(t, 5)
	vaultID := strings.TrimSpace(mustRun(t, "", "vault", "create", "--name", "family"))
	unlock := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	msgID := strings.TrimSpace(mustRun(t, "x", "seal", vaultID, "--until", unlock.Format(time.RFC3339), "--title", "t"))

	round, err := timeauth.RoundAt(chain, unlock)
	require.NoError(t, err)
	beacon.SetLatest(round)
	beacon.SetFailing(true)

	out, err := run(t, "", "open", vaultID, msgID)
	assert.ErrorIs(t, err, timeauth.ErrUnavailable)
	assert.Contains(t, out, "state: LOCKED")

	beacon.SetFailing(false)
	out = mustRun(t, "", "open", vaultID, msgID)
	assert.Contains(t, out, "state: UNLOCKED")
}

func TestCLI_Round(t *testing.T) {
	setupEnv(t, 5)

	at := time.Unix(testutil.GenesisTime+301, 0).UTC().Format(time.RFC3339)
	out := mustRun(t, "", "round", "--at", at)

	want := time.Unix(testutil.GenesisTime+330, 0).UTC().Format(time.RFC3339)
	assert.Equal(t, "round: 11\navailable_at: "+want+"\n", out)
}

func TestCLI_BeaconStatus(t *testing.T) {
	beacon := setupEnv(t, 5)

	out, err := run(t, "", "beacon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "latest_round: 5")
	assert.Contains(t, out, "status: syncing")

	expected, err := timeauth.RoundAt(chain, time.Now().Add(time.Minute))
	require.NoError(t, err)
	beacon.SetLatest(expected)
	out = mustRun(t, "", "beacon", "status")
	assert.Contains(t, out, "status: synced")

	beacon.SetFailing(true)
	out, err = run(t, "", "beacon", "status")
	assert.Error(t, err)
	assert.Contains(t, out, "status: error")
}

func TestCLI_MetricsFlag(t *testing.T) {
	beacon := setupEnv(t, 5)
	vaultID := strings.TrimSpace(mustRun(t, "", "vault", "create", "--name", "family"))
	unlock := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	msgID := strings.TrimSpace(mustRun(t, "x", "seal", vaultID, "--until", unlock.Format(time.RFC3339), "--title", "t"))

	round, err := timeauth.RoundAt(chain, unlock)
	require.NoError(t, err)
	beacon.SetLatest(round)

	out, metrics, err := runWithStderr(t, "", "open", vaultID, msgID, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "state: UNLOCKED")
	assert.Contains(t, metrics, "# TYPE timevault_seal_unlock_transitions_total counter")
	assert.Contains(t, metrics, `timevault_seal_evaluations_total{outcome="available"}`)
	assert.Contains(t, metrics, `timevault_beacon_requests_total{endpoint="round",outcome="ok"}`)

	_, metrics, err = runWithStderr(t, "", "vault", "show", vaultID)
	require.NoError(t, err)
	assert.NotContains(t, metrics, "timevault_seal_unlock_transitions_total")
}
