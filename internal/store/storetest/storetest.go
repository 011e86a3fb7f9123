// Package storetest is a contract suite every seal.Store implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timevault/internal/seal"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) seal.Store

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("VaultRoundTrip", func(t *testing.T) { testVaultRoundTrip(t, newStore(t)) })
	t.Run("MissingVault", func(t *testing.T) { testMissingVault(t, newStore(t)) })
	t.Run("AddAndListInOrder", func(t *testing.T) { testAddAndList(t, newStore(t)) })
	t.Run("AddRejectsUnlocked", func(t *testing.T) { testAddRejectsUnlocked(t, newStore(t)) })
	t.Run("MissingMessage", func(t *testing.T) { testMissingMessage(t, newStore(t)) })
	t.Run("EnvelopePersisted", func(t *testing.T) { testEnvelopePersisted(t, newStore(t)) })
	t.Run("MarkUnlockedOnce", func(t *testing.T) { testMarkUnlockedOnce(t, newStore(t)) })
	t.Run("MarkUnlockedEmptyContent", func(t *testing.T) { testMarkUnlockedEmpty(t, newStore(t)) })
	t.Run("BinaryContent", func(t *testing.T) { testBinaryContent(t, newStore(t)) })
	t.Run("MarkUnlockedConcurrent", func(t *testing.T) { testMarkUnlockedConcurrent(t, newStore(t)) })
	t.Run("DeleteDecrementsBucket", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("VaultsIsolated", func(t *testing.T) { testVaultsIsolated(t, newStore(t)) })
}

// NewVault creates and stores a vault.
func NewVault(t *testing.T, s seal.Store) *seal.Vault {
	t.Helper()
	v := &seal.Vault{
		ID:        uuid.New().String(),
		Name:      "family",
		OwnerID:   "owner-1",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, s.CreateVault(context.Background(), v))
	return v
}

// NewMessage builds a LOCKED message for vaultID with a plain envelope over content.
func NewMessage(vaultID string, content string) *seal.Message {
	return &seal.Message{
		ID:         uuid.New().String(),
		VaultID:    vaultID,
		Title:      "letter",
		Kind:       seal.KindText,
		UnlockTime: time.Unix(1700000301, 0).UTC(),
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		CreatedBy:  "user-1",
		Envelope: seal.Envelope{
			TargetRound:   11,
			IntegrityTag:  seal.IntegrityTag([]byte(content)),
			Payload:       content,
			PayloadLength: len(content),
		},
		State: seal.StateLocked,
	}
}

func requireCounters(t *testing.T, s seal.Store, vaultID string, want seal.Counters) {
	t.Helper()
	v, err := s.GetVault(context.Background(), vaultID)
	require.NoError(t, err)
	assert.Equal(t, want, v.Counters)
	require.NoError(t, seal.CheckVault(context.Background(), s, vaultID))
}

func testVaultRoundTrip(t *testing.T, s seal.Store) {
	v := NewVault(t, s)

	got, err := s.GetVault(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, v.Name, got.Name)
	assert.Equal(t, v.OwnerID, got.OwnerID)
	assert.True(t, v.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, seal.Counters{}, got.Counters)
}

func testMissingVault(t *testing.T, s seal.Store) {
	ctx := context.Background()
	_, err := s.GetVault(ctx, "missing")
	assert.ErrorIs(t, err, seal.ErrNotFound)

	err = s.AddMessage(ctx, NewMessage("missing", "x"))
	assert.ErrorIs(t, err, seal.ErrNotFound)

	_, err = s.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, seal.ErrNotFound)
}

func testAddAndList(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)

	var ids []string
	for i := 0; i < 5; i++ {
		m := NewMessage(v.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, s.AddMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	list, err := s.ListMessages(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, m := range list {
		assert.Equal(t, ids[i], m.ID, "creation order must be preserved")
		assert.Equal(t, seal.StateLocked, m.State)
		assert.Nil(t, m.RevealedContent)
	}
	requireCounters(t, s, v.ID, seal.Counters{Total: 5, Locked: 5})
}

func testAddRejectsUnlocked(t *testing.T, s seal.Store) {
	v := NewVault(t, s)
	m := NewMessage(v.ID, "x")
	m.State = seal.StateUnlocked
	m.RevealedContent = []byte("x")

	err := s.AddMessage(context.Background(), m)
	assert.ErrorIs(t, err, seal.ErrInvalidMessage)
	requireCounters(t, s, v.ID, seal.Counters{})
}

func testMissingMessage(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)

	_, err := s.GetMessage(ctx, v.ID, "missing")
	assert.ErrorIs(t, err, seal.ErrNotFound)

	_, err = s.MarkUnlocked(ctx, v.ID, "missing", []byte("x"))
	assert.ErrorIs(t, err, seal.ErrNotFound)

	_, err = s.DeleteMessage(ctx, v.ID, "missing")
	assert.ErrorIs(t, err, seal.ErrNotFound)
}

func testEnvelopePersisted(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	m := NewMessage(v.ID, "sealed")
	m.Kind = seal.KindImage
	m.Envelope.Scheme = seal.SchemeTlock

	require.NoError(t, s.AddMessage(ctx, m))

	got, err := s.GetMessage(ctx, v.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Envelope, got.Envelope)
	assert.Equal(t, m.Title, got.Title)
	assert.Equal(t, m.Kind, got.Kind)
	assert.Equal(t, m.CreatedBy, got.CreatedBy)
	assert.Equal(t, m.VaultID, got.VaultID)
	assert.True(t, m.UnlockTime.Equal(got.UnlockTime))
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
}

func testMarkUnlockedOnce(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	m := NewMessage(v.ID, "hello")
	require.NoError(t, s.AddMessage(ctx, m))
	require.NoError(t, s.AddMessage(ctx, NewMessage(v.ID, "other")))

	won, err := s.MarkUnlocked(ctx, v.ID, m.ID, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.MarkUnlocked(ctx, v.ID, m.ID, []byte("hello"))
	require.NoError(t, err)
	assert.False(t, won, "second transition must lose")

	got, err := s.GetMessage(ctx, v.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, seal.StateUnlocked, got.State)
	assert.Equal(t, []byte("hello"), got.RevealedContent)
	requireCounters(t, s, v.ID, seal.Counters{Total: 2, Locked: 1, Unlocked: 1})
}

func testBinaryContent(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	content := []byte{0x89, 'P', 'N', 'G', 0xff, 0xfe, 0x00}

	payload, err := seal.Base64Codec{}.Seal(content, 11)
	require.NoError(t, err)
	m := NewMessage(v.ID, "")
	m.Envelope = seal.Envelope{
		TargetRound:   11,
		IntegrityTag:  seal.IntegrityTag(content),
		Payload:       payload,
		PayloadLength: len(content),
		Scheme:        seal.SchemeBase64,
	}
	require.NoError(t, s.AddMessage(ctx, m))

	got, err := s.GetMessage(ctx, v.ID, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Envelope, got.Envelope)
	opened, err := seal.Base64Codec{}.Open(got.Envelope.Payload)
	require.NoError(t, err)
	require.NoError(t, got.Envelope.Verify(opened))

	won, err := s.MarkUnlocked(ctx, v.ID, m.ID, opened)
	require.NoError(t, err)
	require.True(t, won)

	got, err = s.GetMessage(ctx, v.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got.RevealedContent)
}

func testMarkUnlockedEmpty(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	m := NewMessage(v.ID, "")
	require.NoError(t, s.AddMessage(ctx, m))

	won, err := s.MarkUnlocked(ctx, v.ID, m.ID, nil)
	require.NoError(t, err)
	require.True(t, won)

	got, err := s.GetMessage(ctx, v.ID, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RevealedContent, "unlocked message must carry revealed content, even empty")
	assert.Empty(t, got.RevealedContent)
	requireCounters(t, s, v.ID, seal.Counters{Total: 1, Unlocked: 1})
}

func testMarkUnlockedConcurrent(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	m := NewMessage(v.ID, "race")
	require.NoError(t, s.AddMessage(ctx, m))

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.MarkUnlocked(ctx, v.ID, m.ID, []byte("race"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if won {
				wins++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, wins, "exactly one caller must perform the transition")
	requireCounters(t, s, v.ID, seal.Counters{Total: 1, Unlocked: 1})
}

func testDelete(t *testing.T, s seal.Store) {
	ctx := context.Background()
	v := NewVault(t, s)
	locked := NewMessage(v.ID, "a")
	unlocked := NewMessage(v.ID, "b")
	require.NoError(t, s.AddMessage(ctx, locked))
	require.NoError(t, s.AddMessage(ctx, unlocked))
	_, err := s.MarkUnlocked(ctx, v.ID, unlocked.ID, []byte("b"))
	require.NoError(t, err)
	requireCounters(t, s, v.ID, seal.Counters{Total: 2, Locked: 1, Unlocked: 1})

	removed, err := s.DeleteMessage(ctx, v.ID, unlocked.ID)
	require.NoError(t, err)
	assert.Equal(t, seal.StateUnlocked, removed.State)
	requireCounters(t, s, v.ID, seal.Counters{Total: 1, Locked: 1})

	removed, err = s.DeleteMessage(ctx, v.ID, locked.ID)
	require.NoError(t, err)
	assert.Equal(t, seal.StateLocked, removed.State)
	requireCounters(t, s, v.ID, seal.Counters{})

	list, err := s.ListMessages(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testVaultsIsolated(t *testing.T, s seal.Store) {
	ctx := context.Background()
	a := NewVault(t, s)
	b := NewVault(t, s)
	m := NewMessage(a.ID, "only in a")
	require.NoError(t, s.AddMessage(ctx, m))

	_, err := s.GetMessage(ctx, b.ID, m.ID)
	assert.ErrorIs(t, err, seal.ErrNotFound)

	requireCounters(t, s, a.ID, seal.Counters{Total: 1, Locked: 1})
	requireCounters(t, s, b.ID, seal.Counters{})
}
