package seal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lifecycle drives messages from LOCKED to UNLOCKED.
//
// There is no background clock. A message is re-evaluated only when it is
// accessed, and the transition is applied through Store.MarkUnlocked so that
// concurrent accesses agree on one winner.
type Lifecycle struct {
	store     Store
	sealer    *Sealer
	evaluator *Evaluator
	logger    zerolog.Logger
	now       func() time.Time
}

// NewLifecycle wires a lifecycle.
func NewLifecycle(store Store, sealer *Sealer, evaluator *Evaluator, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		sealer:    sealer,
		evaluator: evaluator,
		logger:    logger,
		now:       time.Now,
	}
}

// Store returns the underlying store.
func (l *Lifecycle) Store() Store { return l.store }

// CreateVault creates an empty vault.
func (l *Lifecycle) CreateVault(ctx context.Context, name, ownerID string) (*Vault, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxTitleLength {
		return nil, fmt.Errorf("%w: vault name must be 1-%d characters", ErrInvalidMessage, MaxTitleLength)
	}

	v := &Vault{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.CreateVault(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Vault returns a vault with its counters.
func (l *Lifecycle) Vault(ctx context.Context, vaultID string) (*Vault, error) {
	return l.store.GetVault(ctx, vaultID)
}

// OnCreate appends a new LOCKED message carrying env to the vault.
func (l *Lifecycle) OnCreate(ctx context.Context, vaultID string, env Envelope, meta Metadata) (*Message, error) {
	m := &Message{
		ID:         uuid.New().String(),
		VaultID:    vaultID,
		Title:      meta.Title,
		Kind:       meta.Kind,
		UnlockTime: meta.UnlockTime,
		CreatedAt:  l.now().UTC(),
		CreatedBy:  meta.CreatedBy,
		Envelope:   env,
		State:      StateLocked,
	}
	if err := l.store.AddMessage(ctx, m); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("vault_id", vaultID).
		Str("message_id", m.ID).
		Uint64("target_round", env.TargetRound).
		Msg("message sealed")
	return m, nil
}

// CreateMessage validates req, seals its payload and appends the message.
func (l *Lifecycle) CreateMessage(ctx context.Context, vaultID string, req CreateMessageRequest) (*Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := l.store.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}

	env, err := l.sealer.Seal(ctx, req.payload(), req.UnlockTime)
	if err != nil {
		return nil, err
	}
	return l.OnCreate(ctx, vaultID, env, req.metadata())
}

// OnAccess returns the message, unlocking it first if its round is available.
//
// An already UNLOCKED message is returned unchanged. On a beacon or integrity
// failure the message is returned in its LOCKED form together with the error;
// nothing is mutated.
func (l *Lifecycle) OnAccess(ctx context.Context, vaultID, messageID string) (*Message, error) {
	m, err := l.store.GetMessage(ctx, vaultID, messageID)
	if err != nil {
		return nil, err
	}
	m, _, err = l.access(ctx, m)
	return m, err
}

// access evaluates a stored message and applies the transition. The bool reports
// whether this call performed it.
func (l *Lifecycle) access(ctx context.Context, m *Message) (*Message, bool, error) {
	if m.State == StateUnlocked {
		return m, false, nil
	}

	decision, err := l.evaluator.Evaluate(ctx, m.Envelope)
	if err != nil {
		ev := l.logger.Warn()
		if errors.Is(err, ErrIntegrityMismatch) {
			integrityFailuresTotal.Inc()
			ev = l.logger.Error()
		}
		ev.Err(err).
			Str("vault_id", m.VaultID).
			Str("message_id", m.ID).
			Uint64("target_round", m.Envelope.TargetRound).
			Msg("message left locked")
		return m, false, err
	}
	if !decision.Available {
		return m, false, nil
	}

	won, err := l.store.MarkUnlocked(ctx, m.VaultID, m.ID, decision.Content)
	if err != nil {
		return m, false, err
	}
	if !won {
		// Another caller completed the transition first.
		current, err := l.store.GetMessage(ctx, m.VaultID, m.ID)
		if err != nil {
			return m, false, err
		}
		return current, false, nil
	}

	unlockTransitionsTotal.Inc()
	l.logger.Info().
		Str("vault_id", m.VaultID).
		Str("message_id", m.ID).
		Uint64("target_round", m.Envelope.TargetRound).
		Msg("message unlocked")

	m.State = StateUnlocked
	m.RevealedContent = append(make([]byte, 0, len(decision.Content)), decision.Content...)
	return m, true, nil
}

// OnDelete removes a message, decrementing the counter bucket that matches
// its state at deletion time.
func (l *Lifecycle) OnDelete(ctx context.Context, vaultID, messageID string) error {
	m, err := l.store.DeleteMessage(ctx, vaultID, messageID)
	if err != nil {
		return err
	}
	l.logger.Info().
		Str("vault_id", vaultID).
		Str("message_id", messageID).
		Str("lock_state", string(m.State)).
		Msg("message deleted")
	return nil
}

// Sweep accesses every LOCKED message in the vault and returns how many this
// call unlocked. It is an explicit, optional pass; nothing schedules it.
// Beacon failures do not stop the sweep; the first one is returned.
func (l *Lifecycle) Sweep(ctx context.Context, vaultID string) (int, error) {
	messages, err := l.store.ListMessages(ctx, vaultID)
	if err != nil {
		return 0, err
	}

	var unlocked int
	var firstErr error
	for _, m := range messages {
		if m.State != StateLocked {
			continue
		}
		if err := ctx.Err(); err != nil {
			return unlocked, err
		}
		_, won, err := l.access(ctx, m)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if won {
			unlocked++
		}
	}
	return unlocked, firstErr
}
