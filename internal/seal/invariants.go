package seal

import (
	"context"
	"errors"
	"fmt"
)

// Vault invariants:
//
//	Counters.Total == Counters.Locked + Counters.Unlocked == len(messages)
//	Counters.Locked == number of LOCKED messages
//
// Message invariants:
//
//	State == StateLocked   => RevealedContent is nil
//	State == StateUnlocked => RevealedContent is set

// ValidateMessage checks a single message's state against its revealed content.
func ValidateMessage(m *Message) error {
	switch m.State {
	case StateLocked:
		if m.RevealedContent != nil {
			return fmt.Errorf("message %s: state is locked but content is revealed", m.ID)
		}
		return nil
	case StateUnlocked:
		if m.RevealedContent == nil {
			return fmt.Errorf("message %s: state is unlocked but revealed content missing", m.ID)
		}
		return nil
	default:
		return fmt.Errorf("message %s: unknown state %q", m.ID, m.State)
	}
}

// CheckVault verifies every invariant of a stored vault and returns all violations
// joined. It never attempts repair.
func CheckVault(ctx context.Context, store Store, vaultID string) error {
	v, err := store.GetVault(ctx, vaultID)
	if err != nil {
		return err
	}
	messages, err := store.ListMessages(ctx, vaultID)
	if err != nil {
		return err
	}

	var errs []error
	var locked, unlocked int
	for _, m := range messages {
		if err := ValidateMessage(m); err != nil {
			errs = append(errs, err)
		}
		if m.State == StateUnlocked {
			unlocked++
		} else {
			locked++
		}
	}

	c := v.Counters
	if c.Total != c.Locked+c.Unlocked {
		errs = append(errs, fmt.Errorf("vault %s: total %d != locked %d + unlocked %d", vaultID, c.Total, c.Locked, c.Unlocked))
	}
	if c.Total != len(messages) {
		errs = append(errs, fmt.Errorf("vault %s: total %d != %d messages", vaultID, c.Total, len(messages)))
	}
	if c.Locked != locked || c.Unlocked != unlocked {
		errs = append(errs, fmt.Errorf("vault %s: counters locked=%d unlocked=%d, messages locked=%d unlocked=%d", vaultID, c.Locked, c.Unlocked, locked, unlocked))
	}

	return errors.Join(errs...)
}
