package seal

import (
	"context"
	"fmt"
	"strings"
)

// StatusFilter selects messages by lock state.
type StatusFilter string

const (
	FilterAll      StatusFilter = "all"
	FilterLocked   StatusFilter = "locked"
	FilterUnlocked StatusFilter = "unlocked"
)

// ParseStatusFilter accepts all, locked or unlocked (case-insensitive). Empty means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterLocked, FilterUnlocked:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

func (f StatusFilter) match(m *Message) bool {
	switch f {
	case FilterLocked:
		return m.State == StateLocked
	case FilterUnlocked:
		return m.State == StateUnlocked
	default:
		return true
	}
}

// List returns the vault's messages in creation order, filtered by state.
// Every LOCKED message is accessed first so the filter sees current state.
func (l *Lifecycle) List(ctx context.Context, vaultID string, filter StatusFilter) (StatusResult, error) {
	messages, err := l.store.ListMessages(ctx, vaultID)
	if err != nil {
		return StatusResult{}, err
	}

	var result StatusResult
	for _, m := range messages {
		current, _, err := l.access(ctx, m)
		if err != nil && !result.EvaluationFailed {
			result.EvaluationFailed = true
			result.FirstError = err
		}
		if filter.match(current) {
			result.Messages = append(result.Messages, current)
		}
	}

	return result, nil
}
