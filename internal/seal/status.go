package seal

import (
	"fmt"
	"strings"
	"time"
)

// StatusResult contains the results of listing a vault.
// Messages whose evaluation failed are included in their LOCKED form.
type StatusResult struct {
	Messages         []*Message
	EvaluationFailed bool
	FirstError       error
}

// FormatStatusOutput formats messages for display.
func FormatStatusOutput(messages []*Message) string {
	if len(messages) == 0 {
		return "no messages"
	}

	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "id: %s\ntitle: %s\nkind: %s\nstate: %s\nunlock_time: %s\ntarget_round: %d\n",
			m.ID,
			m.Title,
			m.Kind,
			m.State,
			m.UnlockTime.Format(time.RFC3339),
			m.Envelope.TargetRound)
		if m.State == StateUnlocked {
			fmt.Fprintf(&b, "content: %s\n", m.RevealedContent)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatVault formats a vault header with its counters.
func FormatVault(v *Vault) string {
	return fmt.Sprintf("id: %s\nname: %s\ntotal: %d\nlocked: %d\nunlocked: %d\n",
		v.ID, v.Name, v.Counters.Total, v.Counters.Locked, v.Counters.Unlocked)
}
