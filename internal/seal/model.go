package seal

import "time"

const (
	MaxInputSize = 10 * 1024 * 1024 // 10MB

	MaxTitleLength = 100
)

// LockState is whether a message's content has been revealed.
type LockState string

const (
	StateLocked   LockState = "LOCKED"
	StateUnlocked LockState = "UNLOCKED"
)

// ContentKind is the kind of content a message carries.
type ContentKind string

const (
	KindText  ContentKind = "TEXT"
	KindImage ContentKind = "IMAGE"
	KindVideo ContentKind = "VIDEO"
)

// Valid reports whether k is a known kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo:
		return true
	}
	return false
}

// Envelope binds a payload to a future beacon round. Immutable once created.
//
// Unknown JSON fields are ignored on read. Scheme is omitted for plain payloads.
type Envelope struct {
	TargetRound   uint64 `json:"target_round"`
	IntegrityTag  string `json:"integrity_tag"`
	Payload       string `json:"payload"`
	PayloadLength int    `json:"payload_length"`
	Scheme        string `json:"scheme,omitempty"`
}

// Metadata is supplied by the surrounding application when a message is created.
type Metadata struct {
	Title      string
	Kind       ContentKind
	UnlockTime time.Time
	CreatedBy  string
}

// Message is a sealed item owned by exactly one vault.
// RevealedContent is set if and only if State is StateUnlocked.
type Message struct {
	ID              string      `json:"id"`
	VaultID         string      `json:"vault_id"`
	Title           string      `json:"title"`
	Kind            ContentKind `json:"content_kind"`
	UnlockTime      time.Time   `json:"unlock_time"`
	CreatedAt       time.Time   `json:"created_at"`
	CreatedBy       string      `json:"created_by"`
	Envelope        Envelope    `json:"envelope"`
	RevealedContent []byte      `json:"revealed_content,omitempty"`
	State           LockState   `json:"lock_state"`
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	if m.RevealedContent != nil {
		c.RevealedContent = append(make([]byte, 0, len(m.RevealedContent)), m.RevealedContent...)
	}
	return &c
}

// Counters aggregates a vault's messages by lock state.
// Total == Locked + Unlocked == number of messages.
type Counters struct {
	Total    int `json:"total"`
	Locked   int `json:"locked"`
	Unlocked int `json:"unlocked"`
}

// Vault owns an ordered collection of messages.
type Vault struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Counters  Counters  `json:"message_count"`
}
