package seal

import (
	"context"
	"fmt"
	"sync"
)

// Store persists vaults and their messages.
//
// Every implementation keeps a vault's counters in the same critical section
// (lock, transaction or script) as the message change that moves them, so
// Total == Locked + Unlocked == len(messages) holds at all times.
type Store interface {
	CreateVault(ctx context.Context, v *Vault) error
	GetVault(ctx context.Context, vaultID string) (*Vault, error)

	// AddMessage appends a LOCKED message and increments Total and Locked.
	AddMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, vaultID, messageID string) (*Message, error)
	// ListMessages returns messages in creation order.
	ListMessages(ctx context.Context, vaultID string) ([]*Message, error)

	// MarkUnlocked is a compare-and-swap from LOCKED to UNLOCKED that also stores
	// the revealed content and moves one count from Locked to Unlocked.
	// It returns true only for the single caller that performed the transition.
	MarkUnlocked(ctx context.Context, vaultID, messageID string, content []byte) (bool, error)

	// DeleteMessage removes a message and decrements Total and the bucket matching
	// its state at deletion time. The removed message is returned.
	DeleteMessage(ctx context.Context, vaultID, messageID string) (*Message, error)

	Close() error
}

type memVault struct {
	mu       sync.Mutex
	vault    Vault
	messages []*Message
}

func (v *memVault) find(messageID string) int {
	for i, m := range v.messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// MemoryStore is a process-local Store. Each vault has its own mutex guarding
// its message list and counters together.
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[string]*memVault
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vaults: make(map[string]*memVault)}
}

func (s *MemoryStore) vault(vaultID string) (*memVault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, ErrNotFound)
	}
	return v, nil
}

func (s *MemoryStore) CreateVault(ctx context.Context, v *Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vaults[v.ID]; ok {
		return fmt.Errorf("vault %s already exists", v.ID)
	}
	s.vaults[v.ID] = &memVault{vault: *v}
	return nil
}

func (s *MemoryStore) GetVault(ctx context.Context, vaultID string) (*Vault, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.vault
	return &out, nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, m *Message) error {
	if m.State != StateLocked {
		return fmt.Errorf("%w: new message must be locked", ErrInvalidMessage)
	}
	v, err := s.vault(m.VaultID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.find(m.ID) >= 0 {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	v.messages = append(v.messages, m.Clone())
	v.vault.Counters.Total++
	v.vault.Counters.Locked++
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, vaultID, messageID string) (*Message, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.find(messageID)
	if i < 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return v.messages[i].Clone(), nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, vaultID string) ([]*Message, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Message, 0, len(v.messages))
	for _, m := range v.messages {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *MemoryStore) MarkUnlocked(ctx context.Context, vaultID, messageID string, content []byte) (bool, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.find(messageID)
	if i < 0 {
		return false, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	m := v.messages[i]
	if m.State == StateUnlocked {
		return false, nil
	}

	m.State = StateUnlocked
	m.RevealedContent = append(make([]byte, 0, len(content)), content...)
	v.vault.Counters.Locked--
	v.vault.Counters.Unlocked++
	return true, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, vaultID, messageID string) (*Message, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.find(messageID)
	if i < 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	m := v.messages[i]
	v.messages = append(v.messages[:i], v.messages[i+1:]...)

	v.vault.Counters.Total--
	if m.State == StateUnlocked {
		v.vault.Counters.Unlocked--
	} else {
		v.vault.Counters.Locked--
	}
	return m, nil
}

func (s *MemoryStore) Close() error { return nil }
