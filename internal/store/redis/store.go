// Package redis persists vaults and messages in Redis.
//
// All keys of one vault share a hash tag so every script touches a single slot.
// Counter updates run inside the same Lua script as the message change.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"timevault/internal/seal"
)

const DefaultPrefix = "tv"

// createVaultScript
// KEYS[1] = vault hash
// ARGV = id, name, owner_id, created_at
var createVaultScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "name", ARGV[2], "owner_id", ARGV[3], "created_at", ARGV[4],
    "total", 0, "locked", 0, "unlocked", 0)
return 1
`)

// addMessageScript
// KEYS[1] = vault hash, KEYS[2] = message id list, KEYS[3] = message hash
// ARGV[1] = message id, ARGV[2] = record JSON
var addMessageScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
if redis.call("EXISTS", KEYS[3]) == 1 then
    return -2
end
redis.call("HSET", KEYS[3], "record", ARGV[2], "state", "LOCKED")
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("HINCRBY", KEYS[1], "total", 1)
redis.call("HINCRBY", KEYS[1], "locked", 1)
return 1
`)

// markUnlockedScript compares and swaps LOCKED to UNLOCKED.
// KEYS[1] = vault hash, KEYS[2] = message hash
// ARGV[1] = revealed content
var markUnlockedScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[2], "state")
if not state then
    return -1
end
if state ~= "LOCKED" then
    return 0
end
redis.call("HSET", KEYS[2], "state", "UNLOCKED", "revealed", ARGV[1])
redis.call("HINCRBY", KEYS[1], "locked", -1)
redis.call("HINCRBY", KEYS[1], "unlocked", 1)
return 1
`)

// deleteMessageScript
// KEYS[1] = vault hash, KEYS[2] = message id list, KEYS[3] = message hash
// ARGV[1] = message id
// Returns {state, record, revealed} or -1 when missing.
var deleteMessageScript = redis.NewScript(`
local fields = redis.call("HMGET", KEYS[3], "state", "record", "revealed")
local state = fields[1]
if not state then
    return -1
end
redis.call("DEL", KEYS[3])
redis.call("LREM", KEYS[2], 1, ARGV[1])
redis.call("HINCRBY", KEYS[1], "total", -1)
if state == "UNLOCKED" then
    redis.call("HINCRBY", KEYS[1], "unlocked", -1)
else
    redis.call("HINCRBY", KEYS[1], "locked", -1)
end
return {state, fields[2], fields[3] or ""}
`)

// Store implements seal.Store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ seal.Store = (*Store)(nil)

// New connects to a single Redis node.
func New(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(rdb, DefaultPrefix)
}

// NewWithClient wraps an existing client. Keys are namespaced under prefix.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Client exposes the underlying client.
func (s *Store) Client() redis.UniversalClient { return s.client }

func (s *Store) Close() error { return s.client.Close() }

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "redis.HealthCheck")
}

func (s *Store) vaultKey(vaultID string) string {
	return fmt.Sprintf("%s:{%s}:vault", s.prefix, vaultID)
}

func (s *Store) listKey(vaultID string) string {
	return fmt.Sprintf("%s:{%s}:messages", s.prefix, vaultID)
}

func (s *Store) messageKey(vaultID, messageID string) string {
	return fmt.Sprintf("%s:{%s}:msg:%s", s.prefix, vaultID, messageID)
}

// record is the immutable part of a message, stored as JSON.
type record struct {
	ID         string           `json:"id"`
	VaultID    string           `json:"vault_id"`
	Title      string           `json:"title"`
	Kind       seal.ContentKind `json:"content_kind"`
	UnlockTime time.Time        `json:"unlock_time"`
	CreatedAt  time.Time        `json:"created_at"`
	CreatedBy  string           `json:"created_by"`
	Envelope   seal.Envelope    `json:"envelope"`
}

func (s *Store) CreateVault(ctx context.Context, v *seal.Vault) error {
	created, err := createVaultScript.Run(ctx, s.client, []string{s.vaultKey(v.ID)},
		v.ID, v.Name, v.OwnerID, v.CreatedAt.UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return errors.Wrap(err, "redis.CreateVault")
	}
	if created == 0 {
		return fmt.Errorf("vault %s already exists", v.ID)
	}
	return nil
}

func (s *Store) GetVault(ctx context.Context, vaultID string) (*seal.Vault, error) {
	fields, err := s.client.HGetAll(ctx, s.vaultKey(vaultID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis.GetVault")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("vault %s: %w", vaultID, seal.ErrNotFound)
	}

	v := &seal.Vault{
		ID:      fields["id"],
		Name:    fields["name"],
		OwnerID: fields["owner_id"],
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, errors.Wrap(err, "redis.GetVault.created_at")
	}
	for name, dst := range map[string]*int{
		"total":    &v.Counters.Total,
		"locked":   &v.Counters.Locked,
		"unlocked": &v.Counters.Unlocked,
	} {
		n, err := strconv.Atoi(fields[name])
		if err != nil {
			return nil, errors.Wrapf(err, "redis.GetVault.%s", name)
		}
		*dst = n
	}
	return v, nil
}

func (s *Store) AddMessage(ctx context.Context, m *seal.Message) error {
	if m.State != seal.StateLocked {
		return fmt.Errorf("%w: new message must be locked", seal.ErrInvalidMessage)
	}
	rec, err := json.Marshal(record{
		ID:         m.ID,
		VaultID:    m.VaultID,
		Title:      m.Title,
		Kind:       m.Kind,
		UnlockTime: m.UnlockTime.UTC(),
		CreatedAt:  m.CreatedAt.UTC(),
		CreatedBy:  m.CreatedBy,
		Envelope:   m.Envelope,
	})
	if err != nil {
		return errors.Wrap(err, "redis.AddMessage.Marshal")
	}

	keys := []string{s.vaultKey(m.VaultID), s.listKey(m.VaultID), s.messageKey(m.VaultID, m.ID)}
	res, err := addMessageScript.Run(ctx, s.client, keys, m.ID, string(rec)).Int64()
	if err != nil {
		return errors.Wrap(err, "redis.AddMessage")
	}
	switch res {
	case -1:
		return fmt.Errorf("vault %s: %w", m.VaultID, seal.ErrNotFound)
	case -2:
		return fmt.Errorf("message %s already exists", m.ID)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, vaultID, messageID string) (*seal.Message, error) {
	fields, err := s.client.HGetAll(ctx, s.messageKey(vaultID, messageID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis.GetMessage")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
	}
	return decodeMessage(fields["record"], fields["state"], fields["revealed"])
}

func (s *Store) ListMessages(ctx context.Context, vaultID string) ([]*seal.Message, error) {
	exists, err := s.client.Exists(ctx, s.vaultKey(vaultID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis.ListMessages.Exists")
	}
	if exists == 0 {
		return nil, fmt.Errorf("vault %s: %w", vaultID, seal.ErrNotFound)
	}

	ids, err := s.client.LRange(ctx, s.listKey(vaultID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis.ListMessages.LRange")
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.messageKey(vaultID, id))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "redis.ListMessages.Pipeline")
	}

	messages := make([]*seal.Message, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Deleted between LRANGE and HGETALL.
			continue
		}
		m, err := decodeMessage(fields["record"], fields["state"], fields["revealed"])
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *Store) MarkUnlocked(ctx context.Context, vaultID, messageID string, content []byte) (bool, error) {
	keys := []string{s.vaultKey(vaultID), s.messageKey(vaultID, messageID)}
	res, err := markUnlockedScript.Run(ctx, s.client, keys, content).Int64()
	if err != nil {
		return false, errors.Wrap(err, "redis.MarkUnlocked")
	}
	if res == -1 {
		return false, fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
	}
	return res == 1, nil
}

func (s *Store) DeleteMessage(ctx context.Context, vaultID, messageID string) (*seal.Message, error) {
	keys := []string{s.vaultKey(vaultID), s.listKey(vaultID), s.messageKey(vaultID, messageID)}
	res, err := deleteMessageScript.Run(ctx, s.client, keys, messageID).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis.DeleteMessage")
	}

	fields, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, seal.ErrNotFound)
	}
	if len(fields) != 3 {
		return nil, fmt.Errorf("invalid response from delete script")
	}
	state, _ := fields[0].(string)
	rec, _ := fields[1].(string)
	revealed, _ := fields[2].(string)
	return decodeMessage(rec, state, revealed)
}

func decodeMessage(rec, state, revealed string) (*seal.Message, error) {
	var r record
	if err := json.Unmarshal([]byte(rec), &r); err != nil {
		return nil, errors.Wrap(err, "redis.decodeMessage")
	}

	m := &seal.Message{
		ID:         r.ID,
		VaultID:    r.VaultID,
		Title:      r.Title,
		Kind:       r.Kind,
		UnlockTime: r.UnlockTime,
		CreatedAt:  r.CreatedAt,
		CreatedBy:  r.CreatedBy,
		Envelope:   r.Envelope,
		State:      seal.LockState(state),
	}
	if m.State == seal.StateUnlocked {
		m.RevealedContent = []byte(revealed)
	}
	return m, nil
}
